package core

import (
	"github.com/agubarev/aegis/internal/config"
	"github.com/agubarev/aegis/pkg/baseline"
	"github.com/agubarev/aegis/pkg/device"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/agubarev/aegis/pkg/token"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// TestKeySize is the signing key size used by test cores
const TestKeySize = 1024

// ConfigForTesting returns the default configuration
func ConfigForTesting() (config.Config, error) {
	v := viper.New()
	config.Prepare(v)

	cfg, err := config.Load(v)
	if err != nil {
		return cfg, err
	}

	cfg.Device.HashCost = bcrypt.MinCost
	cfg.Anomaly.Watch = false
	cfg.Severity.Watch = false

	return cfg, nil
}

// NewCoreForTesting returns a fully assembled in-memory core
func NewCoreForTesting(cfg config.Config) (*Core, error) {
	key, err := session.GenerateKey(TestKeySize)
	if err != nil {
		return nil, err
	}

	logger, err := util.DefaultLogger(false, "")
	if err != nil {
		return nil, err
	}

	st := &stores{
		tokens:   token.NewMemoryStore(),
		devices:  device.NewMemoryStore(),
		events:   telemetry.NewMemoryRepository(),
		profiles: baseline.NewMemoryRepository(),
	}

	return assemble(cfg, key, st, logger)
}
