package config_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agubarev/aegis/internal/config"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	a := assert.New(t)

	v := viper.New()
	config.Prepare(v)

	cfg, err := config.Load(v)
	a.NoError(err)
	a.Equal(":8080", cfg.Server.Addr)
	a.Equal(config.DriverMemory, cfg.Storage.Driver)
	a.Equal(15*time.Second, cfg.Server.Heartbeat)
	a.Equal(time.Hour, cfg.Enrollment.TokenTTL)
	a.Equal(5*time.Second, cfg.Telemetry.SkewTolerance)
	a.EqualValues(50, cfg.Anomaly.MinObservations)
	a.Equal(0.6, cfg.Anomaly.NormalThreshold)
	a.Equal(0.75, cfg.Anomaly.AlertThreshold)
	a.Equal(100, cfg.Server.QueueBound)
}

func TestYAMLAndEnvironment(t *testing.T) {
	a := assert.New(t)

	confstring := `
server:
  addr: 127.0.0.1:9000
  queue_bound: 250
storage:
  driver: postgres
  dsn: postgres://aegis@localhost/aegis
anomaly:
  model_path: /var/lib/aegis/model.bin
  alert_threshold: 0.8
`

	v := viper.New()
	config.Prepare(v)
	v.SetConfigType("yaml")
	a.NoError(v.ReadConfig(strings.NewReader(confstring)))

	os.Setenv("AEGIS_SERVER_ADDR", ":7443")
	defer os.Unsetenv("AEGIS_SERVER_ADDR")

	cfg, err := config.Load(v)
	a.NoError(err)
	a.Equal(":7443", cfg.Server.Addr)
	a.Equal(250, cfg.Server.QueueBound)
	a.Equal(config.DriverPostgres, cfg.Storage.Driver)
	a.Equal("/var/lib/aegis/model.bin", cfg.Anomaly.ModelPath)
	a.Equal(0.8, cfg.Anomaly.AlertThreshold)
	a.Equal(0.6, cfg.Anomaly.NormalThreshold)
}

func TestValidation(t *testing.T) {
	a := assert.New(t)

	v := viper.New()
	config.Prepare(v)

	v.Set("storage.driver", "cassandra")
	_, err := config.Load(v)
	a.Equal(config.ErrUnknownDriver, errors.Cause(err))

	v.Set("storage.driver", "postgres")
	_, err = config.Load(v)
	a.Equal(config.ErrEmptyDSN, errors.Cause(err))

	v.Set("storage.driver", "memory")
	v.Set("anomaly.alert_threshold", 1.5)
	_, err = config.Load(v)
	a.Equal(config.ErrInvalidValue, errors.Cause(err))
}
