package core_test

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/agubarev/aegis/internal/core"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/severity"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewFromConfig(t *testing.T) {
	a := assert.New(t)

	dir, err := ioutil.TempDir("", "aegis-core")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	key, err := session.GenerateKey(core.TestKeySize)
	require.NoError(t, err)

	pemkey, err := session.EncodePrivateKey(key)
	require.NoError(t, err)

	keyPath := filepath.Join(dir, "session.pem")
	require.NoError(t, ioutil.WriteFile(keyPath, pemkey, 0600))

	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, ioutil.WriteFile(rulesPath, []byte(`
rules:
  - severity: critical
    patterns: ["format c:"]
`), 0600))

	cfg, err := core.ConfigForTesting()
	require.NoError(t, err)

	//---------------------------------------------------------------------------
	// missing key
	//---------------------------------------------------------------------------
	_, err = core.New(context.Background(), cfg, zap.NewNop())
	a.Equal(core.ErrMissingKey, errors.Cause(err))

	//---------------------------------------------------------------------------
	// complete configuration
	//---------------------------------------------------------------------------
	cfg.Session.PrivateKey = keyPath
	cfg.Severity.RulesPath = rulesPath
	cfg.Anomaly.ModelPath = filepath.Join(dir, "missing-model.bin")
	cfg.Baseline.Path = filepath.Join(dir, "baseline.db")

	c, err := core.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	a.NoError(c.Validate())

	// a missing model degrades, it does not fail
	a.NoError(c.Init(context.Background()))
	a.Nil(c.Scorer().Model())
	a.Equal(severity.Critical, c.Classifier().Classify("FORMAT C: /q"))
	a.Equal(severity.Normal, c.Classifier().Classify("rm -rf /"))

	a.NoError(c.Close())
	a.Equal(core.ErrAlreadyClosed, c.Close())
}

func TestNewCoreForTesting(t *testing.T) {
	a := assert.New(t)

	cfg, err := core.ConfigForTesting()
	require.NoError(t, err)

	c, err := core.NewCoreForTesting(cfg)
	require.NoError(t, err)

	a.NoError(c.Validate())
	a.NotNil(c.Enrollment())
	a.NotNil(c.Gateway())
	a.Equal(cfg.Anomaly.AlertThreshold, c.AlertBus().Threshold())
	a.Equal(cfg.Enrollment.TokenTTL, c.TokenTTL())

	var nilcore *core.Core
	a.Equal(core.ErrNilCore, nilcore.Validate())

	a.NoError(c.Close())
}
