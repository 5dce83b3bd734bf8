package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agubarev/aegis/pkg/alert"
	"github.com/agubarev/aegis/pkg/anomaly"
	"github.com/agubarev/aegis/pkg/baseline"
	"github.com/agubarev/aegis/pkg/device"
	"github.com/agubarev/aegis/pkg/enrollment"
	"github.com/agubarev/aegis/pkg/gateway"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/severity"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/agubarev/aegis/pkg/token"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Core is an aggregate of every Aegis component
type Core struct {
	tokens     *token.Manager
	devices    *device.Manager
	enrollment *enrollment.Service
	sessions   *session.Authority
	classifier *severity.Classifier
	scorer     *anomaly.Scorer
	baseline   *baseline.Store
	ingestor   *telemetry.Ingestor
	bus        *alert.Bus
	gateway    *gateway.Gateway

	// where hot-reloadable artifacts live, empty means disabled
	rulesPath  string
	modelPath  string
	watchRules bool
	watchModel bool

	// issuing defaults
	tokenTTL   time.Duration
	sessionTTL time.Duration

	closers []io.Closer
	closed  bool
	sync.Mutex
	logger *zap.Logger
}

// Init loads the hot-reloadable artifacts and starts their watchers
func (c *Core) Init(ctx context.Context) error {
	if err := c.Validate(); err != nil {
		return err
	}

	l := c.Logger()
	l.Info("initializing the core")

	//---------------------------------------------------------------------------
	// severity rule table
	//---------------------------------------------------------------------------
	if c.rulesPath != "" {
		l.Info("loading severity rules", zap.String("path", c.rulesPath))
		if err := c.classifier.Reload(c.rulesPath); err != nil {
			return errors.Wrap(err, "failed to load severity rules")
		}

		if c.watchRules {
			go func() {
				if err := c.classifier.Watch(ctx, c.rulesPath); err != nil {
					l.Warn("severity rule watcher has stopped", zap.Error(err))
				}
			}()
		}
	}

	//---------------------------------------------------------------------------
	// anomaly model artifact
	//---------------------------------------------------------------------------
	if c.modelPath != "" {
		l.Info("loading anomaly model", zap.String("path", c.modelPath))

		// the pipeline degrades to severity-only scoring without a model
		if err := c.scorer.LoadModel(c.modelPath); err != nil {
			l.Warn("anomaly model is unavailable", zap.Error(err))
		}

		if c.watchModel {
			go func() {
				if err := c.scorer.Watch(ctx, c.modelPath); err != nil {
					l.Warn("anomaly model watcher has stopped", zap.Error(err))
				}
			}()
		}
	} else {
		l.Warn("no anomaly model configured, running in severity-only mode")
	}

	return nil
}

// Validate checks that every component is present
func (c *Core) Validate() error {
	if c == nil {
		return ErrNilCore
	}

	if c.tokens == nil {
		return token.ErrNilTokenManager
	}

	if c.devices == nil {
		return device.ErrNilDeviceManager
	}

	if c.enrollment == nil {
		return ErrNilEnrollment
	}

	if c.sessions == nil {
		return ErrNilAuthority
	}

	if c.ingestor == nil {
		return ErrNilIngestor
	}

	if c.baseline == nil {
		return ErrNilBaseline
	}

	if c.bus == nil {
		return ErrNilAlertBus
	}

	if c.gateway == nil {
		return ErrNilGateway
	}

	return nil
}

// TokenManager returns the enrollment token manager
func (c *Core) TokenManager() *token.Manager { return c.tokens }

// DeviceManager returns the device manager
func (c *Core) DeviceManager() *device.Manager { return c.devices }

// Enrollment returns the enrollment service
func (c *Core) Enrollment() *enrollment.Service { return c.enrollment }

// Sessions returns the session authority
func (c *Core) Sessions() *session.Authority { return c.sessions }

// Classifier returns the severity classifier
func (c *Core) Classifier() *severity.Classifier { return c.classifier }

// Scorer returns the anomaly scorer
func (c *Core) Scorer() *anomaly.Scorer { return c.scorer }

// Baseline returns the per-device baseline store
func (c *Core) Baseline() *baseline.Store { return c.baseline }

// Ingestor returns the telemetry ingestion pipeline
func (c *Core) Ingestor() *telemetry.Ingestor { return c.ingestor }

// AlertBus returns the alert bus
func (c *Core) AlertBus() *alert.Bus { return c.bus }

// Gateway returns the realtime alert gateway
func (c *Core) Gateway() *gateway.Gateway { return c.gateway }

// TokenTTL returns the default lifetime of enrollment tokens
func (c *Core) TokenTTL() time.Duration { return c.tokenTTL }

// SessionTTL returns the default lifetime of session tokens
func (c *Core) SessionTTL() time.Duration { return c.sessionTTL }

// Close shuts the alert bus down and releases storage handles
func (c *Core) Close() (err error) {
	c.Lock()
	defer c.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}

	c.closed = true

	if c.bus != nil {
		c.bus.Close()
	}

	// releasing in reverse order of acquisition
	for i := len(c.closers) - 1; i >= 0; i-- {
		if _err := c.closers[i].Close(); _err != nil {
			c.Logger().Warn("failed to release storage handle", zap.Error(_err))
			if err == nil {
				err = _err
			}
		}
	}

	return err
}

// SetLogger setting a primary logger for the core
func (c *Core) SetLogger(logger *zap.Logger) error {
	// if logger is set, then giving it a name
	// to know the log context
	if logger != nil {
		logger = logger.Named("[aegis]")
	}

	c.logger = logger

	return nil
}

// Logger returns primary logger if is set, otherwise initializing and returning
// a new default emergency logger
// NOTE: will panic if it finally fails to obtain a logger
func (c *Core) Logger() *zap.Logger {
	if c.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			// having a working logger is crucial, thus must panic() if initialization fails
			panic(fmt.Errorf("failed to initialize core logger: %s", err))
		}

		c.logger = l.Named("[aegis]")
	}

	return c.logger
}
