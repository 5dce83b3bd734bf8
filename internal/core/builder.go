package core

import (
	"context"
	"crypto/rsa"
	"io"
	"time"

	"github.com/agubarev/aegis/internal/config"
	"github.com/agubarev/aegis/pkg/alert"
	"github.com/agubarev/aegis/pkg/anomaly"
	"github.com/agubarev/aegis/pkg/baseline"
	"github.com/agubarev/aegis/pkg/database"
	"github.com/agubarev/aegis/pkg/device"
	"github.com/agubarev/aegis/pkg/enrollment"
	"github.com/agubarev/aegis/pkg/gateway"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/severity"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/agubarev/aegis/pkg/token"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// closerFunc adapts a function to io.Closer
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// stores is the set of persistence backends selected by configuration
type stores struct {
	tokens   token.Store
	devices  device.Store
	events   telemetry.Repository
	profiles baseline.ProfileRepository
	closers  []io.Closer
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i].Close()
	}
}

// New builds a complete core out of a given configuration
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (c *Core, err error) {
	if logger == nil {
		return nil, ErrNilLogger
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	//---------------------------------------------------------------------------
	// session signing key
	//---------------------------------------------------------------------------
	if cfg.Session.PrivateKey == "" {
		return nil, ErrMissingKey
	}

	key, err := session.LoadPrivateKey(cfg.Session.PrivateKey)
	if err != nil {
		return nil, err
	}

	//---------------------------------------------------------------------------
	// storage
	//---------------------------------------------------------------------------
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c, err = assemble(cfg, key, st, logger)
	if err != nil {
		st.close()
		return nil, err
	}

	return c, nil
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *stores, err error) {
	st := new(stores)

	defer func() {
		if err != nil {
			st.close()
		}
	}()

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		st.tokens = token.NewMemoryStore()
		st.devices = device.NewMemoryStore()
		st.events = telemetry.NewMemoryRepository()
	case config.DriverPostgres:
		pool, err := database.PostgreSQLConnection(cfg.Storage.DSN, logger)
		if err != nil {
			return nil, err
		}

		st.closers = append(st.closers, closerFunc(func() error {
			pool.Close()
			return nil
		}))

		if _, err = pool.ExecEx(ctx, database.Schema, nil); err != nil {
			return nil, errors.Wrap(err, "failed to apply database schema")
		}

		if st.tokens, err = token.NewPostgresStore(pool); err != nil {
			return nil, err
		}

		if st.devices, err = device.NewPostgresStore(pool); err != nil {
			return nil, err
		}

		conn, err := database.DBRConnection(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}

		st.closers = append(st.closers, conn)

		if st.events, err = telemetry.NewSQLRepository(conn); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedStore, "%q", cfg.Storage.Driver)
	}

	// baseline profiles are persisted separately from everything else
	if cfg.Baseline.Path == "" {
		st.profiles = baseline.NewMemoryRepository()
		return st, nil
	}

	db, err := bbolt.Open(cfg.Baseline.Path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open baseline database %s", cfg.Baseline.Path)
	}

	st.closers = append(st.closers, db)

	repo, err := baseline.NewBoltRepository(db)
	if err != nil {
		return nil, err
	}

	if err = repo.Init(); err != nil {
		return nil, err
	}

	st.profiles = repo

	return st, nil
}

// assemble wires components together over already opened stores
func assemble(cfg config.Config, key *rsa.PrivateKey, st *stores, logger *zap.Logger) (c *Core, err error) {
	c = &Core{
		rulesPath:  cfg.Severity.RulesPath,
		modelPath:  cfg.Anomaly.ModelPath,
		watchRules: cfg.Severity.Watch,
		watchModel: cfg.Anomaly.Watch,
		tokenTTL:   cfg.Enrollment.TokenTTL,
		sessionTTL: cfg.Session.TTL,
		closers:    st.closers,
	}

	if err = c.SetLogger(logger); err != nil {
		return nil, err
	}

	//---------------------------------------------------------------------------
	// enrollment
	//---------------------------------------------------------------------------
	if c.tokens, err = token.NewManager(st.tokens); err != nil {
		return nil, err
	}

	if err = c.tokens.SetLogger(logger); err != nil {
		return nil, err
	}

	if c.devices, err = device.NewManager(st.devices, cfg.Device.CacheLifetime); err != nil {
		return nil, err
	}

	if err = c.devices.SetHashCost(cfg.Device.HashCost); err != nil {
		return nil, err
	}

	if err = c.devices.SetLogger(logger); err != nil {
		return nil, err
	}

	if c.enrollment, err = enrollment.NewService(c.tokens, c.devices); err != nil {
		return nil, err
	}

	if err = c.enrollment.SetLogger(logger); err != nil {
		return nil, err
	}

	//---------------------------------------------------------------------------
	// sessions
	//---------------------------------------------------------------------------
	if c.sessions, err = session.NewAuthority(key); err != nil {
		return nil, err
	}

	c.sessions.SetSkew(cfg.Session.Skew)

	if err = c.sessions.SetLogger(logger); err != nil {
		return nil, err
	}

	//---------------------------------------------------------------------------
	// detection
	//---------------------------------------------------------------------------
	if c.classifier, err = severity.NewClassifier(severity.DefaultRules()); err != nil {
		return nil, err
	}

	if err = c.classifier.SetLogger(logger); err != nil {
		return nil, err
	}

	c.scorer = anomaly.NewScorer(cfg.Anomaly.MinObservations)
	if err = c.scorer.SetLogger(logger); err != nil {
		return nil, err
	}

	if c.baseline, err = baseline.NewStore(st.profiles, cfg.Baseline.SetCapacity); err != nil {
		return nil, err
	}

	if err = c.baseline.SetLogger(logger); err != nil {
		return nil, err
	}

	//---------------------------------------------------------------------------
	// alerting
	//---------------------------------------------------------------------------
	c.bus = alert.NewBus(cfg.Anomaly.AlertThreshold)
	if err = c.bus.SetLogger(logger); err != nil {
		return nil, err
	}

	if c.gateway, err = gateway.NewGateway(c.sessions, c.bus, cfg.Server.QueueBound); err != nil {
		return nil, err
	}

	c.gateway.SetHeartbeat(cfg.Server.Heartbeat)

	if err = c.gateway.SetLogger(logger); err != nil {
		return nil, err
	}

	//---------------------------------------------------------------------------
	// ingestion
	//---------------------------------------------------------------------------
	c.ingestor, err = telemetry.NewIngestor(c.devices, c.classifier, c.scorer, c.baseline, st.events, c.bus)
	if err != nil {
		return nil, err
	}

	c.ingestor.SetSkewTolerance(cfg.Telemetry.SkewTolerance)
	c.ingestor.SetNormalThreshold(cfg.Anomaly.NormalThreshold)

	if err = c.ingestor.SetLogger(logger); err != nil {
		return nil, err
	}

	return c, c.Validate()
}

// BuildLogger constructs the process logger from configuration
func BuildLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.LogDir != "" {
		if err := util.CreateDirectoryIfNotExists(cfg.LogDir, 0700); err != nil {
			return nil, errors.Wrap(err, "failed to prepare log directory")
		}
	}

	return util.DefaultLogger(cfg.Debug, cfg.LogDir)
}
