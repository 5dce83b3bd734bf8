package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx"
	"github.com/jackc/pgx/log/zapadapter"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// errors
var (
	ErrEmptyDSN    = errors.New("database dsn is empty")
	ErrNilDatabase = errors.New("database is nil")
)

// MaxConnections bounds the postgres connection pool
const MaxConnections = 16

// PostgreSQLConnection opens a connection pool to a postgres database by a given DSN
func PostgreSQLConnection(dsn string, logger *zap.Logger) (*pgx.ConnPool, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrEmptyDSN
	}

	conf, err := pgx.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse DSN")
	}

	// injecting logger into database instance
	if logger != nil {
		conf.Logger = zapadapter.NewLogger(logger.Named("[pgx]"))
		conf.LogLevel = pgx.LogLevelWarn
	}

	pool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:     conf,
		MaxConnections: MaxConnections,
	})

	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	return pool, nil
}

type txKey struct{}

// WithTx stores a transaction within the context so that stores
// participating in the same logical operation share it
func WithTx(ctx context.Context, tx *pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns a transaction previously stored by WithTx
func TxFromContext(ctx context.Context) (*pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*pgx.Tx)
	return tx, ok && tx != nil
}

// Executor is the common part of *pgx.ConnPool and *pgx.Tx used by stores
type Executor interface {
	ExecEx(ctx context.Context, sql string, options *pgx.QueryExOptions, arguments ...interface{}) (pgx.CommandTag, error)
	QueryEx(ctx context.Context, sql string, options *pgx.QueryExOptions, args ...interface{}) (*pgx.Rows, error)
	QueryRowEx(ctx context.Context, sql string, options *pgx.QueryExOptions, args ...interface{}) *pgx.Row
}

// ExecutorFor returns the context transaction if there is one,
// otherwise the pool itself
func ExecutorFor(ctx context.Context, conn *pgx.ConnPool) Executor {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}

	return conn
}
