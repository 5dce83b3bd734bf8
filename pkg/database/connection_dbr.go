package database

import (
	"strings"

	"github.com/gocraft/dbr/v2"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// DBRConnection opens a dbr connection to a postgres database through lib/pq
func DBRConnection(dsn string) (*dbr.Connection, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrEmptyDSN
	}

	conn, err := dbr.Open("postgres", dsn, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open dbr connection")
	}

	if err = conn.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return conn, nil
}
