package device

import (
	"context"
	"time"

	"github.com/agubarev/aegis/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx"
	"github.com/jackc/pgx/pgtype"
	"github.com/pkg/errors"
)

const deviceColumns = `id, account_id, fingerprint, status, credential_hash, created_at, revoked_at`

// PostgresStore is a pgx-backed device store
// NOTE: participates in a context transaction when there is one, this is
// how device creation commits together with token consumption
type PostgresStore struct {
	db *pgx.ConnPool
}

// NewPostgresStore initializes a postgres device store
func NewPostgresStore(db *pgx.ConnPool) (Store, error) {
	if db == nil {
		return nil, database.ErrNilDatabase
	}

	return &PostgresStore{db}, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row scanner) (d Device, err error) {
	var (
		id        pgtype.UUID
		accountID pgtype.UUID
		status    int16
		revokedAt pgtype.Timestamptz
	)

	if err = row.Scan(&id, &accountID, &d.Fingerprint, &status, &d.CredentialHash, &d.CreatedAt, &revokedAt); err != nil {
		return d, err
	}

	d.ID = uuid.UUID(id.Bytes)
	d.AccountID = uuid.UUID(accountID.Bytes)
	d.Status = Status(status)

	if revokedAt.Status == pgtype.Present {
		d.RevokedAt = revokedAt.Time
	}

	return d, nil
}

func (s *PostgresStore) oneDevice(ctx context.Context, q string, args ...interface{}) (d Device, err error) {
	d, err = scanDevice(database.ExecutorFor(ctx, s.db).QueryRowEx(ctx, q, nil, args...))

	switch err {
	case nil:
		return d, nil
	case pgx.ErrNoRows:
		return d, ErrDeviceNotFound
	default:
		return d, errors.Wrap(err, "failed to scan device")
	}
}

func (s *PostgresStore) CreateDevice(ctx context.Context, d Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	q := `
	INSERT INTO device(` + deviceColumns + `) 
	VALUES($1, $2, $3, $4, $5, $6, NULL)
	ON CONFLICT (id) DO NOTHING`

	cmd, err := database.ExecutorFor(ctx, s.db).ExecEx(
		ctx,
		q,
		nil,
		d.ID.String(), d.AccountID.String(), d.Fingerprint, int16(d.Status), d.CredentialHash, d.CreatedAt,
	)

	if err != nil {
		return errors.Wrap(err, "failed to execute insert statement")
	}

	if cmd.RowsAffected() == 0 {
		return ErrDuplicateDevice
	}

	return nil
}

func (s *PostgresStore) FetchDeviceByID(ctx context.Context, deviceID uuid.UUID) (Device, error) {
	return s.oneDevice(ctx, `SELECT `+deviceColumns+` FROM device WHERE id = $1 LIMIT 1`, deviceID.String())
}

func (s *PostgresStore) FetchDevicesByAccount(ctx context.Context, accountID uuid.UUID) (ds []Device, err error) {
	ds = make([]Device, 0)

	rows, err := database.ExecutorFor(ctx, s.db).QueryEx(
		ctx,
		`SELECT `+deviceColumns+` FROM device WHERE account_id = $1 ORDER BY created_at`,
		nil,
		accountID.String(),
	)

	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch devices")
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return ds, errors.Wrap(err, "failed to scan devices")
		}

		ds = append(ds, d)
	}

	return ds, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, deviceID uuid.UUID, from, to Status, at time.Time) (d Device, err error) {
	q := `
	UPDATE device 
	SET status = $3, revoked_at = CASE WHEN $3 = $5 THEN $4 ELSE revoked_at END
	WHERE id = $1 AND status = $2
	RETURNING ` + deviceColumns

	d, err = s.oneDevice(ctx, q, deviceID.String(), int16(from), int16(to), at, int16(SRevoked))
	if errors.Cause(err) != ErrDeviceNotFound {
		return d, err
	}

	// either missing or the status has moved on
	if _, err = s.FetchDeviceByID(ctx, deviceID); err != nil {
		return d, err
	}

	return d, ErrStatusConflict
}
