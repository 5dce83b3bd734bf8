package token

import (
	"context"
	"time"

	"github.com/agubarev/aegis/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx"
	"github.com/jackc/pgx/pgtype"
	"github.com/pkg/errors"
)

type postgresStore struct {
	db *pgx.ConnPool
}

// NewPostgresStore initializes and returns a new postgres token store
func NewPostgresStore(db *pgx.ConnPool) (Store, error) {
	if db == nil {
		return nil, database.ErrNilDatabase
	}

	return &postgresStore{db}, nil
}

func (s *postgresStore) scanOne(row *pgx.Row) (t Token, err error) {
	var (
		hash       []byte
		accountID  pgtype.UUID
		consumedAt pgtype.Timestamptz
		deviceID   pgtype.UUID
	)

	err = row.Scan(&hash, &t.Issuer, &accountID, &t.CreatedAt, &t.ExpireAt, &consumedAt, &deviceID)

	switch err {
	case nil:
	case pgx.ErrNoRows:
		return t, ErrTokenNotFound
	default:
		return t, errors.Wrap(err, "failed to scan token")
	}

	t.Kind = TEnrollment
	copy(t.Hash[:], hash)

	t.AccountID = uuid.UUID(accountID.Bytes)

	if consumedAt.Status == pgtype.Present {
		t.ConsumedAt = consumedAt.Time
	}

	if deviceID.Status == pgtype.Present {
		t.DeviceID = uuid.UUID(deviceID.Bytes)
	}

	return t, nil
}

// Put stores a new token
func (s *postgresStore) Put(ctx context.Context, t Token) error {
	if t.Hash.IsZero() {
		return ErrEmptyTokenHash
	}

	q := `
	INSERT INTO enrollment_token(hash, issuer, account_id, created_at, expire_at) 
	VALUES($1, $2, $3, $4, $5)
	ON CONFLICT (hash) DO NOTHING`

	cmd, err := s.db.ExecEx(ctx, q, nil, t.Hash[:], t.Issuer, t.AccountID.String(), t.CreatedAt, t.ExpireAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert token")
	}

	if cmd.RowsAffected() == 0 {
		return ErrDuplicateToken
	}

	return nil
}

// Get retrieves token from a store
func (s *postgresStore) Get(ctx context.Context, hash Hash) (Token, error) {
	q := `
	SELECT hash, issuer, account_id, created_at, expire_at, consumed_at, device_id
	FROM enrollment_token
	WHERE hash = $1
	LIMIT 1`

	return s.scanOne(database.ExecutorFor(ctx, s.db).QueryRowEx(ctx, q, nil, hash[:]))
}

// Consume claims the token inside a transaction; the transaction is passed
// down through the context so that whatever fn creates commits or rolls
// back together with the claim
func (s *postgresStore) Consume(ctx context.Context, hash Hash, now time.Time, fn RedeemFunc) (t Token, err error) {
	tx, err := s.db.BeginEx(ctx, nil)
	if err != nil {
		return t, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	txctx := database.WithTx(ctx, tx)

	q := `
	UPDATE enrollment_token 
	SET consumed_at = $2
	WHERE hash = $1 AND consumed_at IS NULL AND expire_at > $2
	RETURNING hash, issuer, account_id, created_at, expire_at, consumed_at, device_id`

	t, err = s.scanOne(tx.QueryRowEx(txctx, q, nil, hash[:], now))
	if err != nil {
		if errors.Cause(err) != ErrTokenNotFound {
			return t, err
		}

		// lost the claim; figuring out why
		t, err = s.scanOne(tx.QueryRowEx(txctx, `SELECT hash, issuer, account_id, created_at, expire_at, consumed_at, device_id FROM enrollment_token WHERE hash = $1`, nil, hash[:]))
		if err != nil {
			return t, err
		}

		if err = t.Validate(now); err != nil {
			return t, err
		}

		return t, ErrTokenAlreadyUsed
	}

	if fn != nil {
		if t, err = fn(txctx, t); err != nil {
			return t, err
		}
	}

	if _, err = tx.ExecEx(txctx, `UPDATE enrollment_token SET device_id = $2 WHERE hash = $1`, nil, hash[:], t.DeviceID.String()); err != nil {
		return t, errors.Wrap(err, "failed to bind device to token")
	}

	if err = tx.CommitEx(ctx); err != nil {
		return t, errors.Wrap(err, "failed to commit token consumption")
	}

	return t, nil
}
