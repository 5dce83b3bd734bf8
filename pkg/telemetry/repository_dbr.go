package telemetry

import (
	"context"
	"time"

	"github.com/agubarev/aegis/pkg/severity"
	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"github.com/oklog/ulid"
	"github.com/pkg/errors"
)

// eventRow is the relational form of an event
type eventRow struct {
	ID          string          `db:"id"`
	DeviceID    string          `db:"device_id"`
	AccountID   string          `db:"account_id"`
	Kind        string          `db:"kind"`
	Severity    string          `db:"severity"`
	Score       dbr.NullFloat64 `db:"score"`
	OutOfOrder  bool            `db:"out_of_order"`
	Fingerprint string          `db:"fingerprint"`
	Payload     string          `db:"payload"`
	OccurredAt  time.Time       `db:"occurred_at"`
	ReceivedAt  time.Time       `db:"received_at"`
}

func rowFromEvent(e Event) (row eventRow, err error) {
	payload, err := json.Marshal(e.Payload())
	if err != nil {
		return row, errors.Wrap(err, "failed to encode payload")
	}

	row = eventRow{
		ID:          e.ID.String(),
		DeviceID:    e.DeviceID.String(),
		AccountID:   e.AccountID.String(),
		Kind:        string(e.Kind),
		Severity:    e.Severity.String(),
		OutOfOrder:  e.OutOfOrder,
		Fingerprint: e.Fingerprint,
		Payload:     string(payload),
		OccurredAt:  e.Timestamp,
		ReceivedAt:  e.ReceivedAt,
	}

	if e.Score != nil {
		row.Score = dbr.NewNullFloat64(*e.Score)
	}

	return row, nil
}

func (row eventRow) event() (e Event, err error) {
	if e.ID, err = ulid.Parse(row.ID); err != nil {
		return e, errors.Wrap(err, "invalid event id")
	}

	if e.DeviceID, err = uuid.Parse(row.DeviceID); err != nil {
		return e, errors.Wrap(err, "invalid device id")
	}

	if e.AccountID, err = uuid.Parse(row.AccountID); err != nil {
		return e, errors.Wrap(err, "invalid account id")
	}

	if e.Severity, err = severity.Parse(row.Severity); err != nil {
		return e, err
	}

	e.Kind = Kind(row.Kind)
	e.OutOfOrder = row.OutOfOrder
	e.Fingerprint = row.Fingerprint
	e.Timestamp = row.OccurredAt.UTC()
	e.ReceivedAt = row.ReceivedAt.UTC()

	if row.Score.Valid {
		score := row.Score.Float64
		e.Score = &score
	}

	payload := []byte(row.Payload)

	switch e.Kind {
	case KCommand:
		e.Command = new(CommandPayload)
		err = json.Unmarshal(payload, e.Command)
	case KMetric:
		e.Metric = new(MetricPayload)
		err = json.Unmarshal(payload, e.Metric)
	case KProcessSnapshot:
		e.Processes = new(ProcessSnapshotPayload)
		err = json.Unmarshal(payload, e.Processes)
	case KLog:
		e.Log = new(LogPayload)
		err = json.Unmarshal(payload, e.Log)
	default:
		return e, ErrUnknownKind
	}

	return e, errors.Wrap(err, "failed to decode payload")
}

// SQLRepository keeps the event history in postgres via dbr
type SQLRepository struct {
	db *dbr.Connection
}

// NewSQLRepository initializes a dbr-backed event repository
func NewSQLRepository(conn *dbr.Connection) (Repository, error) {
	if conn == nil {
		return nil, ErrNilDatabase
	}

	return &SQLRepository{db: conn}, nil
}

// Append inserts an event
func (r *SQLRepository) Append(ctx context.Context, e Event) error {
	row, err := rowFromEvent(e)
	if err != nil {
		return err
	}

	_, err = r.db.NewSession(nil).
		InsertInto("event").
		Columns(
			"id", "device_id", "account_id", "kind", "severity", "score",
			"out_of_order", "fingerprint", "payload", "occurred_at", "received_at",
		).
		Record(&row).
		ExecContext(ctx)

	if err != nil {
		return errors.Wrap(err, "failed to insert event")
	}

	return nil
}

// List returns newest events first
func (r *SQLRepository) List(ctx context.Context, q Query) (es []Event, err error) {
	stmt := r.db.NewSession(nil).
		Select("*").
		From("event").
		Where("account_id = ?", q.AccountID.String())

	if q.DeviceID != uuid.Nil {
		stmt = stmt.Where("device_id = ?", q.DeviceID.String())
	}

	rows := make([]eventRow, 0)

	_, err = stmt.
		OrderDesc("id").
		Limit(uint64(q.normalizedLimit())).
		LoadContext(ctx, &rows)

	if err != nil && err != dbr.ErrNotFound {
		return nil, errors.Wrap(err, "failed to list events")
	}

	es = make([]Event, 0, len(rows))
	for _, row := range rows {
		e, err := row.event()
		if err != nil {
			return nil, err
		}

		es = append(es, e)
	}

	return es, nil
}
