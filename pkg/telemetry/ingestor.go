package telemetry

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/agubarev/aegis/pkg/anomaly"
	"github.com/agubarev/aegis/pkg/baseline"
	"github.com/agubarev/aegis/pkg/device"
	"github.com/agubarev/aegis/pkg/severity"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultSkewTolerance is how far back an event may be timestamped
// relative to the device's latest one before it is flagged out of order
const DefaultSkewTolerance = 5 * time.Second

// AlertSink receives every accepted event with its assessment and
// decides whether it becomes an alert
type AlertSink interface {
	Observe(e Event, a anomaly.Assessment) bool
}

// Ingestor authenticates, normalizes, scores and records telemetry
type Ingestor struct {
	devices    *device.Manager
	classifier *severity.Classifier
	scorer     *anomaly.Scorer
	baseline   *baseline.Store
	repo       Repository
	sink       AlertSink

	// latest accepted timestamp per device, written under the device lock
	lastSeen sync.Map

	skew            time.Duration
	normalThreshold float64
	now             func() time.Time
	logger          *zap.Logger
}

// NewIngestor initializes the ingestion pipeline; sink may be nil
func NewIngestor(
	devices *device.Manager,
	classifier *severity.Classifier,
	scorer *anomaly.Scorer,
	bs *baseline.Store,
	repo Repository,
	sink AlertSink,
) (*Ingestor, error) {
	if devices == nil {
		return nil, ErrNilDeviceManager
	}

	if classifier == nil {
		return nil, ErrNilClassifier
	}

	if scorer == nil {
		return nil, ErrNilScorer
	}

	if bs == nil {
		return nil, ErrNilBaseline
	}

	if repo == nil {
		return nil, ErrNilRepository
	}

	in := &Ingestor{
		devices:         devices,
		classifier:      classifier,
		scorer:          scorer,
		baseline:        bs,
		repo:            repo,
		sink:            sink,
		skew:            DefaultSkewTolerance,
		normalThreshold: anomaly.DefaultNormalThreshold,
		now:             time.Now,
	}

	return in, nil
}

// SetLogger assigns a logger to this ingestor
func (in *Ingestor) SetLogger(logger *zap.Logger) error {
	if logger != nil {
		logger = logger.Named("[ingest]")
	}

	in.logger = logger

	return nil
}

// Logger returns own logger
func (in *Ingestor) Logger() *zap.Logger {
	if in.logger == nil {
		in.logger = util.FallbackLogger(nil, "[ingest]")
	}

	return in.logger
}

// SetSkewTolerance sets the out-of-order tolerance
func (in *Ingestor) SetSkewTolerance(skew time.Duration) {
	if skew >= 0 {
		in.skew = skew
	}
}

// SetNormalThreshold sets the score at or below which an event may
// update the baseline
func (in *Ingestor) SetNormalThreshold(threshold float64) {
	if threshold > 0 && threshold <= 1 {
		in.normalThreshold = threshold
	}
}

// SetClock overrides the time source
func (in *Ingestor) SetClock(now func() time.Time) {
	if now != nil {
		in.now = now
	}
}

// authenticate maps device authentication failures onto ingestion errors
func (in *Ingestor) authenticate(ctx context.Context, credential string) (device.Device, error) {
	d, err := in.devices.Authenticate(ctx, credential)
	if err == nil {
		return d, nil
	}

	switch errors.Cause(err) {
	case device.ErrDeviceRevoked:
		eventsIngested.WithLabelValues("", resultRevoked).Inc()
		in.Logger().Warn("telemetry from revoked device rejected", zap.String("device_id", d.ID.String()))
		return d, ErrDeviceRevoked
	case device.ErrAuthInvalid, device.ErrDeviceNotFound, device.ErrMalformedCredential:
		eventsIngested.WithLabelValues("", resultAuth).Inc()
		in.Logger().Warn("telemetry authentication failed", zap.Error(err))
		return d, ErrAuthInvalid
	}

	eventsIngested.WithLabelValues("", resultError).Inc()

	return d, errors.Wrap(err, "failed to authenticate device")
}

// eligible tells whether an event may teach the baseline
// NOTE: while the profile is immature its score is a placeholder, so
// only severity gates learning
func (in *Ingestor) eligible(e Event, a anomaly.Assessment) bool {
	if e.Severity.IsAlerting() {
		return false
	}

	return !a.Mature || a.Score <= in.normalThreshold
}

// Ingest accepts a single event from an enrolled device
func (in *Ingestor) Ingest(ctx context.Context, credential string, raw RawEvent) (e Event, err error) {
	d, err := in.authenticate(ctx, credential)
	if err != nil {
		return e, err
	}

	now := in.now()

	e, err = Normalize(raw, now)
	if err != nil {
		kind := Kind(raw.Kind)
		if kind.Validate() != nil {
			kind = "unknown"
		}

		eventsIngested.WithLabelValues(string(kind), resultMalformed).Inc()
		in.Logger().Info("malformed event rejected", zap.String("device_id", d.ID.String()), zap.Error(err))
		return Event{}, err
	}

	canonical, err := json.Marshal(e.Payload())
	if err != nil {
		return Event{}, errors.Wrap(ErrMalformedEvent, err.Error())
	}

	e.DeviceID = d.ID
	e.AccountID = d.AccountID
	e.Fingerprint = fingerprint(d.ID, e.Kind, e.Timestamp, canonical)

	// everything below is serialized per device
	unlock := in.baseline.Lock(d.ID)
	defer unlock()

	e.ID = util.NewULID(now)

	last, seen := in.lastSeen.Load(d.ID)
	if seen && e.Timestamp.Before(last.(time.Time).Add(-in.skew)) {
		e.OutOfOrder = true
	}

	if e.Kind == KCommand {
		e.Severity = in.classifier.Classify(e.Command.Command)
	}

	profile, err := in.baseline.Profile(ctx, d.ID)
	if err != nil {
		eventsIngested.WithLabelValues(string(e.Kind), resultError).Inc()
		return Event{}, errors.Wrap(err, "failed to obtain baseline profile")
	}

	obs := e.Observation()
	assessment := in.scorer.Score(obs, profile)

	if assessment.ModelAvailable {
		score := assessment.Score
		e.Score = &score
	}

	if err = in.repo.Append(ctx, e); err != nil {
		eventsIngested.WithLabelValues(string(e.Kind), resultError).Inc()
		return Event{}, errors.Wrap(err, "failed to record event")
	}

	if !seen || e.Timestamp.After(last.(time.Time)) {
		in.lastSeen.Store(d.ID, e.Timestamp)
	}

	updated := in.eligible(e, assessment)
	if updated {
		if _, err = in.baseline.Update(ctx, d.ID, obs); err != nil {
			// the event is already recorded, only learning is lost
			updated = false
			in.Logger().Error("baseline update failed", zap.String("device_id", d.ID.String()), zap.Error(err))
		}
	}

	eventsIngested.WithLabelValues(string(e.Kind), resultAccepted).Inc()
	severityClassified.WithLabelValues(e.Severity.String()).Inc()
	baselineUpdates.WithLabelValues(strconv.FormatBool(updated)).Inc()

	if e.OutOfOrder {
		eventsOutOfOrder.Inc()
	}

	if in.sink != nil {
		in.sink.Observe(e, assessment)
	}

	in.Logger().Debug(
		"event accepted",
		zap.String("event_id", e.ID.String()),
		zap.String("device_id", d.ID.String()),
		zap.String("kind", string(e.Kind)),
		zap.Stringer("severity", e.Severity),
		zap.Float64("score", assessment.Score),
		zap.Bool("out_of_order", e.OutOfOrder),
		zap.Bool("baseline_updated", updated),
	)

	return e, nil
}

// ListEvents returns an account's recent events, newest first
func (in *Ingestor) ListEvents(ctx context.Context, accountID, deviceID uuid.UUID, limit int) ([]Event, error) {
	return in.repo.List(ctx, Query{AccountID: accountID, DeviceID: deviceID, Limit: limit})
}
