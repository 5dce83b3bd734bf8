package telemetry_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agubarev/aegis/pkg/alert"
	"github.com/agubarev/aegis/pkg/anomaly"
	"github.com/agubarev/aegis/pkg/baseline"
	"github.com/agubarev/aegis/pkg/device"
	"github.com/agubarev/aegis/pkg/severity"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type pipeline struct {
	devices  *device.Manager
	scorer   *anomaly.Scorer
	baseline *baseline.Store
	repo     telemetry.Repository
	bus      *alert.Bus
	ingestor *telemetry.Ingestor
}

func newPipeline(t *testing.T) *pipeline {
	p := &pipeline{}

	var err error

	p.devices, err = device.NewManager(device.NewMemoryStore(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, p.devices.SetHashCost(bcrypt.MinCost))
	require.NoError(t, p.devices.SetLogger(zap.NewNop()))

	classifier, err := severity.NewClassifier(severity.DefaultRules())
	require.NoError(t, err)
	require.NoError(t, classifier.SetLogger(zap.NewNop()))

	p.scorer = anomaly.NewScorer(baseline.DefaultMinObservations)
	require.NoError(t, p.scorer.SetLogger(zap.NewNop()))

	p.baseline, err = baseline.NewStore(baseline.NewMemoryRepository(), 0)
	require.NoError(t, err)
	require.NoError(t, p.baseline.SetLogger(zap.NewNop()))

	p.repo = telemetry.NewMemoryRepository()

	p.bus = alert.NewBus(anomaly.DefaultAlertThreshold)
	require.NoError(t, p.bus.SetLogger(zap.NewNop()))

	p.ingestor, err = telemetry.NewIngestor(p.devices, classifier, p.scorer, p.baseline, p.repo, p.bus)
	require.NoError(t, err)
	require.NoError(t, p.ingestor.SetLogger(zap.NewNop()))

	return p
}

func (p *pipeline) enroll(t *testing.T, accountID uuid.UUID) (device.Device, string) {
	d, c, err := p.devices.Create(context.Background(), accountID, "F-test-device")
	require.NoError(t, err)

	return d, c.String()
}

func command(at time.Time, cmd string) telemetry.RawEvent {
	return telemetry.RawEvent{
		Kind:      "command",
		Timestamp: at,
		Payload:   []byte(fmt.Sprintf(`{"command":%q,"user":"ops"}`, cmd)),
	}
}

// isolates unseen commands immediately, everything else takes long
func unseenCommandModel() *anomaly.Model {
	return &anomaly.Model{
		Version:    anomaly.ModelVersion,
		SampleSize: 256,
		Features:   anomaly.FeatureCount,
		Trees: []anomaly.Tree{{
			Nodes: []anomaly.Node{
				{Feature: anomaly.FUnseenCommand, Threshold: 0.5, Left: 1, Right: 2, Size: 257},
				{Left: -1, Right: -1, Size: 256},
				{Left: -1, Right: -1, Size: 1},
			},
		}},
	}
}

func TestCriticalCommandAfterWarmup(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	p := newPipeline(t)
	accountID := uuid.New()
	d, credential := p.enroll(t, accountID)

	sub, err := p.bus.Subscribe(alert.Filter{AccountID: accountID}, 100)
	require.NoError(t, err)
	defer sub.Close()

	// ====================================================================================
	// 60 routine events across varied hours, each one teaches the baseline
	// ====================================================================================
	start := time.Now().Add(-72 * time.Hour).Truncate(time.Hour)

	for i := 0; i < 60; i++ {
		e, err := p.ingestor.Ingest(ctx, credential, command(start.Add(time.Duration(i)*time.Hour), "ls -la"))
		require.NoError(t, err)
		a.Equal(severity.Normal, e.Severity)
		a.False(e.OutOfOrder)
		a.Nil(e.Score)
	}

	profile, err := p.baseline.Profile(ctx, d.ID)
	a.NoError(err)
	a.EqualValues(60, profile.Observations)
	a.True(profile.IsMature(baseline.DefaultMinObservations))
	a.Empty(sub.Drain())

	// ====================================================================================
	// event 61 is destructive
	// ====================================================================================
	e, err := p.ingestor.Ingest(ctx, credential, command(start.Add(61*time.Hour), "rm -rf /"))
	a.NoError(err)
	a.Equal(severity.Critical, e.Severity)

	alerts := sub.Drain()
	require.Len(t, alerts, 1)
	a.Equal(e.ID, alerts[0].Event.ID)
	a.Contains(alerts[0].Reasons, alert.RSeverity)

	// critical events never teach the baseline
	profile, err = p.baseline.Profile(ctx, d.ID)
	a.NoError(err)
	a.EqualValues(60, profile.Observations)
	a.False(profile.Commands.Contains("rm -rf /"))

	events, err := p.ingestor.ListEvents(ctx, accountID, d.ID, 0)
	a.NoError(err)
	a.Len(events, 50)
	a.Equal(e.ID, events[0].ID)

	events, err = p.ingestor.ListEvents(ctx, accountID, d.ID, 1000)
	a.NoError(err)
	a.Len(events, 61)
}

func TestAnomalousEventsAreExcludedFromBaseline(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	p := newPipeline(t)
	accountID := uuid.New()
	d, credential := p.enroll(t, accountID)

	require.NoError(t, p.scorer.SetModel(unseenCommandModel()))

	sub, err := p.bus.Subscribe(alert.Filter{AccountID: accountID, DeviceID: d.ID}, 100)
	require.NoError(t, err)
	defer sub.Close()

	start := time.Now().Add(-24 * time.Hour)

	// warm-up: immature scores are placeholders and never alert
	for i := 0; i < baseline.DefaultMinObservations; i++ {
		e, err := p.ingestor.Ingest(ctx, credential, command(start.Add(time.Duration(i)*time.Minute), "uptime"))
		require.NoError(t, err)
		require.NotNil(t, e.Score)
		a.Equal(1.0, *e.Score)
	}

	a.Empty(sub.Drain())

	// known command after maturity
	e, err := p.ingestor.Ingest(ctx, credential, command(start.Add(time.Hour), "uptime"))
	a.NoError(err)
	require.NotNil(t, e.Score)
	a.True(*e.Score < anomaly.DefaultNormalThreshold)
	a.Empty(sub.Drain())

	before, err := p.baseline.Profile(ctx, d.ID)
	a.NoError(err)
	a.EqualValues(baseline.DefaultMinObservations+1, before.Observations)

	// unseen, benign-looking command
	e, err = p.ingestor.Ingest(ctx, credential, command(start.Add(2*time.Hour), "curl -s http://203.0.113.7/a"))
	a.NoError(err)
	require.NotNil(t, e.Score)
	a.True(*e.Score >= anomaly.DefaultAlertThreshold)
	a.Equal(severity.Normal, e.Severity)

	alerts := sub.Drain()
	require.Len(t, alerts, 1)
	a.Equal([]alert.Reason{alert.RAnomaly}, alerts[0].Reasons)

	after, err := p.baseline.Profile(ctx, d.ID)
	a.NoError(err)
	a.Equal(before.Observations, after.Observations)
	a.False(after.Commands.Contains("curl -s http://203.0.113.7/a"))
}

func TestRevokedDeviceIsRejected(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	p := newPipeline(t)
	d, credential := p.enroll(t, uuid.New())

	_, err := p.ingestor.Ingest(ctx, credential, command(time.Now(), "ls"))
	a.NoError(err)

	_, err = p.devices.Revoke(ctx, d.ID)
	a.NoError(err)

	for i := 0; i < 3; i++ {
		_, err = p.ingestor.Ingest(ctx, credential, command(time.Now(), "ls"))
		a.Equal(telemetry.ErrDeviceRevoked, err)
	}

	_, err = p.ingestor.Ingest(ctx, "aeg_garbage", command(time.Now(), "ls"))
	a.Equal(telemetry.ErrAuthInvalid, err)

	// a well-formed credential of an unknown device
	stranger, err := device.NewCredential(uuid.New())
	a.NoError(err)

	_, err = p.ingestor.Ingest(ctx, stranger.String(), command(time.Now(), "ls"))
	a.Equal(telemetry.ErrAuthInvalid, err)
}

func TestMalformedEventHasNoSideEffects(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	p := newPipeline(t)
	accountID := uuid.New()
	d, credential := p.enroll(t, accountID)

	now := time.Now()

	malformed := []telemetry.RawEvent{
		{Kind: "keystroke", Timestamp: now, Payload: []byte(`{}`)},
		{Kind: "command", Payload: []byte(`{"command":"ls"}`)},
		{Kind: "command", Timestamp: now, Payload: []byte(`{"command":"   "}`)},
		{Kind: "command", Timestamp: now, Payload: []byte(`{"command":`)},
		{Kind: "command", Timestamp: now},
		{Kind: "metric", Timestamp: now, Payload: []byte(`{"cpu":120,"memory":10,"disk":10}`)},
		{Kind: "metric", Timestamp: now, Payload: []byte(`{"cpu":-1,"memory":10,"disk":10}`)},
		{Kind: "process_snapshot", Timestamp: now, Payload: []byte(`{"processes":[]}`)},
		{Kind: "process_snapshot", Timestamp: now, Payload: []byte(`{"processes":[{"pid":1,"name":""}]}`)},
		{Kind: "log", Timestamp: now, Payload: []byte(`{"source":"syslog"}`)},
		{Kind: "log", Timestamp: now.Add(48 * time.Hour), Payload: []byte(`{"source":"syslog","message":"x"}`)},
	}

	for i, raw := range malformed {
		_, err := p.ingestor.Ingest(ctx, credential, raw)
		a.Equal(telemetry.ErrMalformedEvent, errors.Cause(err), "case #%d", i)
	}

	events, err := p.ingestor.ListEvents(ctx, accountID, d.ID, 0)
	a.NoError(err)
	a.Empty(events)

	profile, err := p.baseline.Profile(ctx, d.ID)
	a.NoError(err)
	a.EqualValues(0, profile.Observations)

	// the stream continues unaffected
	valid := []telemetry.RawEvent{
		{Kind: "metric", Timestamp: now, Payload: []byte(`{"cpu":12.5,"memory":40,"disk":70}`)},
		{Kind: "process_snapshot", Timestamp: now, Payload: []byte(`{"processes":[{"pid":1,"name":"init"},{"pid":42,"name":"sshd","user":"root"}]}`)},
		{Kind: "LOG", Timestamp: now, Payload: []byte(`{"source":"auth.log","level":"warning","message":"failed password"}`)},
	}

	for _, raw := range valid {
		_, err = p.ingestor.Ingest(ctx, credential, raw)
		a.NoError(err)
	}

	events, err = p.ingestor.ListEvents(ctx, accountID, d.ID, 0)
	a.NoError(err)
	a.Len(events, 3)

	profile, err = p.baseline.Profile(ctx, d.ID)
	a.NoError(err)
	a.EqualValues(3, profile.Observations)
	a.True(profile.Processes.Contains("sshd"))
	a.True(profile.LogSources.Contains("auth.log"))
}

func TestOutOfOrderEvents(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	p := newPipeline(t)
	accountID := uuid.New()
	_, credential := p.enroll(t, accountID)

	base := time.Now().Add(-time.Hour)

	e, err := p.ingestor.Ingest(ctx, credential, command(base, "ls"))
	a.NoError(err)
	a.False(e.OutOfOrder)

	// within tolerance
	e, err = p.ingestor.Ingest(ctx, credential, command(base.Add(-3*time.Second), "ls"))
	a.NoError(err)
	a.False(e.OutOfOrder)

	// beyond tolerance, still accepted
	late, err := p.ingestor.Ingest(ctx, credential, command(base.Add(-10*time.Second), "ls"))
	a.NoError(err)
	a.True(late.OutOfOrder)

	// the reference point is the latest timestamp, not the latest arrival
	e, err = p.ingestor.Ingest(ctx, credential, command(base.Add(-4*time.Second), "ls"))
	a.NoError(err)
	a.False(e.OutOfOrder)

	// duplicates are distinct events sharing a fingerprint
	dup1, err := p.ingestor.Ingest(ctx, credential, command(base.Add(time.Second), "whoami"))
	a.NoError(err)

	dup2, err := p.ingestor.Ingest(ctx, credential, command(base.Add(time.Second), "whoami"))
	a.NoError(err)

	a.NotEqual(dup1.ID, dup2.ID)
	a.Equal(dup1.Fingerprint, dup2.Fingerprint)
	a.NotEqual(late.Fingerprint, dup1.Fingerprint)
}

func TestListEventsScoping(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	p := newPipeline(t)
	accountID := uuid.New()
	d1, c1 := p.enroll(t, accountID)
	_, c2 := p.enroll(t, accountID)
	_, foreign := p.enroll(t, uuid.New())

	for i := 0; i < 5; i++ {
		for _, c := range []string{c1, c2, foreign} {
			_, err := p.ingestor.Ingest(ctx, c, command(time.Now(), "uptime"))
			require.NoError(t, err)
		}
	}

	events, err := p.ingestor.ListEvents(ctx, accountID, uuid.Nil, 0)
	a.NoError(err)
	a.Len(events, 10)

	for i := 1; i < len(events); i++ {
		a.True(events[i-1].ID.Compare(events[i].ID) > 0)
	}

	events, err = p.ingestor.ListEvents(ctx, accountID, d1.ID, 3)
	a.NoError(err)
	a.Len(events, 3)

	for _, e := range events {
		a.Equal(d1.ID, e.DeviceID)
	}
}
