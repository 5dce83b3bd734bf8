package alert

import (
	"time"

	"github.com/agubarev/aegis/pkg/anomaly"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/google/uuid"
)

// Reason why an event became an alert
type Reason string

// reasons
const (
	RSeverity Reason = "severity"
	RAnomaly  Reason = "anomaly"
)

// Alert is derived from an accepted event and is never persisted
type Alert struct {
	ID        uuid.UUID       `json:"id"`
	Event     telemetry.Event `json:"event"`
	Reasons   []Reason        `json:"reasons"`
	CreatedAt time.Time       `json:"created_at"`
}

// Reasons evaluates whether an event qualifies as an alert; no reasons
// means it does not
// NOTE: scores of immature profiles are placeholders and never alert
func Reasons(e telemetry.Event, a anomaly.Assessment, threshold float64) (reasons []Reason) {
	if e.Severity.IsAlerting() {
		reasons = append(reasons, RSeverity)
	}

	if a.Mature && a.ModelAvailable && a.Score >= threshold {
		reasons = append(reasons, RAnomaly)
	}

	return reasons
}

// Filter scopes a subscription to an account and optionally one device
type Filter struct {
	AccountID uuid.UUID
	DeviceID  uuid.UUID
}

// Matches tells whether the alert is visible through this filter
func (f Filter) Matches(a Alert) bool {
	if a.Event.AccountID != f.AccountID {
		return false
	}

	return f.DeviceID == uuid.Nil || a.Event.DeviceID == f.DeviceID
}
