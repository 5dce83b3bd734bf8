package telemetry

import (
	"math"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// payload limits
const (
	MaxProcesses     = 4096
	MaxFutureSkew    = 24 * time.Hour
	MaxMetricPercent = 100
)

// RawEvent is a single event as submitted by an agent
type RawEvent struct {
	Kind      string              `json:"kind"`
	Timestamp time.Time           `json:"timestamp"`
	Payload   jsoniter.RawMessage `json:"payload"`
}

func malformed(reason string) error {
	return errors.Wrap(ErrMalformedEvent, reason)
}

// Normalize validates a raw event and turns it into the canonical shape;
// any defect rejects the whole event
func Normalize(raw RawEvent, now time.Time) (e Event, err error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw.Kind)))
	if err = kind.Validate(); err != nil {
		return e, malformed("unknown kind " + raw.Kind)
	}

	if raw.Timestamp.IsZero() {
		return e, malformed("missing timestamp")
	}

	if raw.Timestamp.After(now.Add(MaxFutureSkew)) {
		return e, malformed("timestamp is too far in the future")
	}

	if len(raw.Payload) == 0 {
		return e, malformed("missing payload")
	}

	e = Event{
		Kind:       kind,
		Timestamp:  raw.Timestamp.UTC(),
		ReceivedAt: now.UTC(),
	}

	switch kind {
	case KCommand:
		e.Command = new(CommandPayload)
		err = decodePayload(raw.Payload, e.Command)
		if err == nil {
			e.Command.Command = strings.TrimSpace(e.Command.Command)
			err = validatePayload(e.Command)
		}
	case KMetric:
		e.Metric = new(MetricPayload)
		if err = decodePayload(raw.Payload, e.Metric); err == nil {
			err = validateMetric(e.Metric)
		}
	case KProcessSnapshot:
		e.Processes = new(ProcessSnapshotPayload)
		if err = decodePayload(raw.Payload, e.Processes); err == nil {
			err = validateProcesses(e.Processes)
		}
	case KLog:
		e.Log = new(LogPayload)
		if err = decodePayload(raw.Payload, e.Log); err == nil {
			err = validatePayload(e.Log)
		}
	}

	if err != nil {
		return Event{}, err
	}

	return e, nil
}

func decodePayload(payload []byte, target interface{}) error {
	if err := json.Unmarshal(payload, target); err != nil {
		return malformed("payload: " + err.Error())
	}

	return nil
}

func validatePayload(payload interface{}) error {
	if ok, err := govalidator.ValidateStruct(payload); !ok || err != nil {
		if err == nil {
			return malformed("payload validation failed")
		}

		return malformed(err.Error())
	}

	return nil
}

func validateMetric(m *MetricPayload) error {
	for name, v := range map[string]float64{"cpu": m.CPU, "memory": m.Memory, "disk": m.Disk} {
		if math.IsNaN(v) || v < 0 || v > MaxMetricPercent {
			return malformed(name + " must be within [0, 100]")
		}
	}

	return nil
}

func validateProcesses(ps *ProcessSnapshotPayload) error {
	if len(ps.Processes) == 0 {
		return malformed("empty process snapshot")
	}

	if len(ps.Processes) > MaxProcesses {
		return malformed("too many processes")
	}

	for i := range ps.Processes {
		ps.Processes[i].Name = strings.TrimSpace(ps.Processes[i].Name)

		if ps.Processes[i].PID < 0 {
			return malformed("negative pid")
		}

		if err := validatePayload(&ps.Processes[i]); err != nil {
			return err
		}
	}

	return nil
}
