package telemetry

import (
	"encoding/hex"
	"time"

	"github.com/agubarev/aegis/pkg/baseline"
	"github.com/agubarev/aegis/pkg/severity"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

const fingerprintDomain = "aegis.event.fingerprint"

// Kind of telemetry event
type Kind string

// event kinds
const (
	KCommand         Kind = "command"
	KMetric          Kind = "metric"
	KProcessSnapshot Kind = "process_snapshot"
	KLog             Kind = "log"
)

// Validate checks whether the kind is known
func (k Kind) Validate() error {
	switch k {
	case KCommand, KMetric, KProcessSnapshot, KLog:
		return nil
	}

	return ErrUnknownKind
}

// CommandPayload is an executed command line
type CommandPayload struct {
	Command string `json:"command" valid:"required,length(1|4096)"`
	User    string `json:"user,omitempty" valid:"optional,printableascii,length(1|64)"`
	Cwd     string `json:"cwd,omitempty" valid:"optional,length(1|4096)"`
}

// MetricPayload is a resource usage sample, in percent
type MetricPayload struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Disk   float64 `json:"disk"`
}

// Process is a single entry of a process snapshot
type Process struct {
	PID  int    `json:"pid"`
	Name string `json:"name" valid:"required,length(1|256)"`
	User string `json:"user,omitempty"`
}

// ProcessSnapshotPayload lists the processes running on a device
type ProcessSnapshotPayload struct {
	Processes []Process `json:"processes"`
}

// LogPayload is a single log line
type LogPayload struct {
	Source  string `json:"source" valid:"required,length(1|256)"`
	Level   string `json:"level,omitempty" valid:"optional,alphanum,length(1|16)"`
	Message string `json:"message" valid:"required,length(1|65536)"`
}

// Event is an accepted, immutable telemetry record
type Event struct {
	ID          ulid.ULID               `json:"id"`
	DeviceID    uuid.UUID               `json:"device_id"`
	AccountID   uuid.UUID               `json:"account_id"`
	Kind        Kind                    `json:"kind"`
	Timestamp   time.Time               `json:"timestamp"`
	ReceivedAt  time.Time               `json:"received_at"`
	Command     *CommandPayload         `json:"command,omitempty"`
	Metric      *MetricPayload          `json:"metric,omitempty"`
	Processes   *ProcessSnapshotPayload `json:"processes,omitempty"`
	Log         *LogPayload             `json:"log,omitempty"`
	Severity    severity.Severity       `json:"severity"`
	Score       *float64                `json:"score"`
	OutOfOrder  bool                    `json:"out_of_order"`
	Fingerprint string                  `json:"fingerprint"`
}

// Payload returns the kind-specific payload
func (e Event) Payload() interface{} {
	switch e.Kind {
	case KCommand:
		return e.Command
	case KMetric:
		return e.Metric
	case KProcessSnapshot:
		return e.Processes
	case KLog:
		return e.Log
	}

	return nil
}

// Observation extracts what a baseline profile learns from this event
func (e Event) Observation() baseline.Observation {
	o := baseline.Observation{At: e.Timestamp}

	switch e.Kind {
	case KCommand:
		o.Command = e.Command.Command
	case KMetric:
		o.HasMetrics = true
		o.CPU = e.Metric.CPU
		o.Memory = e.Metric.Memory
		o.Disk = e.Metric.Disk
	case KProcessSnapshot:
		o.HasProcesses = true
		o.Processes = make([]string, len(e.Processes.Processes))

		for i, p := range e.Processes.Processes {
			o.Processes[i] = p.Name
		}
	case KLog:
		o.LogSource = e.Log.Source
	}

	return o
}

// fingerprint computes the content digest of an event: same device,
// kind, timestamp and payload give the same fingerprint
func fingerprint(deviceID uuid.UUID, kind Kind, ts time.Time, canonical []byte) string {
	buf := make([]byte, 0, 16+len(kind)+32+len(canonical))
	buf = append(buf, deviceID[:]...)
	buf = append(buf, kind...)
	buf = append(buf, ts.UTC().Format(time.RFC3339Nano)...)
	buf = append(buf, canonical...)

	d := util.KeyedDigest(fingerprintDomain, buf)

	return hex.EncodeToString(d[:])
}
