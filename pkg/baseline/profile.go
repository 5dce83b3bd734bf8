package baseline

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMinObservations is how many observations a profile needs
// before it is considered mature
const DefaultMinObservations = 50

// Observation is the part of an event a profile learns from
type Observation struct {
	At time.Time

	// command
	Command string

	// metric
	HasMetrics bool
	CPU        float64
	Memory     float64
	Disk       float64

	// process snapshot
	HasProcesses bool
	Processes    []string

	// log
	LogSource string
}

// Profile is a per-device model of normal behaviour
type Profile struct {
	DeviceID uuid.UUID `cbor:"device_id" json:"device_id"`

	CPU           Stat `cbor:"cpu" json:"cpu"`
	Memory        Stat `cbor:"memory" json:"memory"`
	Disk          Stat `cbor:"disk" json:"disk"`
	ProcessCount  Stat `cbor:"process_count" json:"process_count"`
	CommandLength Stat `cbor:"command_length" json:"command_length"`

	Commands   ValueSet `cbor:"commands" json:"commands"`
	Processes  ValueSet `cbor:"processes" json:"processes"`
	LogSources ValueSet `cbor:"log_sources" json:"log_sources"`

	Hours        [24]uint64 `cbor:"hours" json:"hours"`
	Observations uint64     `cbor:"observations" json:"observations"`
	UpdatedAt    time.Time  `cbor:"updated_at" json:"updated_at"`
}

// NewProfile initializes an empty profile
func NewProfile(deviceID uuid.UUID, setCapacity int) Profile {
	return Profile{
		DeviceID:   deviceID,
		Commands:   NewValueSet(setCapacity),
		Processes:  NewValueSet(setCapacity),
		LogSources: NewValueSet(setCapacity),
	}
}

// IsMature tells whether the profile has seen enough to be trusted
func (p Profile) IsMature(minObservations uint64) bool {
	return p.Observations >= minObservations
}

// Observe folds an observation into the profile
func (p *Profile) Observe(o Observation) {
	if o.Command != "" {
		p.Commands.Touch(o.Command)
		p.CommandLength.Add(float64(len(o.Command)))
	}

	if o.HasMetrics {
		p.CPU.Add(o.CPU)
		p.Memory.Add(o.Memory)
		p.Disk.Add(o.Disk)
	}

	if o.HasProcesses {
		p.ProcessCount.Add(float64(len(o.Processes)))

		for _, name := range o.Processes {
			p.Processes.Touch(name)
		}
	}

	if o.LogSource != "" {
		p.LogSources.Touch(o.LogSource)
	}

	p.Hours[o.At.UTC().Hour()]++
	p.Observations++
	p.UpdatedAt = time.Now()
}

// Clone returns a deep copy
func (p Profile) Clone() Profile {
	c := p
	c.Commands = p.Commands.Clone()
	c.Processes = p.Processes.Clone()
	c.LogSources = p.LogSources.Clone()

	return c
}
