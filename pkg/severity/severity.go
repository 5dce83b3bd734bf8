package severity

import (
	"strings"
)

// Severity of a classified event
type Severity uint8

// severity levels, ascending
const (
	Normal Severity = iota
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Normal:
		return "normal"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	}

	return "unknown"
}

// Parse parses a severity name
func Parse(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return Normal, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	case "critical":
		return Critical, nil
	}

	return Normal, ErrUnknownSeverity
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	if s > Critical {
		return nil, ErrUnknownSeverity
	}

	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(text []byte) (err error) {
	*s, err = Parse(string(text))
	return err
}

// IsAlerting tells whether this severity alone raises an alert
func (s Severity) IsAlerting() bool {
	return s >= High
}
