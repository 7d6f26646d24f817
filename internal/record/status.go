package record

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state shared by nodes and agents.
//
// The machine is: unknown → starting → ready ⇄ busy, any state → error,
// any state → offline. Offline is reached either by an explicit stop or by
// the staleness sweep; it is not terminal - a component that re-registers
// and heartbeats moves forward again through starting.
type Status int

const (
	StatusUnknown Status = iota
	StatusStarting
	StatusReady
	StatusBusy
	StatusError
	StatusOffline
)

var statusNames = map[Status]string{
	StatusUnknown:  "unknown",
	StatusStarting: "starting",
	StatusReady:    "ready",
	StatusBusy:     "busy",
	StatusError:    "error",
	StatusOffline:  "offline",
}

// String returns the lowercase wire name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus converts a wire name back to a Status.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", name)
}

// CanTransition reports whether moving from s to next is a legal step.
// Error and offline are reachable from anywhere; the forward path is
// unknown → starting → ready ⇄ busy. A component leaving error or offline
// must pass through starting again.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch next {
	case StatusError, StatusOffline:
		return true
	case StatusStarting:
		return s == StatusUnknown || s == StatusError || s == StatusOffline
	case StatusReady:
		return s == StatusStarting || s == StatusBusy
	case StatusBusy:
		return s == StatusReady
	default:
		return false
	}
}

// MarshalJSON encodes the status as its wire name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a wire name into a status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
