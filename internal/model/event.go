package model

import "time"

// EventKind tags a simulation event.
type EventKind string

const (
	EventStep  EventKind = "step"
	EventReset EventKind = "reset"
	EventLoad  EventKind = "load"
	EventPlay  EventKind = "play"
	EventPause EventKind = "pause"
	EventAtEnd EventKind = "end"
)

// Event is emitted by a session after every state transition that the
// presentation layer or external consumers may want to observe.
type Event struct {
	Kind     EventKind    `json:"kind"`
	Session  string       `json:"session"`
	RunID    string       `json:"runId"`
	Index    int          `json:"index"`
	Action   string       `json:"action,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Trade    *Trade       `json:"trade,omitempty"`
	Equity   *EquityPoint `json:"equity,omitempty"`
	Run      *RunRecord   `json:"run,omitempty"`
	Snapshot Snapshot     `json:"snapshot"`

	// At is the wall-clock emission time, used for delivery latency.
	At time.Time `json:"at"`
}
