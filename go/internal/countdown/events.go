package countdown

import "time"

// EventType is the name a countdown event is emitted under on the wire
type EventType string

const (
	EventTypeTimeUpdate EventType = "time-update"
	EventTypeTimeUp     EventType = "time-up"
)

// Event is a single emission of a countdown session
type Event struct {
	Room      string
	Type      EventType
	Remaining int
	EmittedAt time.Time
}

// Emitter receives every event a session produces. Implementations must not block;
// the session holds its lock while emitting so ticks stay ordered.
type Emitter interface {
	Emit(event Event)
}

// Snapshot is a point-in-time view of a session
type Snapshot struct {
	Room             string     `json:"room"`
	RemainingSeconds int        `json:"remaining_seconds"`
	DurationSeconds  int        `json:"duration_seconds"`
	Active           bool       `json:"active"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
}
