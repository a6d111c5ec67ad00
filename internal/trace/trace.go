package trace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one recorded step of handling a search request
type Event struct {
	Time   time.Time `json:"time"`
	Step   string    `json:"step"`
	Detail string    `json:"detail,omitempty"`
}

// Trace is an append-only record of how a request was handled. It is threaded
// explicitly through the router and searcher and returned with the result, so
// an explainability view needs no shared mutable state. Events are only ever
// appended, never edited or removed.
type Trace struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
	Events  []Event   `json:"events"`
}

// New returns an empty trace with a fresh identifier
func New() *Trace {
	return &Trace{
		ID:      uuid.NewString(),
		Started: time.Now(),
	}
}

// Add appends a single event. Calling Add on a nil trace is a no-op, so
// components can thread an optional trace without guarding every call site.
func (t *Trace) Add(step, format string, args ...any) {
	if t == nil {
		return
	}
	t.Events = append(t.Events, Event{
		Time:   time.Now(),
		Step:   step,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Len reports the number of recorded events, 0 for a nil trace
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Events)
}
