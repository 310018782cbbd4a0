// Package events records notable simulation occurrences for observers.
package events

// Categories used across subsystems.
const (
	CategoryTraffic  = "traffic"
	CategoryDisaster = "disaster"
	CategoryCitizen  = "citizen"
	CategoryEconomy  = "economy"
	CategoryPolicy   = "policy"
	CategoryResource = "resource"
	CategoryWeather  = "weather"
)

// Event is a notable occurrence in the city.
type Event struct {
	Time        float64 `json:"time" db:"sim_time"` // Game minutes since start
	Category    string  `json:"category" db:"category"`
	Description string  `json:"description" db:"description"`
}

// Log is a bounded event buffer. The oldest entries are dropped first.
type Log struct {
	cap    int
	events []Event
}

// NewLog creates a log holding at most capacity events.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Log{cap: capacity}
}

// Add appends events, trimming to capacity.
func (l *Log) Add(evs ...Event) {
	l.events = append(l.events, evs...)
	if len(l.events) > l.cap {
		l.events = append([]Event(nil), l.events[len(l.events)-l.cap:]...)
	}
}

// Recent returns a copy of the newest n events, oldest first.
func (l *Log) Recent(n int) []Event {
	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// Len returns the number of buffered events.
func (l *Log) Len() int { return len(l.events) }

// Recorder collects events inside a subsystem until the driver drains them.
type Recorder struct {
	pending []Event
}

// Record queues an event.
func (r *Recorder) Record(now float64, category, description string) {
	r.pending = append(r.pending, Event{Time: now, Category: category, Description: description})
}

// Drain returns and clears queued events.
func (r *Recorder) Drain() []Event {
	out := r.pending
	r.pending = nil
	return out
}
