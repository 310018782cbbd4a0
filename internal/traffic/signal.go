package traffic

import (
	"github.com/talgya/mini-city/internal/mathx"
	"github.com/talgya/mini-city/internal/spatial"
)

// Color is a traffic light state.
type Color uint8

const (
	Red Color = iota
	Green
	Yellow
)

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	}
	return "unknown"
}

// Signal is a traffic light. Its colour is derived from the timer's position in
// the red, green, yellow cycle, so exactly one colour is ever active.
type Signal struct {
	ID       string       `json:"id"`
	Position spatial.Vec3 `json:"position"`
	Red      float64      `json:"red"`
	Green    float64      `json:"green"`
	Yellow   float64      `json:"yellow"`
	Timer    float64      `json:"timer"` // Time into the current cycle
	Adaptive bool         `json:"adaptive"`

	BaseGreen     float64 `json:"base_green"`
	QueueEstimate float64 `json:"queue_estimate"`
	PendingGreen  float64 `json:"pending_green,omitempty"`
	sinceAdapt    float64
}

// Cycle returns the full cycle length.
func (s *Signal) Cycle() float64 { return s.Red + s.Green + s.Yellow }

// Color returns the active colour.
func (s *Signal) Color() Color {
	switch t := s.Timer; {
	case t < s.Red:
		return Red
	case t < s.Red+s.Green:
		return Green
	default:
		return Yellow
	}
}

// tick advances the timer, wrapping at the cycle boundary. A pending green
// duration only takes effect on a wrap so the running cycle keeps its dwell times.
func (s *Signal) tick(dt float64) {
	cycle := s.Cycle()
	if cycle <= 0 {
		return
	}
	s.Timer += dt
	for s.Timer >= cycle {
		s.Timer -= cycle
		if s.PendingGreen > 0 {
			s.Green = s.PendingGreen
			s.PendingGreen = 0
			cycle = s.Cycle()
		}
	}
}

// observe folds a queue sample into the smoothed estimate and schedules the
// next green duration.
func (s *Signal) observe(queue int, cfg SignalConfig) {
	a := cfg.QueueSmoothing
	s.QueueEstimate = a*float64(queue) + (1-a)*s.QueueEstimate
	s.PendingGreen = mathx.Clamp(s.BaseGreen+s.QueueEstimate*cfg.GreenPerVehicle, cfg.MinGreen, cfg.MaxGreen)
}

// SignalConfig tunes adaptive signals.
type SignalConfig struct {
	AdaptInterval   float64 `json:"adapt_interval"`
	QueueRadius     float64 `json:"queue_radius"`
	QueueSmoothing  float64 `json:"queue_smoothing"`
	GreenPerVehicle float64 `json:"green_per_vehicle"`
	MinGreen        float64 `json:"min_green"`
	MaxGreen        float64 `json:"max_green"`
}

// DefaultSignalConfig returns the stock adaptive tuning.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		AdaptInterval:   30,
		QueueRadius:     30,
		QueueSmoothing:  0.3,
		GreenPerVehicle: 2,
		MinGreen:        20,
		MaxGreen:        60,
	}
}
