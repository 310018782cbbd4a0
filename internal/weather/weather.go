// Package weather advances the in-game clock and stochastic weather, and maps
// both to the environmental modifiers traffic consumes.
package weather

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/mathx"
)

// Condition is the prevailing weather.
type Condition uint8

const (
	Clear Condition = iota
	Cloudy
	Rain
	Fog
	Storm
	Snow
)

func (c Condition) String() string {
	switch c {
	case Clear:
		return "clear"
	case Cloudy:
		return "cloudy"
	case Rain:
		return "rain"
	case Fog:
		return "fog"
	case Storm:
		return "storm"
	case Snow:
		return "snow"
	default:
		return "unknown"
	}
}

// ParseCondition looks a condition up by name, ignoring case.
func ParseCondition(name string) (Condition, bool) {
	for c := Clear; c <= Snow; c++ {
		if strings.EqualFold(c.String(), name) {
			return c, true
		}
	}
	return 0, false
}

// TimeOfDay is one of four bands derived from the hour.
type TimeOfDay uint8

const (
	Dawn TimeOfDay = iota
	Day
	Dusk
	Night
)

func (t TimeOfDay) String() string {
	switch t {
	case Dawn:
		return "dawn"
	case Day:
		return "day"
	case Dusk:
		return "dusk"
	default:
		return "night"
	}
}

// TimeOfDayAt maps an hour in [0, 24) to its band.
func TimeOfDayAt(hour float64) TimeOfDay {
	switch {
	case hour >= 5 && hour < 7:
		return Dawn
	case hour >= 7 && hour < 18:
		return Day
	case hour >= 18 && hour < 20:
		return Dusk
	default:
		return Night
	}
}

// ConditionSpec configures one weather type.
type ConditionSpec struct {
	Condition   Condition `json:"condition"`
	Weight      float64   `json:"weight"`
	MinDuration float64   `json:"min_duration"` // Time units
	MaxDuration float64   `json:"max_duration"`
	Speed       float64   `json:"speed"`      // Traffic speed multiplier at full intensity
	Visibility  float64   `json:"visibility"` // 0..1 at full intensity
	AccidentMod float64   `json:"accident_mod"`
}

// Config controls the clock and weather draw.
type Config struct {
	MinutesPerUnit float64         `json:"minutes_per_unit"` // Game minutes per time unit
	StartHour      float64         `json:"start_hour"`
	MinIntensity   float64         `json:"min_intensity"`
	Conditions     []ConditionSpec `json:"conditions"`
}

// DefaultConfig returns the stock weather table: clear 40%, cloudy 25%, rain 15%,
// fog 8%, storm 7%, snow 5%.
func DefaultConfig() Config {
	return Config{
		MinutesPerUnit: 1,
		StartHour:      6,
		MinIntensity:   0.3,
		Conditions: []ConditionSpec{
			{Condition: Clear, Weight: 0.40, MinDuration: 600, MaxDuration: 2400, Speed: 1, Visibility: 1, AccidentMod: 1},
			{Condition: Cloudy, Weight: 0.25, MinDuration: 600, MaxDuration: 1800, Speed: 1, Visibility: 0.9, AccidentMod: 1},
			{Condition: Rain, Weight: 0.15, MinDuration: 300, MaxDuration: 1200, Speed: 0.85, Visibility: 0.7, AccidentMod: 1.5},
			{Condition: Fog, Weight: 0.08, MinDuration: 200, MaxDuration: 900, Speed: 0.7, Visibility: 0.3, AccidentMod: 1.8},
			{Condition: Storm, Weight: 0.07, MinDuration: 120, MaxDuration: 600, Speed: 0.6, Visibility: 0.5, AccidentMod: 2.5},
			{Condition: Snow, Weight: 0.05, MinDuration: 300, MaxDuration: 1500, Speed: 0.55, Visibility: 0.6, AccidentMod: 2},
		},
	}
}

// Effects are the derived modifiers for the current weather and time of day.
type Effects struct {
	SpeedMultiplier    float64 `json:"speed_multiplier"`
	Visibility         float64 `json:"visibility"`
	AccidentMultiplier float64 `json:"accident_multiplier"`
	LightLevel         float64 `json:"light_level"`
}

// NeutralEffects leaves traffic unmodified.
func NeutralEffects() Effects {
	return Effects{SpeedMultiplier: 1, Visibility: 1, AccidentMultiplier: 1, LightLevel: 1}
}

// Stats is the per-tick snapshot.
type Stats struct {
	Condition string  `json:"condition"`
	Intensity float64 `json:"intensity"`
	Remaining float64 `json:"remaining"`
	Hour      float64 `json:"hour"`
	Day       int     `json:"day"`
	TimeOfDay string  `json:"time_of_day"`
	Effects   Effects `json:"effects"`
}

// Clock owns game time and the weather state.
type Clock struct {
	cfg   Config
	rng   entropy.Source
	noise opensimplex.Noise

	minutes   float64 // Game minutes since start
	condition Condition
	intensity float64
	elapsed   float64
	duration  float64
	changes   int

	rec events.Recorder
}

// NewClock creates a clock starting in clear weather at the configured hour.
func NewClock(cfg Config, rng entropy.Source, noiseSeed int64) *Clock {
	if cfg.MinutesPerUnit <= 0 {
		cfg.MinutesPerUnit = 1
	}
	if len(cfg.Conditions) == 0 {
		cfg.Conditions = DefaultConfig().Conditions
	}
	c := &Clock{
		cfg:       cfg,
		rng:       rng,
		noise:     opensimplex.NewNormalized(noiseSeed),
		minutes:   cfg.StartHour * 60,
		condition: Clear,
		intensity: cfg.MinIntensity,
	}
	c.duration = c.drawDuration(c.spec(Clear))
	return c
}

// Update advances game time and rolls the weather when its duration lapses.
func (c *Clock) Update(dt float64) Stats {
	if dt > 0 {
		c.minutes += dt * c.cfg.MinutesPerUnit
		c.elapsed += dt
	}
	if c.elapsed >= c.duration {
		c.roll()
	}
	return c.Stats()
}

func (c *Clock) roll() {
	weights := make([]float64, len(c.cfg.Conditions))
	for i, s := range c.cfg.Conditions {
		weights[i] = s.Weight
	}
	spec := c.cfg.Conditions[entropy.Pick(c.rng, weights)]

	prev := c.condition
	c.condition = spec.Condition
	c.elapsed = 0
	c.duration = c.drawDuration(spec)
	c.changes++

	// Intensity follows a smooth noise field over game time, so consecutive
	// draws of the same weather tend to have similar strength.
	n := c.noise.Eval2(c.minutes/1440, float64(c.changes)*0.37)
	c.intensity = mathx.Clamp(c.cfg.MinIntensity+(1-c.cfg.MinIntensity)*n, 0, 1)

	if prev != c.condition {
		c.rec.Record(c.minutes, events.CategoryWeather,
			fmt.Sprintf("weather turns to %s (intensity %.2f)", c.condition, c.intensity))
		slog.Debug("weather changed", "from", prev, "to", c.condition, "intensity", c.intensity, "duration", c.duration)
	}
}

func (c *Clock) drawDuration(spec ConditionSpec) float64 {
	d := entropy.Range(c.rng, spec.MinDuration, spec.MaxDuration)
	if d <= 0 {
		d = 1
	}
	return d
}

func (c *Clock) spec(cond Condition) ConditionSpec {
	for _, s := range c.cfg.Conditions {
		if s.Condition == cond {
			return s
		}
	}
	return ConditionSpec{Condition: cond, MinDuration: 600, MaxDuration: 600, Speed: 1, Visibility: 1, AccidentMod: 1}
}

// Set forces a weather state, for scripted scenarios.
func (c *Clock) Set(cond Condition, intensity, duration float64) {
	c.condition = cond
	c.intensity = mathx.Clamp(intensity, 0, 1)
	c.elapsed = 0
	c.duration = math.Max(duration, 1)
}

// Minutes returns game minutes since the start.
func (c *Clock) Minutes() float64 { return c.minutes }

// Hour returns the hour of day in [0, 24).
func (c *Clock) Hour() float64 {
	return math.Mod(c.minutes/60, 24)
}

// Day returns the zero-based game day.
func (c *Clock) Day() int {
	return int(c.minutes / 1440)
}

// Condition returns the current weather.
func (c *Clock) Condition() Condition { return c.condition }

// Effects combines weather and time of day.
func (c *Clock) Effects() Effects {
	spec := c.spec(c.condition)
	e := Effects{
		SpeedMultiplier:    1 - (1-spec.Speed)*c.intensity,
		Visibility:         1 - (1-spec.Visibility)*c.intensity,
		AccidentMultiplier: 1 + (spec.AccidentMod-1)*c.intensity,
		LightLevel:         1,
	}

	switch TimeOfDayAt(c.Hour()) {
	case Dawn, Dusk:
		e.Visibility *= 0.85
		e.LightLevel = 0.5
	case Night:
		e.SpeedMultiplier *= 0.95
		e.Visibility *= 0.6
		e.AccidentMultiplier *= 1.3
		e.LightLevel = 0.15
	}
	if c.condition != Clear {
		e.LightLevel *= 1 - 0.3*c.intensity
	}

	e.SpeedMultiplier = mathx.Clamp(e.SpeedMultiplier, 0.1, 1)
	e.Visibility = mathx.Clamp(e.Visibility, 0, 1)
	return e
}

// Stats returns the current snapshot.
func (c *Clock) Stats() Stats {
	return Stats{
		Condition: c.condition.String(),
		Intensity: c.intensity,
		Remaining: math.Max(0, c.duration-c.elapsed),
		Hour:      c.Hour(),
		Day:       c.Day(),
		TimeOfDay: TimeOfDayAt(c.Hour()).String(),
		Effects:   c.Effects(),
	}
}

// DrainEvents returns weather events since the last drain.
func (c *Clock) DrainEvents() []events.Event { return c.rec.Drain() }
