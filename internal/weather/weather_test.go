package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/entropy"
)

func TestTimeOfDayBands(t *testing.T) {
	cases := map[float64]TimeOfDay{
		0: Night, 4.99: Night, 5: Dawn, 6.5: Dawn, 7: Day, 12: Day,
		17.99: Day, 18: Dusk, 19.5: Dusk, 20: Night, 23.9: Night,
	}
	for hour, want := range cases {
		assert.Equal(t, want, TimeOfDayAt(hour), "hour %v", hour)
	}
}

func TestClockAdvancesHours(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartHour = 23
	c := NewClock(cfg, entropy.New(1), 1)

	c.Update(90) // 90 game minutes
	assert.InDelta(t, 0.5, c.Hour(), 1e-9)
	assert.Equal(t, 1, c.Day())
}

func TestWeatherRollsAfterDuration(t *testing.T) {
	cfg := DefaultConfig()
	// Only storms can be drawn.
	for i := range cfg.Conditions {
		if cfg.Conditions[i].Condition != Storm {
			cfg.Conditions[i].Weight = 0
		}
	}
	c := NewClock(cfg, entropy.New(5), 5)
	require.Equal(t, Clear, c.Condition())

	first := c.Stats().Remaining
	c.Update(first - 1)
	assert.Equal(t, Clear, c.Condition())

	c.Update(2)
	assert.Equal(t, Storm, c.Condition())
	st := c.Stats()
	assert.GreaterOrEqual(t, st.Intensity, cfg.MinIntensity)
	assert.LessOrEqual(t, st.Intensity, 1.0)
	assert.Len(t, c.DrainEvents(), 1)
}

func TestEffectsSlowTrafficInBadWeather(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartHour = 12
	c := NewClock(cfg, entropy.New(2), 2)

	clear := c.Effects()
	assert.Equal(t, 1.0, clear.SpeedMultiplier)
	assert.Equal(t, 1.0, clear.AccidentMultiplier)

	c.Set(Snow, 1, 100)
	snow := c.Effects()
	assert.InDelta(t, 0.55, snow.SpeedMultiplier, 1e-9)
	assert.Greater(t, snow.AccidentMultiplier, clear.AccidentMultiplier)
	assert.Less(t, snow.LightLevel, clear.LightLevel)
}

func TestNightReducesVisibility(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartHour = 2
	c := NewClock(cfg, entropy.New(3), 3)
	e := c.Effects()
	assert.InDelta(t, 0.6, e.Visibility, 1e-9)
	assert.InDelta(t, 0.95, e.SpeedMultiplier, 1e-9)
}

func TestParseCondition(t *testing.T) {
	c, ok := ParseCondition("Snow")
	assert.True(t, ok)
	assert.Equal(t, Snow, c)
	_, ok = ParseCondition("hail")
	assert.False(t, ok)
}
