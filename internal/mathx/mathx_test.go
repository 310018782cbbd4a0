package mathx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3.0, 0, 100))
	assert.Equal(t, 100.0, Clamp(250.0, 0, 100))
	assert.Equal(t, 42.5, Clamp(42.5, 0, 100))
	assert.Equal(t, 3, Clamp(7, 1, 3))
}

func TestApproachNeverOvershoots(t *testing.T) {
	assert.Equal(t, 10.0, Approach(9, 10, 5))
	assert.Equal(t, 2.0, Approach(9, 2, 50))
	assert.InDelta(t, 8.5, Approach(9, 2, 0.5), 1e-9)
}
