package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededSourceIsReproducible(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestPickFollowsWeights(t *testing.T) {
	src := New(11)
	counts := make([]int, 3)
	for i := 0; i < 10000; i++ {
		counts[Pick(src, []float64{0.6, 0.3, 0.1})]++
	}
	assert.InDelta(t, 6000, counts[0], 300)
	assert.InDelta(t, 3000, counts[1], 300)
	assert.InDelta(t, 1000, counts[2], 200)
}

func TestChanceBounds(t *testing.T) {
	src := New(3)
	assert.False(t, Chance(src, 0))
	assert.True(t, Chance(src, 1.1))
}

func TestCryptoSeedIsPositive(t *testing.T) {
	assert.Positive(t, CryptoSeed())
}
