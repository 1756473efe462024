//go:build !integration

package bandit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeRatio_ZeroDenominators(t *testing.T) {
	assert.Equal(t, 0.0, SafeRatio(5, 0))
	assert.Equal(t, 0.0, SafeRatio(5, -1))
	assert.Equal(t, 0.0, CTR(0, 0))
	assert.Equal(t, 0.0, ROAS(10, 0))
	assert.Equal(t, 0.0, CPM(10, 0))
	assert.InDelta(t, 0.25, SafeRatio(1, 4), 1e-12)
	assert.InDelta(t, 5.0, CPM(5, 1000), 1e-12)
}

func TestSampleBeta_MeanAndRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		x := SampleBeta(rng, 2, 8, 0.01)
		assert.GreaterOrEqual(t, x, 0.0)
		assert.LessOrEqual(t, x, 1.0)
		sum += x
	}
	assert.InDelta(t, 0.2, sum/n, 0.01)
}

func TestSampleBeta_TinyShapesStayFinite(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		x := SampleBeta(rng, 0, -3, 0.01)
		assert.False(t, math.IsNaN(x))
		assert.GreaterOrEqual(t, x, 0.0)
		assert.LessOrEqual(t, x, 1.0)
	}
}
