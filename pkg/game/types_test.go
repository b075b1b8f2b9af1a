package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	a := Position{MapID: 0, X: 1, Y: 2, Z: 3}
	b := Position{MapID: 0, X: 4, Y: 6, Z: 3}

	assert.InDelta(t, 5.0, Distance(a, b), 1e-9)
	assert.Zero(t, Distance(a, a))
	assert.Equal(t, Distance(a, b), Distance(b, a))
}

func TestDistanceAcrossMaps(t *testing.T) {
	a := Position{MapID: 0}
	b := Position{MapID: 1}

	assert.True(t, math.IsInf(Distance(a, b), 1))
}
