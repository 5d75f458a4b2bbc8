package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCurve(t *testing.T) Curve {
	t.Helper()
	c, err := NewCurve([]Anchor{
		{Level: 30, Total: 3000},
		{Level: 10, Total: 1000},
		{Level: 20, Total: 1500},
	})
	require.NoError(t, err)
	return c
}

func TestCurve_AnchorsSorted(t *testing.T) {
	c := testCurve(t)
	assert.Equal(t, []Anchor{{10, 1000}, {20, 1500}, {30, 3000}}, c.Anchors())
	assert.Equal(t, 3, c.Len())
}

func TestCurve_Estimate(t *testing.T) {
	c := testCurve(t)

	tests := []struct {
		name  string
		level int
		want  float64
	}{
		{"below range clamps to first anchor", 1, 1000},
		{"negative level clamps", -5, 1000},
		{"first anchor exact", 10, 1000},
		{"midway first segment", 15, 1250},
		{"second anchor exact", 20, 1500},
		{"interpolated second segment", 23, 1500 + 0.3*1500},
		{"last anchor exact", 30, 3000},
		{"above range clamps to last anchor", 95, 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c.Estimate(tt.level), 1e-9)
		})
	}
}

func TestCurve_EstimateExactAtAnchors(t *testing.T) {
	c := DefaultCurve()
	for _, a := range c.Anchors() {
		// Bit-exact, not approximately equal.
		assert.Equal(t, a.Total, c.Estimate(a.Level), "level %d", a.Level)
	}
}

func TestCurve_EstimateMonotoneForDefault(t *testing.T) {
	c := DefaultCurve()
	prev := c.Estimate(0)
	for level := 1; level <= 110; level++ {
		v := c.Estimate(level)
		assert.GreaterOrEqual(t, v, prev, "level %d", level)
		prev = v
	}
}

func TestNewCurve_Validation(t *testing.T) {
	_, err := NewCurve(nil)
	assert.ErrorIs(t, err, ErrEmptyCurve)

	_, err = NewCurve([]Anchor{{Level: 1, Total: math.NaN()}})
	assert.Error(t, err)

	_, err = NewCurve([]Anchor{{Level: 1, Total: -1}})
	assert.Error(t, err)

	c, err := NewCurve([]Anchor{{Level: 5, Total: 1}, {Level: 5, Total: 2}})
	require.NoError(t, err)
	assert.Equal(t, []Anchor{{5, 2}}, c.Anchors())
	assert.Equal(t, 2.0, c.Estimate(-100))
	assert.Equal(t, 2.0, c.Estimate(100))
}

func TestCurve_Nearest(t *testing.T) {
	c := testCurve(t)
	assert.Equal(t, 0, c.nearest(1))
	assert.Equal(t, 0, c.nearest(14))
	assert.Equal(t, 0, c.nearest(15), "ties go to the lower anchor")
	assert.Equal(t, 1, c.nearest(16))
	assert.Equal(t, 1, c.nearest(20))
	assert.Equal(t, 2, c.nearest(26))
	assert.Equal(t, 2, c.nearest(500))
}

func TestCurve_AnchorsReturnsCopy(t *testing.T) {
	c := testCurve(t)
	anchors := c.Anchors()
	anchors[0].Total = 0
	assert.Equal(t, 1000.0, c.Estimate(10))
}
