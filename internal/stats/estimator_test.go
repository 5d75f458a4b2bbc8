package stats

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEstimator(t *testing.T) {
	_, err := NewEstimator(Curve{}, nil)
	assert.ErrorIs(t, err, ErrEmptyCurve)

	_, err = NewEstimator(DefaultCurve(), &EstimatorConfig{EMAWeight: 1.5})
	assert.Error(t, err)

	est, err := NewEstimator(DefaultCurve(), nil)
	require.NoError(t, err)
	assert.Equal(t, 40.0, est.Estimate(1))
}

func TestEstimator_UpdateAnchorUsesEMA(t *testing.T) {
	est, err := NewEstimator(testCurve(t), nil)
	require.NoError(t, err)

	// Level 18 is nearest to the level-20 anchor.
	anchor, ok := est.UpdateAnchor(18, 2500)
	require.True(t, ok)
	assert.Equal(t, 20, anchor.Level)
	assert.InDelta(t, 1500*0.8+2500*0.2, anchor.Total, 1e-9)
	assert.InDelta(t, 1700, est.Estimate(20), 1e-9)

	// Other anchors are untouched.
	assert.Equal(t, 1000.0, est.Estimate(10))
	assert.Equal(t, 3000.0, est.Estimate(30))
}

func TestEstimator_SingleOutlierCannotDominate(t *testing.T) {
	est, err := NewEstimator(testCurve(t), nil)
	require.NoError(t, err)

	est.UpdateAnchor(10, 1_000_000)
	assert.Less(t, est.Estimate(10), 0.21*1_000_000+1000)

	// Repeated observations converge towards the observed value.
	for i := 0; i < 100; i++ {
		est.UpdateAnchor(30, 6000)
	}
	assert.InDelta(t, 6000, est.Estimate(30), 1e-3)
}

func TestEstimator_IgnoresInvalidObservations(t *testing.T) {
	est, err := NewEstimator(testCurve(t), nil)
	require.NoError(t, err)

	for _, v := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		_, ok := est.UpdateAnchor(20, v)
		assert.False(t, ok, "value %v", v)
	}
	assert.Equal(t, 1500.0, est.Estimate(20))
}

func TestEstimator_ReplaceAndSave(t *testing.T) {
	est, err := NewEstimator(testCurve(t), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, est.Replace(Curve{}), ErrEmptyCurve)
	require.NoError(t, est.Replace(MustCurve([]Anchor{{Level: 1, Total: 7}})))
	assert.Equal(t, 7.0, est.Estimate(50))

	store := &MemoryCurveStore{}
	require.NoError(t, est.Save(context.Background(), store))
	loaded, err := store.LoadCurve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, est.Curve().Anchors(), loaded.Anchors())
}

func TestLoadOrDefault(t *testing.T) {
	store := &MemoryCurveStore{}
	c, err := LoadOrDefault(context.Background(), store, DefaultCurve())
	require.NoError(t, err)
	assert.Equal(t, DefaultCurve().Anchors(), c.Anchors())

	require.NoError(t, store.SaveCurve(context.Background(), testCurve(t)))
	c, err = LoadOrDefault(context.Background(), store, DefaultCurve())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
}

func TestEstimator_ConcurrentUse(t *testing.T) {
	est, err := NewEstimator(DefaultCurve(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				est.UpdateAnchor(1+(i*13+j)%100, 1000)
				_ = est.Estimate(j % 100)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, DefaultCurve().Len(), est.Curve().Len())
}
