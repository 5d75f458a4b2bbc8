package aggregate

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketAggregate_Merge(t *testing.T) {
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	a := BucketAggregate{Count: 3, WinCount: 2, LossCount: 1, TotalRespect: 7.5, TotalEnergy: 75, LastUpdated: t2}
	b := BucketAggregate{Count: 7, WinCount: 5, LossCount: 2, TotalRespect: 10.25, TotalEnergy: 175, LastUpdated: t1}

	got := a.Merge(b)
	assert.Equal(t, int64(10), got.Count)
	assert.Equal(t, int64(7), got.WinCount)
	assert.Equal(t, int64(3), got.LossCount)
	assert.Equal(t, 17.75, got.TotalRespect)
	assert.Equal(t, 250.0, got.TotalEnergy)
	assert.Equal(t, t2, got.LastUpdated)

	assert.Equal(t, got, b.Merge(a), "merge must be commutative")
}

func TestBucketAggregate_Without(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := BucketAggregate{Count: 3, WinCount: 2, LossCount: 1, TotalRespect: 7.5, TotalEnergy: 75}
	b := BucketAggregate{Count: 7, WinCount: 5, LossCount: 2, TotalRespect: 10.25, TotalEnergy: 175, LastUpdated: ts}

	restored := a.Merge(b).Without(b)
	assert.Equal(t, ts, restored.LastUpdated)
	restored.LastUpdated = time.Time{}
	assert.Equal(t, a, restored)

	floored := a.Without(b)
	assert.Equal(t, BucketAggregate{}, floored)

	partial := BucketAggregate{Count: 5, WinCount: 5}.Without(BucketAggregate{Count: 4, WinCount: 1, LossCount: 3})
	assert.Equal(t, int64(4), partial.WinCount)
	assert.Equal(t, int64(0), partial.LossCount)
	assert.Equal(t, int64(4), partial.Count)
	assert.NoError(t, partial.Validate())
}

func TestBucketAggregate_MergeAssociative(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := BucketAggregate{Count: 1, WinCount: 1, TotalRespect: 0.5, TotalEnergy: 25, LastUpdated: base}
	b := BucketAggregate{Count: 2, LossCount: 2, TotalRespect: 1.25, TotalEnergy: 50, LastUpdated: base.Add(time.Minute)}
	c := BucketAggregate{Count: 4, WinCount: 3, LossCount: 1, TotalRespect: 2, TotalEnergy: 100, LastUpdated: base.Add(-time.Minute)}

	assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)))
	assert.Equal(t, a, a.Merge(BucketAggregate{}), "zero value is the identity")
}

func TestBucketAggregate_DerivedRatios(t *testing.T) {
	agg := BucketAggregate{Count: 10, WinCount: 7, LossCount: 3, TotalRespect: 30, TotalEnergy: 250}
	assert.InDelta(t, 0.7, agg.WinRate(), 1e-12)
	assert.InDelta(t, 0.12, agg.AvgRespectPerEnergy(), 1e-12)

	var empty BucketAggregate
	assert.Zero(t, empty.WinRate())
	assert.Zero(t, empty.AvgRespectPerEnergy())
}

func TestBucketAggregate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		agg     BucketAggregate
		wantErr bool
	}{
		{"empty", BucketAggregate{}, false},
		{"consistent", BucketAggregate{Count: 3, WinCount: 1, LossCount: 2, TotalRespect: 4, TotalEnergy: 75}, false},
		{"count mismatch", BucketAggregate{Count: 4, WinCount: 1, LossCount: 2}, true},
		{"negative wins", BucketAggregate{Count: 0, WinCount: -1, LossCount: 1}, true},
		{"nan respect", BucketAggregate{Count: 1, WinCount: 1, TotalRespect: math.NaN()}, true},
		{"infinite energy", BucketAggregate{Count: 1, LossCount: 1, TotalEnergy: math.Inf(1)}, true},
		{"negative energy", BucketAggregate{Count: 1, LossCount: 1, TotalEnergy: -25}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.agg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMalformedDataError(t *testing.T) {
	err := error(&MalformedDataError{ClientID: "abc", Key: "L1-5__L1-5__C0-9__PEACE", Reason: "missing fields: count"})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "abc")
	assert.Contains(t, err.Error(), "missing fields: count")
}
