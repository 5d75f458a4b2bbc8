package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHistogram_Summary(t *testing.T) {
	h := NewHistogram(100)
	assert.Equal(t, Summary{}, h.Summary())

	for i := 1; i <= 5; i++ {
		h.Record(time.Duration(i) * 10 * time.Millisecond)
	}

	s := h.Summary()
	assert.Equal(t, 5, s.Count)
	assert.InDelta(t, 30, s.Mean, 1e-9)
	assert.InDelta(t, 10, s.Min, 1e-9)
	assert.InDelta(t, 50, s.Max, 1e-9)
	assert.InDelta(t, 30, s.P50, 1e-9)
	assert.InDelta(t, 48, s.P95, 1e-9)
	assert.InDelta(t, 30, h.Percentile(50), 1e-9)
}

func TestHistogram_Percentile(t *testing.T) {
	h := NewHistogram(10)
	assert.Equal(t, 0.0, h.Percentile(50))

	h.Record(2 * time.Millisecond)
	h.Record(4 * time.Millisecond)
	assert.InDelta(t, 3, h.Percentile(50), 1e-9)
	assert.InDelta(t, 2, h.Percentile(-10), 1e-9)
	assert.InDelta(t, 4, h.Percentile(250), 1e-9)
}

func TestHistogram_DropsOldest(t *testing.T) {
	h := NewHistogram(10)
	for i := 0; i < 11; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 9, h.Count())
	assert.InDelta(t, 2, h.Summary().Min, 1e-9)

	h.Reset()
	assert.Equal(t, 0, h.Count())
}

func TestSyncMetrics(t *testing.T) {
	m := NewSyncMetrics()
	m.RecordPush(time.Millisecond, nil)
	m.RecordPush(time.Millisecond, errors.New("down"))
	m.RecordPull(time.Millisecond, nil)
	m.RecordMerge(time.Millisecond, 3)
	m.RecordMerge(time.Millisecond, 0)

	s := m.Stats()
	assert.Equal(t, uint64(2), s.Pushes)
	assert.Equal(t, uint64(1), s.PushFailures)
	assert.Equal(t, uint64(1), s.Pulls)
	assert.Equal(t, uint64(0), s.PullFailures)
	assert.Equal(t, uint64(2), s.MergesPublished)
	assert.Equal(t, uint64(3), s.SkippedEntries)
	assert.Equal(t, 2, s.Push.Count)
}

func TestServerMetrics(t *testing.T) {
	m := NewServerMetrics()
	m.Puts.Add(2)
	m.Conflicts.Add(1)
	m.RequestLatency.Record(5 * time.Millisecond)

	s := m.Stats()
	assert.Equal(t, uint64(2), s.Puts)
	assert.Equal(t, uint64(1), s.Conflicts)
	assert.Equal(t, 1, s.Latency.Count)
}
