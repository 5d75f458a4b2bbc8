// Package metrics records latency distributions and counters for the sync loop
// and the snapshot server.
package metrics

import (
	"sync/atomic"
	"time"
)

// SyncMetrics tracks push, pull and merge activity of a client.
type SyncMetrics struct {
	PushLatency  *Histogram
	PullLatency  *Histogram
	MergeLatency *Histogram

	Pushes          atomic.Uint64
	PushFailures    atomic.Uint64
	StalePushes     atomic.Uint64
	Pulls           atomic.Uint64
	PullFailures    atomic.Uint64
	MergesPublished atomic.Uint64
	SkippedEntries  atomic.Uint64

	startTime time.Time
}

// NewSyncMetrics creates a new sync metrics collector.
func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		PushLatency:  NewHistogram(1000),
		PullLatency:  NewHistogram(1000),
		MergeLatency: NewHistogram(1000),
		startTime:    time.Now(),
	}
}

// RecordPush records one push attempt.
func (m *SyncMetrics) RecordPush(d time.Duration, err error) {
	m.PushLatency.Record(d)
	m.Pushes.Add(1)
	if err != nil {
		m.PushFailures.Add(1)
	}
}

// RecordPull records one attempt to list the remote snapshots.
func (m *SyncMetrics) RecordPull(d time.Duration, err error) {
	m.PullLatency.Record(d)
	m.Pulls.Add(1)
	if err != nil {
		m.PullFailures.Add(1)
	}
}

// RecordMerge records a completed merge pass.
func (m *SyncMetrics) RecordMerge(d time.Duration, skipped int) {
	m.MergeLatency.Record(d)
	m.MergesPublished.Add(1)
	if skipped > 0 {
		m.SkippedEntries.Add(uint64(skipped))
	}
}

// SyncStats is a serializable snapshot of SyncMetrics.
type SyncStats struct {
	Uptime          time.Duration `json:"uptime"`
	Pushes          uint64        `json:"pushes"`
	PushFailures    uint64        `json:"push_failures"`
	StalePushes     uint64        `json:"stale_pushes"`
	Pulls           uint64        `json:"pulls"`
	PullFailures    uint64        `json:"pull_failures"`
	MergesPublished uint64        `json:"merges_published"`
	SkippedEntries  uint64        `json:"skipped_entries"`
	Push            Summary       `json:"push"`
	Pull            Summary       `json:"pull"`
	Merge           Summary       `json:"merge"`
}

// Stats returns current values.
func (m *SyncMetrics) Stats() SyncStats {
	return SyncStats{
		Uptime:          time.Since(m.startTime),
		Pushes:          m.Pushes.Load(),
		PushFailures:    m.PushFailures.Load(),
		StalePushes:     m.StalePushes.Load(),
		Pulls:           m.Pulls.Load(),
		PullFailures:    m.PullFailures.Load(),
		MergesPublished: m.MergesPublished.Load(),
		SkippedEntries:  m.SkippedEntries.Load(),
		Push:            m.PushLatency.Summary(),
		Pull:            m.PullLatency.Summary(),
		Merge:           m.MergeLatency.Summary(),
	}
}

// ServerMetrics tracks requests handled by the snapshot server.
type ServerMetrics struct {
	RequestLatency *Histogram

	Gets      atomic.Uint64
	Puts      atomic.Uint64
	Conflicts atomic.Uint64
	Lists     atomic.Uint64
	Errors    atomic.Uint64

	startTime time.Time
}

// NewServerMetrics creates a new server metrics collector.
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{
		RequestLatency: NewHistogram(10000),
		startTime:      time.Now(),
	}
}

// ServerStats is a serializable snapshot of ServerMetrics.
type ServerStats struct {
	Uptime    time.Duration `json:"uptime"`
	Gets      uint64        `json:"gets"`
	Puts      uint64        `json:"puts"`
	Conflicts uint64        `json:"conflicts"`
	Lists     uint64        `json:"lists"`
	Errors    uint64        `json:"errors"`
	Latency   Summary       `json:"latency"`
}

// Stats returns current values.
func (m *ServerMetrics) Stats() ServerStats {
	return ServerStats{
		Uptime:    time.Since(m.startTime),
		Gets:      m.Gets.Load(),
		Puts:      m.Puts.Load(),
		Conflicts: m.Conflicts.Load(),
		Lists:     m.Lists.Load(),
		Errors:    m.Errors.Load(),
		Latency:   m.RequestLatency.Summary(),
	}
}
