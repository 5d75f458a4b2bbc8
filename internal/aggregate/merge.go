package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

// Global is the pointwise sum of every known client snapshot.
type Global struct {
	Buckets map[bucket.Key]BucketAggregate `json:"buckets"`
	AsOf    time.Time                      `json:"as_of"`
	Clients int                            `json:"clients"`
	Skipped int                            `json:"skipped"`
}

// Lookup returns the merged aggregate for key.
func (g Global) Lookup(key bucket.Key) (BucketAggregate, bool) {
	agg, ok := g.Buckets[key]
	return agg, ok
}

// IsZero reports whether no merge has ever been published.
func (g Global) IsZero() bool {
	return g.AsOf.IsZero() && len(g.Buckets) == 0
}

// MergerConfig configures a Merger.
type MergerConfig struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Merger rebuilds the global aggregate from scratch on every pass. Rebuilding
// keeps the result correct when snapshots appear, vanish or get overwritten.
type Merger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewMerger creates a Merger. A nil config uses slog.Default and time.Now.
func NewMerger(config *MergerConfig) *Merger {
	m := &Merger{logger: slog.Default(), now: time.Now}
	if config != nil {
		if config.Logger != nil {
			m.logger = config.Logger
		}
		if config.Now != nil {
			m.now = config.Now
		}
	}
	return m
}

// Recompute merges every snapshot in one go. Malformed entries are skipped and
// logged; only context cancellation aborts the pass.
func (m *Merger) Recompute(ctx context.Context, snapshots map[string]ClientSnapshot) (Global, error) {
	p := m.Begin(snapshots)
	if _, err := p.Step(ctx, 0); err != nil {
		return Global{}, err
	}
	return p.Result(), nil
}

// Begin starts a bounded merge pass over a private copy of snapshots. Client ids
// are visited in sorted order, which makes float sums independent of input order.
func (m *Merger) Begin(snapshots map[string]ClientSnapshot) *Pass {
	ids := make([]string, 0, len(snapshots))
	frozen := make(map[string]ClientSnapshot, len(snapshots))
	for id, s := range snapshots {
		ids = append(ids, id)
		frozen[id] = s.Clone()
	}
	sort.Strings(ids)

	return &Pass{
		merger:    m,
		ids:       ids,
		snapshots: frozen,
		acc:       make(map[bucket.Key]BucketAggregate),
	}
}

// Pass is an in-progress merge that can be advanced a few snapshots at a time.
type Pass struct {
	merger    *Merger
	ids       []string
	snapshots map[string]ClientSnapshot
	next      int
	acc       map[bucket.Key]BucketAggregate
	skipped   int
	asOf      time.Time
}

// Step merges at most limit snapshots (limit <= 0 means all remaining) and reports
// whether the pass is complete.
func (p *Pass) Step(ctx context.Context, limit int) (bool, error) {
	processed := 0
	for p.next < len(p.ids) {
		if limit > 0 && processed >= limit {
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		id := p.ids[p.next]
		p.mergeSnapshot(id, p.snapshots[id])
		delete(p.snapshots, id)
		p.next++
		processed++
	}

	if p.asOf.IsZero() {
		p.asOf = p.merger.now()
	}
	return true, nil
}

func (p *Pass) mergeSnapshot(id string, s ClientSnapshot) {
	for _, bad := range s.Malformed {
		p.warn(bad)
	}

	for key, agg := range s.Buckets {
		if !key.Valid() {
			p.warn(&MalformedDataError{ClientID: id, Key: key, Reason: "unrecognized bucket key"})
			continue
		}
		if err := agg.Validate(); err != nil {
			p.warn(&MalformedDataError{ClientID: id, Key: key, Reason: err.Error()})
			continue
		}
		p.acc[key] = p.acc[key].Merge(agg)
	}
}

func (p *Pass) warn(err *MalformedDataError) {
	p.skipped++
	p.merger.logger.Warn("skipping malformed bucket",
		"client", err.ClientID,
		"bucket", string(err.Key),
		"reason", err.Reason,
	)
}

// Done reports whether every snapshot has been merged.
func (p *Pass) Done() bool { return p.next >= len(p.ids) && !p.asOf.IsZero() }

// Remaining returns the number of snapshots not yet merged.
func (p *Pass) Remaining() int { return len(p.ids) - p.next }

// Result returns the merged aggregate. It is only meaningful once Done is true.
func (p *Pass) Result() Global {
	out := make(map[bucket.Key]BucketAggregate, len(p.acc))
	for k, v := range p.acc {
		out[k] = v
	}
	return Global{
		Buckets: out,
		AsOf:    p.asOf,
		Clients: p.next,
		Skipped: p.skipped,
	}
}
