// Package aggregate holds bucketed outcome counters: a client's own LocalAggregator,
// the ClientSnapshot it publishes, and the Merger that folds all snapshots into a
// GlobalAggregate.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

// ErrMalformed marks bucket entries that cannot take part in a merge.
var ErrMalformed = errors.New("malformed bucket data")

// MalformedDataError describes one rejected bucket entry of one client.
type MalformedDataError struct {
	ClientID string
	Key      bucket.Key
	Reason   string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("client %s bucket %q: %s", e.ClientID, e.Key, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformed.
func (e *MalformedDataError) Unwrap() error { return ErrMalformed }

// BucketAggregate is the outcome tally of one bucket. Ratios are derived on read
// so that merging never averages an average.
type BucketAggregate struct {
	Count        int64     `json:"count"`
	WinCount     int64     `json:"win_count"`
	LossCount    int64     `json:"loss_count"`
	TotalRespect float64   `json:"total_respect"`
	TotalEnergy  float64   `json:"total_energy"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Merge returns the pointwise sum of a and b. LastUpdated takes the later of the two.
func (a BucketAggregate) Merge(b BucketAggregate) BucketAggregate {
	out := BucketAggregate{
		Count:        a.Count + b.Count,
		WinCount:     a.WinCount + b.WinCount,
		LossCount:    a.LossCount + b.LossCount,
		TotalRespect: a.TotalRespect + b.TotalRespect,
		TotalEnergy:  a.TotalEnergy + b.TotalEnergy,
		LastUpdated:  a.LastUpdated,
	}
	if b.LastUpdated.After(out.LastUpdated) {
		out.LastUpdated = b.LastUpdated
	}
	return out
}

// Without removes b's contribution from a. Every field is floored at zero and
// Count is rebuilt from the floored win and loss counts.
func (a BucketAggregate) Without(b BucketAggregate) BucketAggregate {
	out := BucketAggregate{
		WinCount:     max(a.WinCount-b.WinCount, 0),
		LossCount:    max(a.LossCount-b.LossCount, 0),
		TotalRespect: max(a.TotalRespect-b.TotalRespect, 0),
		TotalEnergy:  max(a.TotalEnergy-b.TotalEnergy, 0),
		LastUpdated:  a.LastUpdated,
	}
	out.Count = out.WinCount + out.LossCount
	return out
}

// WinRate returns WinCount/Count, or 0 for an empty bucket.
func (a BucketAggregate) WinRate() float64 {
	if a.Count <= 0 {
		return 0
	}
	return float64(a.WinCount) / float64(a.Count)
}

// AvgRespectPerEnergy returns TotalRespect/TotalEnergy, or 0 when no energy was spent.
func (a BucketAggregate) AvgRespectPerEnergy() float64 {
	if a.TotalEnergy <= 0 {
		return 0
	}
	return a.TotalRespect / a.TotalEnergy
}

// Validate checks the count invariant and that every field is a usable number.
func (a BucketAggregate) Validate() error {
	switch {
	case a.Count < 0 || a.WinCount < 0 || a.LossCount < 0:
		return fmt.Errorf("%w: negative count", ErrMalformed)
	case a.Count != a.WinCount+a.LossCount:
		return fmt.Errorf("%w: count %d != wins %d + losses %d", ErrMalformed, a.Count, a.WinCount, a.LossCount)
	case !finiteNonNegative(a.TotalRespect):
		return fmt.Errorf("%w: total respect %v", ErrMalformed, a.TotalRespect)
	case !finiteNonNegative(a.TotalEnergy):
		return fmt.Errorf("%w: total energy %v", ErrMalformed, a.TotalEnergy)
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Outcome is one observed fight result.
type Outcome struct {
	Won     bool    `json:"won"`
	Respect float64 `json:"respect"`
	Energy  float64 `json:"energy"`
}

// clampNonNegative maps negative, NaN and infinite inputs to zero.
func clampNonNegative(v float64) float64 {
	if !finiteNonNegative(v) {
		return 0
	}
	return v
}
