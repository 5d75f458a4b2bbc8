package aggregate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

// ClientSnapshot is one client's complete view of its own outcomes. Only the owning
// client mutates it; everything else treats it as read-only.
type ClientSnapshot struct {
	ClientID  string                         `json:"client_id"`
	UpdatedAt time.Time                      `json:"updated_at"`
	Version   uint64                         `json:"version"`
	Buckets   map[bucket.Key]BucketAggregate `json:"buckets"`

	// Malformed lists bucket entries dropped while decoding. Not serialized.
	Malformed []*MalformedDataError `json:"-"`
}

// Clone returns a deep copy of s.
func (s ClientSnapshot) Clone() ClientSnapshot {
	out := s
	out.Buckets = make(map[bucket.Key]BucketAggregate, len(s.Buckets))
	for k, v := range s.Buckets {
		out.Buckets[k] = v
	}
	if s.Malformed != nil {
		out.Malformed = append([]*MalformedDataError(nil), s.Malformed...)
	}
	return out
}

// TotalCount sums Count over all buckets.
func (s ClientSnapshot) TotalCount() int64 {
	var n int64
	for _, b := range s.Buckets {
		n += b.Count
	}
	return n
}

type snapshotWire struct {
	ClientID  string                     `json:"client_id"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Version   uint64                     `json:"version"`
	Buckets   map[string]json.RawMessage `json:"buckets"`
}

// bucketWire uses pointers so that missing fields can be told apart from zeros.
type bucketWire struct {
	Count        *int64     `json:"count"`
	WinCount     *int64     `json:"win_count"`
	LossCount    *int64     `json:"loss_count"`
	TotalRespect *float64   `json:"total_respect"`
	TotalEnergy  *float64   `json:"total_energy"`
	LastUpdated  *time.Time `json:"last_updated"`
}

// UnmarshalJSON decodes a snapshot, decoding each bucket on its own. Entries with
// missing or non-numeric fields land in Malformed instead of failing the snapshot.
func (s *ClientSnapshot) UnmarshalJSON(data []byte) error {
	var w snapshotWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	out := ClientSnapshot{
		ClientID:  w.ClientID,
		UpdatedAt: w.UpdatedAt,
		Version:   w.Version,
		Buckets:   make(map[bucket.Key]BucketAggregate, len(w.Buckets)),
	}
	for rawKey, raw := range w.Buckets {
		key := bucket.Key(rawKey)
		agg, reason := decodeBucket(raw)
		if reason != "" {
			out.Malformed = append(out.Malformed, &MalformedDataError{ClientID: w.ClientID, Key: key, Reason: reason})
			continue
		}
		out.Buckets[key] = agg
	}

	*s = out
	return nil
}

func decodeBucket(raw json.RawMessage) (BucketAggregate, string) {
	var bw bucketWire
	if err := json.Unmarshal(raw, &bw); err != nil {
		return BucketAggregate{}, "non-numeric value: " + err.Error()
	}

	var missing []string
	if bw.Count == nil {
		missing = append(missing, "count")
	}
	if bw.WinCount == nil {
		missing = append(missing, "win_count")
	}
	if bw.LossCount == nil {
		missing = append(missing, "loss_count")
	}
	if bw.TotalRespect == nil {
		missing = append(missing, "total_respect")
	}
	if bw.TotalEnergy == nil {
		missing = append(missing, "total_energy")
	}
	if len(missing) > 0 {
		return BucketAggregate{}, "missing fields: " + strings.Join(missing, ", ")
	}

	agg := BucketAggregate{
		Count:        *bw.Count,
		WinCount:     *bw.WinCount,
		LossCount:    *bw.LossCount,
		TotalRespect: *bw.TotalRespect,
		TotalEnergy:  *bw.TotalEnergy,
	}
	if bw.LastUpdated != nil {
		agg.LastUpdated = *bw.LastUpdated
	}
	return agg, ""
}
