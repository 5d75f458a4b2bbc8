package aggregate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

func TestClientSnapshot_JSONRoundTrip(t *testing.T) {
	updated := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	in := ClientSnapshot{
		ClientID:  "c-1",
		UpdatedAt: updated,
		Version:   12,
		Buckets: map[bucket.Key]BucketAggregate{
			"L1-5__L1-5__C0-9__PEACE": {Count: 3, WinCount: 2, LossCount: 1, TotalRespect: 6.5, TotalEnergy: 75, LastUpdated: updated},
		},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Malformed")

	var out ClientSnapshot
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestClientSnapshot_LenientBucketDecoding(t *testing.T) {
	raw := `{
		"client_id": "c-2",
		"updated_at": "2024-06-01T08:30:00Z",
		"version": 3,
		"buckets": {
			"L1-5__L1-5__C0-9__PEACE": {"count": 3, "win_count": 2, "loss_count": 1, "total_respect": 5, "total_energy": 75},
			"L6-10__L1-5__C0-9__PEACE": {"count": 2, "win_count": 1},
			"L6-10__L6-10__C0-9__WAR": {"count": "lots", "win_count": 1, "loss_count": 1, "total_respect": 1, "total_energy": 25}
		}
	}`

	var s ClientSnapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	assert.Equal(t, "c-2", s.ClientID)
	assert.Equal(t, uint64(3), s.Version)
	require.Len(t, s.Buckets, 1)
	assert.Equal(t, int64(3), s.Buckets["L1-5__L1-5__C0-9__PEACE"].Count)

	require.Len(t, s.Malformed, 2)
	reasons := map[bucket.Key]string{}
	for _, m := range s.Malformed {
		assert.Equal(t, "c-2", m.ClientID)
		reasons[m.Key] = m.Reason
	}
	assert.Contains(t, reasons["L6-10__L1-5__C0-9__PEACE"], "missing fields")
	assert.Contains(t, reasons["L6-10__L1-5__C0-9__PEACE"], "loss_count")
	assert.Contains(t, reasons["L6-10__L6-10__C0-9__WAR"], "non-numeric")
}

func TestClientSnapshot_InvalidEnvelope(t *testing.T) {
	var s ClientSnapshot
	assert.Error(t, json.Unmarshal([]byte(`{"buckets": []}`), &s))
}

func TestClientSnapshot_CloneIsDeep(t *testing.T) {
	s := ClientSnapshot{ClientID: "c", Buckets: map[bucket.Key]BucketAggregate{"k": {Count: 1, WinCount: 1}}}
	c := s.Clone()
	c.Buckets["k"] = BucketAggregate{Count: 9, WinCount: 9}
	assert.Equal(t, int64(1), s.Buckets["k"].Count)
	assert.Equal(t, int64(1), s.TotalCount())
}
