package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyer_Key(t *testing.T) {
	keyer := NewKeyer(0)

	tests := []struct {
		name string
		ctx  MatchContext
		want Key
	}{
		{
			name: "low levels no chain peace",
			ctx:  MatchContext{SelfLevel: 3, OpponentLevel: 5, ChainCount: 0},
			want: "L1-5__L1-5__C0-9__PEACE",
		},
		{
			name: "band boundary",
			ctx:  MatchContext{SelfLevel: 6, OpponentLevel: 10, ChainCount: 9},
			want: "L6-10__L6-10__C0-9__PEACE",
		},
		{
			name: "war and mid chain",
			ctx:  MatchContext{SelfLevel: 42, OpponentLevel: 77, ChainCount: 120, AtWar: true},
			want: "L41-45__L76-80__C100-249__WAR",
		},
		{
			name: "negative inputs clamp to lowest band",
			ctx:  MatchContext{SelfLevel: -4, OpponentLevel: 0, ChainCount: -20},
			want: "L1-5__L1-5__C0-9__PEACE",
		},
		{
			name: "open ended chain band",
			ctx:  MatchContext{SelfLevel: 100, OpponentLevel: 100, ChainCount: 250000},
			want: "L96-100__L96-100__C100000+__PEACE",
		},
		{
			name: "stats do not affect key",
			ctx: MatchContext{
				SelfLevel: 12, OpponentLevel: 14, ChainCount: 49,
				SelfStats: &Stats{Total: 1000}, OpponentStats: &Stats{Strength: 5},
			},
			want: "L11-15__L11-15__C10-49__PEACE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keyer.Key(tt.ctx))
		})
	}
}

func TestKeyer_Deterministic(t *testing.T) {
	ctx := MatchContext{SelfLevel: 27, OpponentLevel: 31, ChainCount: 777, AtWar: true}
	first := NewKeyer(5).Key(ctx)
	for i := 0; i < 100; i++ {
		// A fresh keyer per call stands in for a process restart.
		require.Equal(t, first, NewKeyer(5).Key(ctx))
	}
	assert.Equal(t, Key("L26-30__L31-35__C500-999__WAR"), first)
}

func TestKeyer_CustomWidth(t *testing.T) {
	keyer := NewKeyer(10)
	assert.Equal(t, "L1-10", keyer.LevelBand(1))
	assert.Equal(t, "L1-10", keyer.LevelBand(10))
	assert.Equal(t, "L11-20", keyer.LevelBand(11))
}

func TestChainBand(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, "C0-9"},
		{1, "C0-9"},
		{9, "C0-9"},
		{10, "C10-49"},
		{49, "C10-49"},
		{50, "C50-99"},
		{99, "C50-99"},
		{100, "C100-249"},
		{250, "C250-499"},
		{500, "C500-999"},
		{999, "C500-999"},
		{1000, "C1000-2499"},
		{2500, "C2500-4999"},
		{99999, "C50000-99999"},
		{100000, "C100000+"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChainBand(tt.count), "count %d", tt.count)
	}
}

func TestParseKey(t *testing.T) {
	parts, err := ParseKey("L41-45__L76-80__C100000+__WAR")
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 41, Max: 45}, parts.Self)
	assert.Equal(t, Range{Min: 76, Max: 80}, parts.Opponent)
	assert.Equal(t, Range{Min: 100000, Max: -1}, parts.Chain)
	assert.True(t, parts.AtWar)

	for _, bad := range []Key{"", "garbage", "L1-5__L1-5__C0-9__MAYBE", "X1-5__L1-5__C0-9__WAR", "L5-1__L1-5__C0-9__WAR"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, "key %q", bad)
		assert.False(t, bad.Valid())
	}
}

func TestParseKey_RoundTripsKeyerOutput(t *testing.T) {
	keyer := NewKeyer(5)
	for level := 1; level <= 100; level += 7 {
		for _, chain := range []int{0, 15, 300, 60000} {
			key := keyer.Key(MatchContext{SelfLevel: level, OpponentLevel: level + 3, ChainCount: chain})
			assert.True(t, key.Valid(), "key %q", key)
		}
	}
}

func TestStats_Sum(t *testing.T) {
	assert.Equal(t, 400.0, Stats{Total: 400}.Sum())
	assert.Equal(t, 10.0, Stats{Strength: 1, Defense: 2, Speed: 3, Dexterity: 4, Total: 999}.Sum())
}
