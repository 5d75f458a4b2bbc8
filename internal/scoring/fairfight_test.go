package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

func TestBattleScore(t *testing.T) {
	tests := []struct {
		name  string
		stats bucket.Stats
		want  float64
	}{
		{"full breakdown", bucket.Stats{Strength: 100, Defense: 400, Speed: 900, Dexterity: 1600}, 10 + 20 + 30 + 40},
		{"total only", bucket.Stats{Total: 400}, 4 * 10},
		{"zero", bucket.Stats{}, 0},
		{"negative sub-stat ignored", bucket.Stats{Strength: -100, Defense: 100}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, BattleScore(tt.stats), 1e-9)
		})
	}
}

func TestFairFight_LopsidedFight(t *testing.T) {
	got := FairFight(1000, 250)
	assert.InDelta(t, 1.0+(0.25/0.75)*2.0, got, 1e-12)
	assert.InDelta(t, 1.667, got, 1e-3)

	// Argument order does not matter.
	assert.Equal(t, got, FairFight(250, 1000))
}

func TestFairFight_Boundaries(t *testing.T) {
	// Bit-exact at the cutoff.
	assert.Equal(t, 3.0, FairFightMultiplier(0.75))
	assert.Equal(t, 3.0, FairFight(1000, 750))
	assert.Equal(t, 3.0, FairFight(500, 500))
	assert.Equal(t, 3.0, FairFightMultiplier(1))

	assert.Equal(t, 1.0, FairFightMultiplier(0))
	assert.Equal(t, 1.0, FairFight(0, 0))
	assert.Equal(t, 1.0, FairFight(0, 500))
	assert.Equal(t, 1.0, FairFight(-3, 500))
	assert.Equal(t, 1.0, FairFightMultiplier(math.NaN()))
}

func TestFairFight_Monotone(t *testing.T) {
	prev := FairFightMultiplier(0)
	for i := 1; i <= 1000; i++ {
		r := float64(i) / 1000
		v := FairFightMultiplier(r)
		assert.GreaterOrEqual(t, v, prev, "ratio %v", r)
		assert.LessOrEqual(t, v, FairFightMax)
		prev = v
	}
}
