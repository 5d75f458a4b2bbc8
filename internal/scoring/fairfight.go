// Package scoring turns the available signals about a potential fight into a
// difficulty score, a fair-fight multiplier and a confidence value.
package scoring

import (
	"math"

	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

const (
	// FairFightMin is the multiplier for a hopelessly lopsided fight.
	FairFightMin = 1.0
	// FairFightMax is the multiplier once the battle-score ratio reaches FairFightCutoff.
	FairFightMax = 3.0
	// FairFightCutoff is the ratio at and above which the multiplier is FairFightMax.
	FairFightCutoff = 0.75
)

// BattleScore is the sum of the square roots of the four sub-stats. When only the
// total is known each sub-stat is taken to be Total/4.
func BattleScore(s bucket.Stats) float64 {
	if s.HasBreakdown() {
		return safeSqrt(s.Strength) + safeSqrt(s.Defense) + safeSqrt(s.Speed) + safeSqrt(s.Dexterity)
	}
	quarter := safeSqrt(s.Total / 4)
	return quarter + quarter + quarter + quarter
}

func safeSqrt(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Sqrt(v)
}

// FairFight returns the multiplier for two battle scores. The ratio of the weaker
// to the stronger score drives it; a non-positive score counts as ratio 0.
func FairFight(a, b float64) float64 {
	lo, hi := math.Min(a, b), math.Max(a, b)
	if lo <= 0 || hi <= 0 || math.IsNaN(lo) || math.IsNaN(hi) {
		return FairFightMultiplier(0)
	}
	return FairFightMultiplier(lo / hi)
}

// FairFightMultiplier maps a battle-score ratio in [0, 1] to [1, 3]: exactly 3 at
// and above 0.75, otherwise 1 + (ratio/0.75)*2.
func FairFightMultiplier(ratio float64) float64 {
	if ratio >= FairFightCutoff {
		return FairFightMax
	}
	if ratio <= 0 || math.IsNaN(ratio) {
		return FairFightMin
	}
	return FairFightMin + (ratio/FairFightCutoff)*(FairFightMax-FairFightMin)
}
