// Package bucket maps raw match context onto coarse, restart-stable similarity keys.
package bucket

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultLevelBandWidth is the number of levels grouped into one level band.
const DefaultLevelBandWidth = 5

const (
	war   = "WAR"
	peace = "PEACE"
	sep   = "__"
)

// chainEdges are the lower bounds of the chain bands. Low chains are common and
// get fine bands; high chains are rare and share wide ones.
var chainEdges = []int{0, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000, 100000}

// Stats holds a combatant's battle stats. Total is used when the sub-stats are unknown.
type Stats struct {
	Strength  float64 `json:"strength,omitempty"`
	Defense   float64 `json:"defense,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Dexterity float64 `json:"dexterity,omitempty"`
	Total     float64 `json:"total,omitempty"`
}

// HasBreakdown reports whether any individual sub-stat is known.
func (s Stats) HasBreakdown() bool {
	return s.Strength > 0 || s.Defense > 0 || s.Speed > 0 || s.Dexterity > 0
}

// Sum returns the total of the sub-stats, or Total when no breakdown is known.
func (s Stats) Sum() float64 {
	if s.HasBreakdown() {
		return s.Strength + s.Defense + s.Speed + s.Dexterity
	}
	return s.Total
}

// MatchContext describes one potential or observed fight. It is input only.
type MatchContext struct {
	SelfLevel     int    `json:"self_level"`
	OpponentLevel int    `json:"opponent_level"`
	ChainCount    int    `json:"chain_count"`
	AtWar         bool   `json:"at_war"`
	SelfStats     *Stats `json:"self_stats,omitempty"`
	OpponentStats *Stats `json:"opponent_stats,omitempty"`
}

// Key is an opaque bucket identifier, e.g. "L1-5__L1-5__C0-9__PEACE".
type Key string

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }

// Valid reports whether the key has the shape produced by a Keyer.
func (k Key) Valid() bool {
	_, err := ParseKey(k)
	return err == nil
}

// Keyer computes bucket keys. The zero value uses DefaultLevelBandWidth.
type Keyer struct {
	LevelBandWidth int
}

// NewKeyer returns a Keyer with the given level band width (<= 0 selects the default).
func NewKeyer(levelBandWidth int) Keyer {
	return Keyer{LevelBandWidth: levelBandWidth}
}

func (k Keyer) width() int {
	if k.LevelBandWidth <= 0 {
		return DefaultLevelBandWidth
	}
	return k.LevelBandWidth
}

// Key returns the bucket key for ctx. It never fails; out-of-range inputs clamp
// to the lowest band.
func (k Keyer) Key(ctx MatchContext) Key {
	var b strings.Builder
	b.Grow(32)
	b.WriteString(k.LevelBand(ctx.SelfLevel))
	b.WriteString(sep)
	b.WriteString(k.LevelBand(ctx.OpponentLevel))
	b.WriteString(sep)
	b.WriteString(ChainBand(ctx.ChainCount))
	b.WriteString(sep)
	if ctx.AtWar {
		b.WriteString(war)
	} else {
		b.WriteString(peace)
	}
	return Key(b.String())
}

// LevelBand returns the level band label for level, e.g. "L6-10" for width 5.
func (k Keyer) LevelBand(level int) string {
	w := k.width()
	if level < 1 {
		level = 1
	}
	lo := ((level-1)/w)*w + 1
	return "L" + strconv.Itoa(lo) + "-" + strconv.Itoa(lo+w-1)
}

// ChainBand returns the chain band label for count, e.g. "C10-49".
func ChainBand(count int) string {
	if count < 0 {
		count = 0
	}
	i := len(chainEdges) - 1
	for i > 0 && count < chainEdges[i] {
		i--
	}
	if i == len(chainEdges)-1 {
		return "C" + strconv.Itoa(chainEdges[i]) + "+"
	}
	return "C" + strconv.Itoa(chainEdges[i]) + "-" + strconv.Itoa(chainEdges[i+1]-1)
}

// Range is an inclusive integer band. Max is -1 for an open-ended band.
type Range struct {
	Min int
	Max int
}

// Parts is a decomposed bucket key.
type Parts struct {
	Self     Range
	Opponent Range
	Chain    Range
	AtWar    bool
}

// ParseKey decomposes a key produced by Keyer.Key.
func ParseKey(k Key) (Parts, error) {
	fields := strings.Split(string(k), sep)
	if len(fields) != 4 {
		return Parts{}, fmt.Errorf("bucket key %q: expected 4 fields, got %d", k, len(fields))
	}

	var p Parts
	var err error
	if p.Self, err = parseRange(fields[0], "L"); err != nil {
		return Parts{}, fmt.Errorf("bucket key %q: self level: %w", k, err)
	}
	if p.Opponent, err = parseRange(fields[1], "L"); err != nil {
		return Parts{}, fmt.Errorf("bucket key %q: opponent level: %w", k, err)
	}
	if p.Chain, err = parseRange(fields[2], "C"); err != nil {
		return Parts{}, fmt.Errorf("bucket key %q: chain: %w", k, err)
	}

	switch fields[3] {
	case war:
		p.AtWar = true
	case peace:
	default:
		return Parts{}, fmt.Errorf("bucket key %q: unknown war flag %q", k, fields[3])
	}
	return p, nil
}

func parseRange(s, prefix string) (Range, error) {
	if !strings.HasPrefix(s, prefix) {
		return Range{}, fmt.Errorf("missing %q prefix in %q", prefix, s)
	}
	s = strings.TrimPrefix(s, prefix)

	if open, ok := strings.CutSuffix(s, "+"); ok {
		lo, err := strconv.Atoi(open)
		if err != nil {
			return Range{}, fmt.Errorf("parse band %q: %w", s, err)
		}
		return Range{Min: lo, Max: -1}, nil
	}

	loStr, hiStr, ok := strings.Cut(s, "-")
	if !ok {
		return Range{}, fmt.Errorf("band %q has no upper bound", s)
	}
	lo, err := strconv.Atoi(loStr)
	if err != nil {
		return Range{}, fmt.Errorf("parse band %q: %w", s, err)
	}
	hi, err := strconv.Atoi(hiStr)
	if err != nil {
		return Range{}, fmt.Errorf("parse band %q: %w", s, err)
	}
	if hi < lo {
		return Range{}, fmt.Errorf("band %q is inverted", s)
	}
	return Range{Min: lo, Max: hi}, nil
}
