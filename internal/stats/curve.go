// Package stats estimates a combatant's total battle stats from their level using a
// sparse reference curve that is refined by real observations.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrEmptyCurve is returned when a curve has no usable anchors.
var ErrEmptyCurve = errors.New("stat curve has no anchors")

// Anchor is one known point of the level -> total stats curve.
type Anchor struct {
	Level int     `json:"level" yaml:"level"`
	Total float64 `json:"total" yaml:"total"`
}

// Curve is an ordered set of anchors with unique levels. It is immutable; updates
// produce a new Curve.
type Curve struct {
	anchors []Anchor
}

// NewCurve sorts and validates anchors. Later duplicates of a level win.
func NewCurve(anchors []Anchor) (Curve, error) {
	byLevel := make(map[int]float64, len(anchors))
	for _, a := range anchors {
		if math.IsNaN(a.Total) || math.IsInf(a.Total, 0) || a.Total < 0 {
			return Curve{}, fmt.Errorf("anchor at level %d: invalid total %v", a.Level, a.Total)
		}
		byLevel[a.Level] = a.Total
	}
	if len(byLevel) == 0 {
		return Curve{}, ErrEmptyCurve
	}

	sorted := make([]Anchor, 0, len(byLevel))
	for level, total := range byLevel {
		sorted = append(sorted, Anchor{Level: level, Total: total})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	return Curve{anchors: sorted}, nil
}

// MustCurve is NewCurve for static tables; it panics on invalid input.
func MustCurve(anchors []Anchor) Curve {
	c, err := NewCurve(anchors)
	if err != nil {
		panic(err)
	}
	return c
}

// Anchors returns a copy of the anchors in level order.
func (c Curve) Anchors() []Anchor {
	return append([]Anchor(nil), c.anchors...)
}

// Len returns the number of anchors.
func (c Curve) Len() int { return len(c.anchors) }

// Estimate returns the expected total stats at level. Between anchors the value is
// interpolated linearly; outside the known range it is clamped to the nearest end
// anchor rather than extrapolated.
func (c Curve) Estimate(level int) float64 {
	n := len(c.anchors)
	if n == 0 {
		return 0
	}
	if level <= c.anchors[0].Level {
		return c.anchors[0].Total
	}
	if level >= c.anchors[n-1].Level {
		return c.anchors[n-1].Total
	}

	i := sort.Search(n, func(i int) bool { return c.anchors[i].Level >= level })
	hi := c.anchors[i]
	if hi.Level == level {
		return hi.Total
	}
	lo := c.anchors[i-1]
	frac := float64(level-lo.Level) / float64(hi.Level-lo.Level)
	return lo.Total + frac*(hi.Total-lo.Total)
}

// nearest returns the index of the anchor closest to level. Ties go to the lower anchor.
func (c Curve) nearest(level int) int {
	n := len(c.anchors)
	i := sort.Search(n, func(i int) bool { return c.anchors[i].Level >= level })
	switch {
	case i == 0:
		return 0
	case i == n:
		return n - 1
	}
	if level-c.anchors[i-1].Level <= c.anchors[i].Level-level {
		return i - 1
	}
	return i
}

// withAnchor returns a copy of c with the anchor at index i set to total.
func (c Curve) withAnchor(i int, total float64) Curve {
	anchors := c.Anchors()
	anchors[i].Total = total
	return Curve{anchors: anchors}
}

// DefaultCurve is the built-in reference table used until observations or an
// anchor file say otherwise.
func DefaultCurve() Curve {
	return MustCurve([]Anchor{
		{Level: 1, Total: 40},
		{Level: 5, Total: 400},
		{Level: 10, Total: 2_500},
		{Level: 15, Total: 10_000},
		{Level: 20, Total: 30_000},
		{Level: 25, Total: 75_000},
		{Level: 30, Total: 160_000},
		{Level: 40, Total: 600_000},
		{Level: 50, Total: 2_000_000},
		{Level: 60, Total: 6_000_000},
		{Level: 70, Total: 15_000_000},
		{Level: 80, Total: 40_000_000},
		{Level: 90, Total: 100_000_000},
		{Level: 100, Total: 250_000_000},
	})
}
