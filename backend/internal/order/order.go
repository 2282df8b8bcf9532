// Package order computes fractional positions for items inside one parent.
//
// Inserting between two neighbours only changes the inserted item's value. Repeated
// midpoint insertion eventually runs out of float64 precision, so callers check
// NeedsRebalance after each placement and respace the parent with Rebalance.
package order

import (
	"math"
	"sort"
)

const (
	DefaultStep    = 1000.0
	DefaultAnchor  = 1000.0
	DefaultEpsilon = 1e-6
)

type Engine struct {
	Step    float64
	Anchor  float64
	Epsilon float64
}

var Default = Engine{Step: DefaultStep, Anchor: DefaultAnchor, Epsilon: DefaultEpsilon}

// New fills zero values with the defaults.
func New(step, epsilon float64) Engine {
	e := Default
	if step > 0 {
		e.Step = step
		e.Anchor = step
	}
	if epsilon > 0 {
		e.Epsilon = epsilon
	}
	return e
}

// Between returns a position after before and ahead of after. Either neighbour may be nil.
func (e Engine) Between(before, after *float64) float64 {
	switch {
	case before == nil && after == nil:
		return e.Anchor
	case before == nil:
		return *after - e.Step
	case after == nil:
		return *before + e.Step
	default:
		return *before + (*after-*before)/2
	}
}

// Initial returns the position for appending after every existing order.
func (e Engine) Initial(existing []float64) float64 {
	if len(existing) == 0 {
		return e.Step
	}
	max := existing[0]
	for _, o := range existing[1:] {
		if o > max {
			max = o
		}
	}
	return max + e.Step
}

// Same reports whether two positions are indistinguishable.
func (e Engine) Same(a, b float64) bool {
	return math.Abs(a-b) < e.Epsilon
}

// NeedsRebalance reports whether any two adjacent positions are closer than
// Epsilon, or so close that no midpoint fits between them.
func (e Engine) NeedsRebalance(orders []float64) bool {
	if len(orders) < 2 {
		return false
	}
	sorted := append([]float64(nil), orders...)
	sort.Float64s(sorted)
	for i := 1; i < len(sorted); i++ {
		lo, hi := sorted[i-1], sorted[i]
		if hi-lo < e.Epsilon {
			return true
		}
		mid := lo + (hi-lo)/2
		if mid <= lo || mid >= hi {
			return true
		}
	}
	return false
}

type Entry struct {
	ID    string
	Order float64
}

// Rebalance sorts entries by order and reassigns (index+1)*Step. Ties keep their
// input sequence, so callers pass entries in insertion order. The input slice is
// not modified.
func (e Engine) Rebalance(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = float64(i+1) * e.Step
	}
	return out
}

// Valid rejects positions that cannot be ordered.
func Valid(o float64) bool {
	return !math.IsNaN(o) && !math.IsInf(o, 0)
}
