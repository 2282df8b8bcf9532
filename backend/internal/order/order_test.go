package order

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestBetween(t *testing.T) {
	e := Default

	assert.Equal(t, 1000.0, e.Between(nil, nil))
	assert.Equal(t, -500.0, e.Between(nil, ptr(500)))
	assert.Equal(t, 3000.0, e.Between(ptr(2000), nil))
	assert.Equal(t, 1500.0, e.Between(ptr(1000), ptr(2000)))
}

func TestBetweenStrictlyInside(t *testing.T) {
	e := Default
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		before := r.Float64()*1e6 - 5e5
		after := before + r.Float64()*1e4 + 1e-3
		got := e.Between(&before, &after)
		assert.Greater(t, got, before)
		assert.Less(t, got, after)
	}
}

func TestInitial(t *testing.T) {
	e := Default
	assert.Equal(t, 1000.0, e.Initial(nil))
	assert.Equal(t, 4000.0, e.Initial([]float64{1000, 3000, 2500}))
	assert.Equal(t, 500.0, e.Initial([]float64{-500}))
}

func TestSame(t *testing.T) {
	e := Default
	assert.True(t, e.Same(1000, 1000+1e-9))
	assert.False(t, e.Same(1000, 1000.1))
}

func TestRebalanceIdempotent(t *testing.T) {
	e := Default
	in := []Entry{{"a", 7}, {"b", 3.5}, {"c", 3.25}, {"d", 90}}

	once := e.Rebalance(in)
	twice := e.Rebalance(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, []Entry{{"c", 1000}, {"b", 2000}, {"a", 3000}, {"d", 4000}}, once)
	// input untouched
	assert.Equal(t, 7.0, in[0].Order)
}

func TestRebalanceKeepsTieInputOrder(t *testing.T) {
	out := Default.Rebalance([]Entry{{"first", 5}, {"second", 5}, {"third", 1}})
	assert.Equal(t, []string{"third", "first", "second"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

// Column C holds cards at 1000 and 2000. Insert between them, then keep inserting
// right after the first card until the gap is exhausted, then rebalance.
func TestMidpointInsertionScenario(t *testing.T) {
	e := Default
	first, last := 1000.0, 2000.0

	mid := e.Between(&first, &last)
	require.Equal(t, 1500.0, mid)

	x := e.Between(&first, &mid)
	require.Equal(t, 1250.0, x)

	for i := 0; i < 12; i++ {
		x = e.Between(&first, &x)
		require.Greater(t, x, first)
	}
	assert.InDelta(t, 1000+250/math.Pow(2, 12), x, 1e-9)

	out := e.Rebalance([]Entry{{"k1", first}, {"new", x}, {"k2", mid}, {"k3", last}})
	assert.Equal(t, []Entry{{"k1", 1000}, {"new", 2000}, {"k2", 3000}, {"k3", 4000}}, out)
}

func TestNeedsRebalance(t *testing.T) {
	e := New(1000, 0.01)
	assert.False(t, e.NeedsRebalance(nil))
	assert.False(t, e.NeedsRebalance([]float64{1000, 2000, 3000}))
	assert.True(t, e.NeedsRebalance([]float64{1000, 2000, 1000.001}))
	assert.True(t, e.NeedsRebalance([]float64{5, 5}))

	// once the gap is below epsilon, rebalance restores uniform spacing
	first, x := 1000.0, 2000.0
	orders := []float64{first, x}
	for !e.NeedsRebalance(orders) {
		x = e.Between(&first, &x)
		orders = append(orders, x)
	}
	entries := make([]Entry, len(orders))
	for i, o := range orders {
		entries[i] = Entry{Order: o}
	}
	out := e.Rebalance(entries)
	got := make([]float64, len(out))
	for i, en := range out {
		got[i] = en.Order
	}
	assert.False(t, e.NeedsRebalance(got))
	for i := 1; i < len(out); i++ {
		assert.Equal(t, e.Step, out[i].Order-out[i-1].Order)
	}
}

func TestNeedsRebalanceAtFloatLimit(t *testing.T) {
	e := New(1000, 1e-300)
	lo := 1.0
	hi := math.Nextafter(lo, 2)
	assert.True(t, e.NeedsRebalance([]float64{lo, hi}))
}

func TestNew(t *testing.T) {
	e := New(0, 0)
	assert.Equal(t, Default, e)
	e = New(10, 0.5)
	assert.Equal(t, 10.0, e.Step)
	assert.Equal(t, 10.0, e.Anchor)
	assert.Equal(t, 0.5, e.Epsilon)
	assert.True(t, Valid(1))
	assert.False(t, Valid(math.NaN()))
	assert.False(t, Valid(math.Inf(1)))
}
