package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanbanServer/backend/internal/model"
)

func seed(t *testing.T) (*MemoryStore, model.Board, model.Item) {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	b, err := s.CreateBoard(ctx, model.Board{ID: "b1", Title: "Roadmap"})
	require.NoError(t, err)
	col, err := s.CreateItem(ctx, model.Item{Kind: model.KindColumn, BoardID: b.ID, ParentID: b.ID, Title: "Todo", Order: 1000})
	require.NoError(t, err)
	return s, b, col
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s, b, col := seed(t)

	card, err := s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "a", Order: 2000, Labels: []string{"x"}})
	require.NoError(t, err)
	assert.NotEmpty(t, card.ID)
	assert.False(t, card.CreatedAt.IsZero())

	got, err := s.GetItem(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card, got)

	// returned records do not alias stored state
	got.Labels[0] = "mutated"
	again, _ := s.GetItem(ctx, card.ID)
	assert.Equal(t, []string{"x"}, again.Labels)

	card.Title = "renamed"
	updated, err := s.UpdateItem(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, card.CreatedAt, updated.CreatedAt)

	_, err = s.UpdateItem(ctx, model.Item{ID: "ghost", Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateItem(ctx, model.Item{Kind: "lane", BoardID: b.ID, ParentID: col.ID, Title: "x"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.GetBoard(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreChildrenSorted(t *testing.T) {
	ctx := context.Background()
	s, b, col := seed(t)
	for _, o := range []float64{3000, 1000, 2000} {
		_, err := s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "c", Order: o})
		require.NoError(t, err)
	}
	kids, err := s.ListChildren(ctx, col.ID)
	require.NoError(t, err)
	require.Len(t, kids, 3)
	assert.Equal(t, []float64{1000, 2000, 3000}, []float64{kids[0].Order, kids[1].Order, kids[2].Order})
}

func TestMemoryStoreUpdateOrders(t *testing.T) {
	ctx := context.Background()
	s, b, col := seed(t)
	a, _ := s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "a", Order: 1})
	c, _ := s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "c", Order: 1.5})

	out, err := s.UpdateOrders(ctx, col.ID, []Reorder{{ID: a.ID, Was: 1, Order: 1000}, {ID: c.ID, Was: 1.5, Order: 2000}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1000.0, out[0].Order)
	assert.Equal(t, 2000.0, out[1].Order)

	out, err = s.UpdateOrders(ctx, col.ID, []Reorder{{ID: a.ID, Was: 1000, Order: 5}, {ID: "ghost", Was: 1, Order: 6}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, a.ID, out[0].ID)
}

// Positions computed before a concurrent move must not overwrite it.
func TestMemoryStoreUpdateOrdersSkipsStale(t *testing.T) {
	ctx := context.Background()
	s, b, col := seed(t)
	other, err := s.CreateItem(ctx, model.Item{Kind: model.KindColumn, BoardID: b.ID, ParentID: b.ID, Title: "other", Order: 2000})
	require.NoError(t, err)
	a, _ := s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "a", Order: 1})
	c, _ := s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "c", Order: 1.5})
	d, _ := s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "d", Order: 1.75})

	// c changes position, d changes column after the rebalance read
	c.Order = 1.25
	_, err = s.UpdateItem(ctx, c)
	require.NoError(t, err)
	d.ParentID = other.ID
	d.Order = 500
	_, err = s.UpdateItem(ctx, d)
	require.NoError(t, err)

	out, err := s.UpdateOrders(ctx, col.ID, []Reorder{
		{ID: a.ID, Was: 1, Order: 1000},
		{ID: c.ID, Was: 1.5, Order: 2000},
		{ID: d.ID, Was: 1.75, Order: 3000},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, a.ID, out[0].ID)

	gotC, _ := s.GetItem(ctx, c.ID)
	assert.Equal(t, 1.25, gotC.Order)
	gotD, _ := s.GetItem(ctx, d.ID)
	assert.Equal(t, other.ID, gotD.ParentID)
	assert.Equal(t, 500.0, gotD.Order)
}

func TestMemoryStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s, b, col := seed(t)
	card, _ := s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "a", Order: 1})

	deleted, err := s.DeleteItem(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, col.ID, deleted.ID)

	_, err = s.GetItem(ctx, card.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeleteItem(ctx, col.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSnapshot(t *testing.T) {
	ctx := context.Background()
	s, b, col := seed(t)
	col2, _ := s.CreateItem(ctx, model.Item{Kind: model.KindColumn, BoardID: b.ID, ParentID: b.ID, Title: "Done", Order: 500})
	_, _ = s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col.ID, Title: "a", Order: 2})
	_, _ = s.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: b.ID, ParentID: col2.ID, Title: "b", Order: 1})

	snap, err := s.Snapshot(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", snap.Board.Title)
	require.Len(t, snap.Columns, 2)
	assert.Equal(t, col2.ID, snap.Columns[0].ID)
	require.Len(t, snap.Cards, 2)
	assert.Equal(t, "b", snap.Cards[0].Title)
}

func TestEntityConversion(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	it := model.Item{ID: "k", Kind: model.KindCard, BoardID: "b", ParentID: "c", Order: 1500, Title: "t", Labels: []string{"a"}, DueDate: &due}
	e := itemToEntity(it)
	assert.Equal(t, 1500.0, e.SortOrder)
	assert.Equal(t, "board_items", e.TableName())
	assert.Equal(t, it, itemFromEntity(e))
}
