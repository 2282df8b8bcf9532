package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kanbanServer/backend/internal/model"
)

type MemoryStore struct {
	mu     sync.RWMutex
	boards map[string]model.Board
	items  map[string]model.Item
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		boards: make(map[string]model.Board),
		items:  make(map[string]model.Item),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateBoard(ctx context.Context, b model.Board) (model.Board, error) {
	if b.Title == "" {
		return model.Board{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, ok := s.boards[b.ID]; ok {
		return model.Board{}, fmt.Errorf("%w: board %s exists", ErrInvalid, b.ID)
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	s.boards[b.ID] = b
	return b, nil
}

func (s *MemoryStore) GetBoard(ctx context.Context, boardID string) (model.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[boardID]
	if !ok {
		return model.Board{}, fmt.Errorf("%w: board %s", ErrNotFound, boardID)
	}
	return b, nil
}

func (s *MemoryStore) GetItem(ctx context.Context, itemID string) (model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[itemID]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	return it.Clone(), nil
}

func (s *MemoryStore) ListChildren(ctx context.Context, parentID string) ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.children(parentID), nil
}

func (s *MemoryStore) children(parentID string) []model.Item {
	var out []model.Item
	for _, it := range s.items {
		if it.ParentID == parentID {
			out = append(out, it.Clone())
		}
	}
	sortItems(out)
	return out
}

func (s *MemoryStore) CreateItem(ctx context.Context, it model.Item) (model.Item, error) {
	if err := validateItem(it); err != nil {
		return model.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if _, ok := s.items[it.ID]; ok {
		return model.Item{}, fmt.Errorf("%w: item %s exists", ErrInvalid, it.ID)
	}
	now := s.now()
	it.CreatedAt, it.UpdatedAt = now, now
	s.items[it.ID] = it.Clone()
	return it, nil
}

// UpdateItem replaces the stored record; CreatedAt is kept from the stored copy.
func (s *MemoryStore) UpdateItem(ctx context.Context, it model.Item) (model.Item, error) {
	if err := validateItem(it); err != nil {
		return model.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[it.ID]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: item %s", ErrNotFound, it.ID)
	}
	it.CreatedAt = cur.CreatedAt
	it.UpdatedAt = s.now()
	s.items[it.ID] = it.Clone()
	return it, nil
}

// UpdateOrders writes new positions for parentID's children and returns the
// stored records. Items that were moved, reordered or deleted since the
// positions were computed are left alone and not returned.
func (s *MemoryStore) UpdateOrders(ctx context.Context, parentID string, changes []Reorder) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]model.Item, 0, len(changes))
	for _, c := range changes {
		it, ok := s.items[c.ID]
		if !ok || it.ParentID != parentID || it.Order != c.Was {
			continue
		}
		it.Order = c.Order
		it.UpdatedAt = now
		s.items[c.ID] = it
		out = append(out, it.Clone())
	}
	return out, nil
}

// DeleteItem removes the item and, for a column, its cards.
func (s *MemoryStore) DeleteItem(ctx context.Context, itemID string) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	for id, child := range s.items {
		if child.ParentID == itemID {
			delete(s.items, id)
		}
	}
	delete(s.items, itemID)
	return it, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, boardID string) (model.BoardSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[boardID]
	if !ok {
		return model.BoardSnapshot{}, fmt.Errorf("%w: board %s", ErrNotFound, boardID)
	}
	snap := model.BoardSnapshot{Board: b, Columns: s.children(boardID), Cards: []model.Item{}}
	for _, col := range snap.Columns {
		snap.Cards = append(snap.Cards, s.children(col.ID)...)
	}
	sortItems(snap.Cards)
	if snap.Columns == nil {
		snap.Columns = []model.Item{}
	}
	return snap, nil
}
