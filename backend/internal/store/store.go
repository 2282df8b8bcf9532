// Package store persists boards, columns and cards. MemoryStore backs tests and
// single-process deployments; GormStore backs MySQL.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"kanbanServer/backend/internal/model"
)

var (
	ErrNotFound = errors.New("NOT_FOUND")
	ErrInvalid  = errors.New("INVALID_RECORD")
)

// Reorder is one rebalance write. It only applies while the item is still a
// child of the rebalanced parent at position Was.
type Reorder struct {
	ID    string
	Was   float64
	Order float64
}

func validateItem(it model.Item) error {
	switch it.Kind {
	case model.KindColumn, model.KindCard:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, it.Kind)
	}
	if it.BoardID == "" || it.ParentID == "" {
		return fmt.Errorf("%w: board and parent are required", ErrInvalid)
	}
	if strings.TrimSpace(it.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	return nil
}

// sortItems orders siblings by position, then creation time, then id.
func sortItems(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
