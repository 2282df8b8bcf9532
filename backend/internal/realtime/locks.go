package realtime

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"kanbanServer/backend/internal/model"
)

// LockTable holds advisory per-item locks. An item is either unlocked or held
// by exactly one session.
type LockTable struct {
	mu        sync.Mutex
	locks     map[string]model.Lock          // itemID -> lock
	bySession map[string]map[string]struct{} // sessionID -> itemIDs
	now       func() time.Time
}

func NewLockTable() *LockTable {
	return &LockTable{
		locks:     make(map[string]model.Lock),
		bySession: make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}

// Acquire locks itemID for sessionID. granted is false when the session already
// held the lock. A lock held by another session yields ErrLockConflict and the
// current holder.
func (t *LockTable) Acquire(itemID, sessionID, boardID string, who model.Identity) (lock model.Lock, granted bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.locks[itemID]; ok {
		if cur.SessionID == sessionID {
			return cur, false, nil
		}
		return cur, false, fmt.Errorf("%w: item %s is being edited by %s", ErrLockConflict, itemID, cur.Holder.Name)
	}
	lock = model.Lock{ItemID: itemID, SessionID: sessionID, BoardID: boardID, Holder: who, AcquiredAt: t.now()}
	t.locks[itemID] = lock
	held := t.bySession[sessionID]
	if held == nil {
		held = make(map[string]struct{})
		t.bySession[sessionID] = held
	}
	held[itemID] = struct{}{}
	return lock, true, nil
}

// Release unlocks itemID if sessionID holds it. Anything else is a no-op.
func (t *LockTable) Release(itemID, sessionID string) (model.Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.locks[itemID]
	if !ok || cur.SessionID != sessionID {
		return model.Lock{}, false
	}
	t.drop(cur)
	return cur, true
}

// ReleaseItem unlocks itemID whoever holds it. Used when the item is deleted.
func (t *LockTable) ReleaseItem(itemID string) (model.Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.locks[itemID]
	if !ok {
		return model.Lock{}, false
	}
	t.drop(cur)
	return cur, true
}

// ReleaseAll unlocks every item held by sessionID and returns the released locks.
func (t *LockTable) ReleaseAll(sessionID string) []model.Lock {
	return t.releaseWhere(sessionID, func(model.Lock) bool { return true })
}

// ReleaseBoard unlocks the items sessionID holds on boardID.
func (t *LockTable) ReleaseBoard(sessionID, boardID string) []model.Lock {
	return t.releaseWhere(sessionID, func(l model.Lock) bool { return l.BoardID == boardID })
}

func (t *LockTable) releaseWhere(sessionID string, match func(model.Lock) bool) []model.Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.Lock
	for itemID := range t.bySession[sessionID] {
		l := t.locks[itemID]
		if match(l) {
			out = append(out, l)
		}
	}
	for _, l := range out {
		t.drop(l)
	}
	sortLocks(out)
	return out
}

func (t *LockTable) drop(l model.Lock) {
	delete(t.locks, l.ItemID)
	if held := t.bySession[l.SessionID]; held != nil {
		delete(held, l.ItemID)
		if len(held) == 0 {
			delete(t.bySession, l.SessionID)
		}
	}
}

func (t *LockTable) Holder(itemID string) (model.Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[itemID]
	return l, ok
}

func (t *LockTable) HeldBy(sessionID string) []model.Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Lock, 0, len(t.bySession[sessionID]))
	for itemID := range t.bySession[sessionID] {
		out = append(out, t.locks[itemID])
	}
	sortLocks(out)
	return out
}

// OnBoard lists the locks on boardID in acquisition order.
func (t *LockTable) OnBoard(boardID string) []model.Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.Lock
	for _, l := range t.locks {
		if l.BoardID == boardID {
			out = append(out, l)
		}
	}
	sortLocks(out)
	return out
}

func sortLocks(ls []model.Lock) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].AcquiredAt.Equal(ls[j].AcquiredAt) {
			return ls[i].AcquiredAt.Before(ls[j].AcquiredAt)
		}
		return ls[i].ItemID < ls[j].ItemID
	})
}
