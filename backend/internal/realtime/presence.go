package realtime

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"kanbanServer/backend/internal/model"
)

// PresenceTable tracks which sessions are viewing which board. A session is on
// at most one board.
type PresenceTable struct {
	mu        sync.RWMutex
	boards    map[string]map[string]model.Presence // boardID -> sessionID -> entry
	bySession map[string]string                    // sessionID -> boardID
	now       func() time.Time
}

type JoinResult struct {
	Self     model.Presence
	Previous string // board the session left, "" if none
	Rejoined bool   // the session was already on this board
	Members  []model.Presence
}

func NewPresenceTable() *PresenceTable {
	return &PresenceTable{
		boards:    make(map[string]map[string]model.Presence),
		bySession: make(map[string]string),
		now:       time.Now,
	}
}

// Join moves sessionID onto boardID, leaving any previous board. Identities
// with unresolved fields are rejected.
func (p *PresenceTable) Join(boardID, sessionID string, who model.Identity) (JoinResult, error) {
	if err := who.Validate(); err != nil {
		return JoinResult{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var res JoinResult
	if prev, ok := p.bySession[sessionID]; ok {
		if prev == boardID {
			res.Rejoined = true
			res.Self = p.boards[boardID][sessionID]
			res.Members = p.members(boardID)
			return res, nil
		}
		p.remove(prev, sessionID)
		res.Previous = prev
	}

	entry := model.Presence{SessionID: sessionID, BoardID: boardID, UserID: who.ID, User: who, JoinedAt: p.now()}
	set := p.boards[boardID]
	if set == nil {
		set = make(map[string]model.Presence)
		p.boards[boardID] = set
	}
	set[sessionID] = entry
	p.bySession[sessionID] = boardID

	res.Self = entry
	res.Members = p.members(boardID)
	return res, nil
}

// Leave removes sessionID from boardID. It is a no-op when the session is elsewhere.
func (p *PresenceTable) Leave(boardID, sessionID string) (model.Presence, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bySession[sessionID] != boardID {
		return model.Presence{}, false
	}
	return p.remove(boardID, sessionID), true
}

// Disconnect removes sessionID from whatever board it is on.
func (p *PresenceTable) Disconnect(sessionID string) (model.Presence, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	boardID, ok := p.bySession[sessionID]
	if !ok {
		return model.Presence{}, false
	}
	return p.remove(boardID, sessionID), true
}

func (p *PresenceTable) remove(boardID, sessionID string) model.Presence {
	set := p.boards[boardID]
	entry := set[sessionID]
	delete(set, sessionID)
	if len(set) == 0 {
		delete(p.boards, boardID)
	}
	delete(p.bySession, sessionID)
	return entry
}

// Members returns the board's entries ordered by join time.
func (p *PresenceTable) Members(boardID string) []model.Presence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.members(boardID)
}

func (p *PresenceTable) members(boardID string) []model.Presence {
	set := p.boards[boardID]
	out := make([]model.Presence, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

func (p *PresenceTable) BoardOf(sessionID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.bySession[sessionID]
	return b, ok
}

// Entry returns the session's presence record, if it is on a board.
func (p *PresenceTable) Entry(sessionID string) (model.Presence, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.bySession[sessionID]
	if !ok {
		return model.Presence{}, false
	}
	return p.boards[b][sessionID], true
}

func (p *PresenceTable) Sessions(boardID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.boards[boardID]))
	for id := range p.boards[boardID] {
		out = append(out, id)
	}
	return out
}

func (p *PresenceTable) Boards() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.boards)
}
