// Package client is the Go side of the board protocol: a local View of one
// board, a Manager that applies mutations optimistically and reconciles them
// with the server's broadcasts, and a WebSocket Conn that feeds both.
package client

import (
	"encoding/json"
	"sort"

	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/protocol"
)

// entry is an item plus its local insertion sequence. Equal orders sort by seq.
type entry struct {
	Item model.Item `json:"item"`
	Seq  uint64     `json:"seq"`
}

func (e entry) clone() entry {
	return entry{Item: e.Item.Clone(), Seq: e.Seq}
}

// View is the local copy of one board. It is not safe for concurrent use;
// Manager serialises access.
type View struct {
	boardID string
	items   map[string]entry
	seq     uint64
	online  map[string]model.Presence
	locks   map[string]protocol.Locked
}

func NewView(boardID string) *View {
	return &View{
		boardID: boardID,
		items:   make(map[string]entry),
		online:  make(map[string]model.Presence),
		locks:   make(map[string]protocol.Locked),
	}
}

func (v *View) BoardID() string { return v.boardID }

// Load replaces the item set with a server snapshot. Columns get lower
// sequence numbers than cards, each in snapshot order.
func (v *View) Load(snap model.BoardSnapshot) {
	v.boardID = snap.Board.ID
	v.items = make(map[string]entry, len(snap.Columns)+len(snap.Cards))
	for _, it := range snap.Columns {
		v.put(it)
	}
	for _, it := range snap.Cards {
		v.put(it)
	}
}

func (v *View) Item(id string) (model.Item, bool) {
	e, ok := v.items[id]
	if !ok {
		return model.Item{}, false
	}
	return e.Item.Clone(), true
}

func (v *View) Len() int { return len(v.items) }

// Children lists parentID's items in display order.
func (v *View) Children(parentID string) []model.Item {
	entries := v.children(parentID)
	out := make([]model.Item, len(entries))
	for i, e := range entries {
		out[i] = e.Item.Clone()
	}
	return out
}

func (v *View) children(parentID string) []entry {
	var out []entry
	for _, e := range v.items {
		if e.Item.ParentID == parentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Item.Order != out[j].Item.Order {
			return out[i].Item.Order < out[j].Item.Order
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// put inserts or replaces it. Existing items keep their sequence number.
func (v *View) put(it model.Item) {
	e, ok := v.items[it.ID]
	if !ok {
		v.seq++
		e.Seq = v.seq
	}
	e.Item = it.Clone()
	v.items[it.ID] = e
}

func (v *View) get(id string) (entry, bool) {
	e, ok := v.items[id]
	if !ok {
		return entry{}, false
	}
	return e.clone(), true
}

// restore puts back a saved entry exactly, sequence number included.
func (v *View) restore(e entry) {
	v.items[e.Item.ID] = e.clone()
}

func (v *View) remove(id string) {
	delete(v.items, id)
}

// subtree returns id and, for a column, its cards.
func (v *View) subtree(id string) []entry {
	root, ok := v.get(id)
	if !ok {
		return nil
	}
	out := []entry{root}
	for _, child := range v.children(id) {
		out = append(out, child.clone())
	}
	return out
}

func (v *View) Online() []model.Presence {
	out := make([]model.Presence, 0, len(v.online))
	for _, p := range v.online {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// LockHolder reports who holds itemID, as last broadcast.
func (v *View) LockHolder(itemID string) (protocol.Locked, bool) {
	l, ok := v.locks[itemID]
	return l, ok
}

func (v *View) clearPresence() {
	v.online = make(map[string]model.Presence)
	v.locks = make(map[string]protocol.Locked)
}

// Snapshot encodes the item set deterministically: items sorted by id, with
// their sequence numbers. Two views with equal snapshots render identically.
// It fails only when an item holds a value JSON cannot carry, such as a NaN order.
func (v *View) Snapshot() ([]byte, error) {
	ids := make([]string, 0, len(v.items))
	for id := range v.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]entry, len(ids))
	for i, id := range ids {
		out[i] = v.items[id]
	}
	return json.Marshal(struct {
		BoardID string  `json:"boardId"`
		Items   []entry `json:"items"`
	}{v.boardID, out})
}
