package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/order"
	"kanbanServer/backend/internal/protocol"
)

var (
	ErrUnknownItem   = errors.New("item is not in the local view")
	ErrPendingCreate = errors.New("item has not been confirmed by the server yet")
	ErrNoBoard       = errors.New("no board loaded")
)

const tempPrefix = "tmp-"

type Kind string

const (
	KindCreate Kind = "create"
	KindMove   Kind = "move"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Inverse undoes one optimistic update: drop Remove, then put Restore back
// exactly as captured.
type Inverse struct {
	Remove  []string
	Restore []entry
}

// Update is an optimistic mutation that has been applied locally and sent,
// but not yet confirmed or rejected.
type Update struct {
	ID       string
	Kind     Kind
	ItemID   string
	ParentID string
	IssuedAt time.Time
	Intent   protocol.Intent
	Inverse  Inverse
}

// Sender ships an intent; ref is echoed on the server's error reply.
type Sender interface {
	Send(ref string, in protocol.Intent) error
}

type Manager struct {
	mu      sync.Mutex
	view    *View
	sender  Sender
	order   order.Engine
	pending []*Update

	sessionID string
	now       func() time.Time
	newID     func() string
}

func NewManager(view *View, sender Sender, eng order.Engine) *Manager {
	if eng == (order.Engine{}) {
		eng = order.Default
	}
	return &Manager{
		view:   view,
		sender: sender,
		order:  eng,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Read runs fn with the view while no event or mutation can interleave.
func (m *Manager) Read(fn func(v *View)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.view)
}

func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Pending returns the outstanding updates, oldest first.
func (m *Manager) Pending() []Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Update, len(m.pending))
	for i, u := range m.pending {
		out[i] = *u
	}
	return out
}

func (m *Manager) Join(boardID string) error {
	return m.sender.Send(m.newID(), protocol.Join{BoardID: boardID})
}

func (m *Manager) Leave(boardID string) error {
	return m.sender.Send(m.newID(), protocol.Leave{BoardID: boardID})
}

func (m *Manager) Lock(itemID string) error {
	return m.sender.Send(m.newID(), protocol.Lock{ItemID: itemID})
}

func (m *Manager) Unlock(itemID string) error {
	return m.sender.Send(m.newID(), protocol.Unlock{ItemID: itemID})
}

func (m *Manager) confirmed(itemID string) (entry, error) {
	e, ok := m.view.get(itemID)
	if !ok {
		return entry{}, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if strings.HasPrefix(itemID, tempPrefix) {
		return entry{}, fmt.Errorf("%w: %s", ErrPendingCreate, itemID)
	}
	return e, nil
}

// Move places itemID at targetOrder under targetParentID. A move that would not
// change the item's position returns an empty id and sends nothing.
func (m *Manager) Move(itemID, targetParentID string, targetOrder float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(itemID, targetParentID, targetOrder)
}

// MoveBetween places itemID between two neighbours of targetParentID. Either
// neighbour id may be empty for "at the start" or "at the end".
func (m *Manager) MoveBetween(itemID, targetParentID, beforeID, afterID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	neighbour := func(id string) (*float64, error) {
		if id == "" {
			return nil, nil
		}
		e, ok := m.view.get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownItem, id)
		}
		o := e.Item.Order
		return &o, nil
	}
	before, err := neighbour(beforeID)
	if err != nil {
		return "", err
	}
	after, err := neighbour(afterID)
	if err != nil {
		return "", err
	}
	if before == nil && after == nil {
		var orders []float64
		for _, c := range m.view.children(targetParentID) {
			if c.Item.ID != itemID {
				orders = append(orders, c.Item.Order)
			}
		}
		if len(orders) > 0 {
			o := m.order.Initial(orders)
			return m.move(itemID, targetParentID, o)
		}
	}
	return m.move(itemID, targetParentID, m.order.Between(before, after))
}

func (m *Manager) move(itemID, targetParentID string, targetOrder float64) (string, error) {
	prev, err := m.confirmed(itemID)
	if err != nil {
		return "", err
	}
	if prev.Item.ParentID == targetParentID && m.order.Same(prev.Item.Order, targetOrder) {
		return "", nil
	}
	in := protocol.Move{ItemID: itemID, TargetParentID: targetParentID, TargetOrder: targetOrder}
	if err := in.Validate(); err != nil {
		return "", err
	}

	next := prev.Item.Clone()
	next.ParentID = targetParentID
	next.Order = targetOrder
	m.view.put(next)

	u := &Update{
		ID:       m.newID(),
		Kind:     KindMove,
		ItemID:   itemID,
		ParentID: targetParentID,
		Intent:   in,
		Inverse:  Inverse{Restore: []entry{prev}},
	}
	return u.ID, m.issue(u)
}

// Create adds a temporary item under parentID: a column when parentID is the
// board, a card otherwise. The returned id is also the temporary item's
// client reference.
func (m *Manager) Create(parentID string, fields model.Fields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.view.boardID == "" {
		return "", ErrNoBoard
	}
	kind := model.KindCard
	if parentID == m.view.boardID {
		kind = model.KindColumn
	} else if _, err := m.confirmed(parentID); err != nil {
		return "", err
	}

	var orders []float64
	for _, c := range m.view.children(parentID) {
		orders = append(orders, c.Item.Order)
	}
	o := m.order.Initial(orders)

	id := m.newID()
	in := protocol.Create{ParentID: parentID, Fields: fields, Order: &o, ClientRef: id}
	if err := in.Validate(); err != nil {
		return "", err
	}

	now := m.now().UTC()
	tmp := model.Item{
		ID:        tempPrefix + id,
		Kind:      kind,
		BoardID:   m.view.boardID,
		ParentID:  parentID,
		Order:     o,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fields.ApplyTo(&tmp)
	m.view.put(tmp)

	u := &Update{
		ID:       id,
		Kind:     KindCreate,
		ItemID:   tmp.ID,
		ParentID: parentID,
		Intent:   in,
		Inverse:  Inverse{Remove: []string{tmp.ID}},
	}
	return u.ID, m.issue(u)
}

func (m *Manager) Update(itemID string, fields model.Fields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, err := m.confirmed(itemID)
	if err != nil {
		return "", err
	}
	in := protocol.Update{ItemID: itemID, Fields: fields}
	if err := in.Validate(); err != nil {
		return "", err
	}
	next := prev.Item.Clone()
	fields.ApplyTo(&next)
	m.view.put(next)

	u := &Update{
		ID:       m.newID(),
		Kind:     KindUpdate,
		ItemID:   itemID,
		ParentID: prev.Item.ParentID,
		Intent:   in,
		Inverse:  Inverse{Restore: []entry{prev}},
	}
	return u.ID, m.issue(u)
}

// Delete removes itemID and, for a column, its cards.
func (m *Manager) Delete(itemID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.confirmed(itemID); err != nil {
		return "", err
	}
	removed := m.view.subtree(itemID)
	for _, e := range removed {
		m.view.remove(e.Item.ID)
	}
	u := &Update{
		ID:       m.newID(),
		Kind:     KindDelete,
		ItemID:   itemID,
		ParentID: removed[0].Item.ParentID,
		Intent:   protocol.Delete{ItemID: itemID},
		Inverse:  Inverse{Restore: removed},
	}
	return u.ID, m.issue(u)
}

// issue records u and sends its intent. A failed send undoes u at once.
func (m *Manager) issue(u *Update) error {
	u.IssuedAt = m.now()
	m.pending = append(m.pending, u)
	if err := m.sender.Send(u.ID, u.Intent); err != nil {
		m.rollback(u)
		return err
	}
	return nil
}

func (m *Manager) rollback(u *Update) {
	m.drop(u)
	for _, id := range u.Inverse.Remove {
		m.view.remove(id)
	}
	for _, e := range u.Inverse.Restore {
		m.view.restore(e)
	}
	log.WithFields(log.Fields{"update": u.ID, "kind": u.Kind, "item": u.ItemID}).Debug("optimistic update rolled back")
}

func (m *Manager) drop(u *Update) {
	for i, p := range m.pending {
		if p == u {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

// rollbackNewestFirst undoes every update matched by match, newest first, so
// each inverse sees the state its update was applied to.
func (m *Manager) rollbackNewestFirst(match func(*Update) bool) int {
	n := 0
	for i := len(m.pending) - 1; i >= 0; i-- {
		u := m.pending[i]
		if match(u) {
			m.rollback(u)
			n++
		}
	}
	return n
}

func (m *Manager) find(match func(*Update) bool) *Update {
	for _, u := range m.pending {
		if match(u) {
			return u
		}
	}
	return nil
}

func (m *Manager) pendingFor(itemID string) bool {
	return m.find(func(u *Update) bool { return u.ItemID == itemID }) != nil
}

// ConnectionLost undoes every outstanding update, newest first, and forgets
// presence and locks, which the next join replays.
func (m *Manager) ConnectionLost() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view.clearPresence()
	return m.rollbackNewestFirst(func(*Update) bool { return true })
}

// RollbackExpired undoes updates issued more than maxAge ago.
func (m *Manager) RollbackExpired(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxAge)
	return m.rollbackNewestFirst(func(u *Update) bool { return u.IssuedAt.Before(cutoff) })
}

// Apply reconciles one server event with the view.
func (m *Manager) Apply(evt protocol.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := evt.(type) {
	case protocol.Welcome:
		m.sessionID = e.SessionID
	case protocol.OnlineUsers:
		m.view.online = make(map[string]model.Presence, len(e.Users))
		for _, p := range e.Users {
			m.view.online[p.SessionID] = p
		}
	case protocol.UserJoined:
		m.view.online[e.Presence.SessionID] = e.Presence
	case protocol.UserLeft:
		delete(m.view.online, e.SessionID)
	case protocol.Locked:
		m.view.locks[e.ItemID] = e
	case protocol.Unlocked:
		delete(m.view.locks, e.ItemID)
	case protocol.Moved:
		m.commit(KindMove, e.Item.ID)
		m.adopt(e.Item)
	case protocol.Updated:
		m.commit(KindUpdate, e.Item.ID)
		m.adopt(e.Item)
	case protocol.Created:
		m.applyCreated(e)
	case protocol.Deleted:
		m.applyDeleted(e)
	case protocol.Error:
		m.applyError(e)
	}
}

// commit retires the oldest pending update of kind for itemID, if any.
func (m *Manager) commit(kind Kind, itemID string) {
	if u := m.find(func(u *Update) bool { return u.Kind == kind && u.ItemID == itemID }); u != nil {
		m.drop(u)
	}
}

// adopt takes the server's item unless a later local update is still in flight.
func (m *Manager) adopt(it model.Item) {
	if m.pendingFor(it.ID) {
		return
	}
	m.view.put(it)
}

func (m *Manager) applyCreated(e protocol.Created) {
	var u *Update
	if e.ClientRef != "" {
		u = m.find(func(u *Update) bool { return u.Kind == KindCreate && u.ID == e.ClientRef })
	} else {
		u = m.find(func(u *Update) bool { return u.Kind == KindCreate && u.ParentID == e.Item.ParentID })
	}
	if u != nil {
		m.drop(u)
		tmp, ok := m.view.get(u.ItemID)
		m.view.remove(u.ItemID)
		if ok {
			// keep the temporary item's place among equal orders
			m.view.restore(entry{Item: e.Item.Clone(), Seq: tmp.Seq})
			return
		}
	}
	m.adopt(e.Item)
}

func (m *Manager) applyDeleted(e protocol.Deleted) {
	m.commit(KindDelete, e.ItemID)
	// anything else still in flight for the item can only fail now
	for _, u := range append([]*Update(nil), m.pending...) {
		if u.ItemID == e.ItemID {
			m.drop(u)
		}
	}
	for _, child := range m.view.children(e.ItemID) {
		m.view.remove(child.Item.ID)
	}
	m.view.remove(e.ItemID)
	delete(m.view.locks, e.ItemID)
}

// applyError undoes the update named by the error's ref. An error without a
// ref cannot be attributed, so every outstanding update is undone.
func (m *Manager) applyError(e protocol.Error) {
	if e.Ref == "" {
		n := m.rollbackNewestFirst(func(*Update) bool { return true })
		if n > 0 {
			log.WithField("code", e.Code).Warn("unattributed server error, rolled back all pending updates")
		}
		return
	}
	if u := m.find(func(u *Update) bool { return u.ID == e.Ref }); u != nil {
		m.rollback(u)
	}
}
