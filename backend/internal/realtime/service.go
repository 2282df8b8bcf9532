// Package realtime is the authoritative side of the board protocol: it owns the
// lock, presence and session tables, applies intents against the item store and
// fans the resulting events out to the sessions on each board.
package realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/order"
	"kanbanServer/backend/internal/protocol"
	"kanbanServer/backend/internal/semaphore"
	"kanbanServer/backend/internal/store"
)

// Store is the persistence collaborator. Every call returns the canonical record.
type Store interface {
	GetBoard(ctx context.Context, boardID string) (model.Board, error)
	GetItem(ctx context.Context, itemID string) (model.Item, error)
	ListChildren(ctx context.Context, parentID string) ([]model.Item, error)
	CreateItem(ctx context.Context, it model.Item) (model.Item, error)
	UpdateItem(ctx context.Context, it model.Item) (model.Item, error)
	UpdateOrders(ctx context.Context, parentID string, changes []store.Reorder) ([]model.Item, error)
	DeleteItem(ctx context.Context, itemID string) (model.Item, error)
}

// Publisher forwards committed board events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, boardID string, evt protocol.Event) error
}

// PresenceMirror copies presence into a store shared by several processes.
type PresenceMirror interface {
	Join(ctx context.Context, p model.Presence, ttl time.Duration) error
	Leave(ctx context.Context, boardID, sessionID string) error
}

type Options struct {
	Order          order.Engine
	PersistTimeout time.Duration
	MaxInflight    int
	PresenceTTL    time.Duration
	Publisher      Publisher
	Mirror         PresenceMirror
}

const (
	DefaultPersistTimeout = 5 * time.Second
	DefaultPresenceTTL    = 10 * time.Minute
)

type boardState struct {
	mu sync.Mutex
}

type Service struct {
	store    Store
	opts     Options
	sessions *SessionRegistry
	presence *PresenceTable
	locks    *LockTable
	router   *Router
	sem      *semaphore.Control

	mu     sync.Mutex
	boards map[string]*boardState
}

func NewService(st Store, opts Options) *Service {
	if opts.Order == (order.Engine{}) {
		opts.Order = order.Default
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = DefaultPresenceTTL
	}
	sessions := NewSessionRegistry()
	presence := NewPresenceTable()
	return &Service{
		store:    st,
		opts:     opts,
		sessions: sessions,
		presence: presence,
		locks:    NewLockTable(),
		router:   NewRouter(sessions, presence),
		sem:      semaphore.New(opts.MaxInflight),
		boards:   make(map[string]*boardState),
	}
}

func (s *Service) Sessions() *SessionRegistry { return s.sessions }
func (s *Service) Presence() *PresenceTable   { return s.presence }
func (s *Service) Locks() *LockTable          { return s.locks }
func (s *Service) Router() *Router            { return s.router }

// Connect registers a verified connection and greets it.
func (s *Service) Connect(who model.Identity, sink Sink) (*Session, error) {
	sess, err := s.sessions.Open(who, sink)
	if err != nil {
		return nil, err
	}
	s.router.EmitToSession(sess.ID, protocol.Welcome{SessionID: sess.ID, User: who})
	log.WithFields(log.Fields{"session": sess.ID, "user": who.ID}).Info("session opened")
	return sess, nil
}

// Disconnect releases everything the session holds and removes it from its
// board. It runs on every connection end and never fails.
func (s *Service) Disconnect(sessionID string) {
	if _, ok := s.sessions.Close(sessionID); !ok {
		return
	}
	var boards []string
	if b, ok := s.presence.BoardOf(sessionID); ok {
		boards = append(boards, b)
	}
	for _, l := range s.locks.HeldBy(sessionID) {
		boards = append(boards, l.BoardID)
	}

	var (
		left    model.Presence
		wasOn   bool
		dropped []model.Lock
	)
	s.withBoards(boards, func() {
		dropped = s.locks.ReleaseAll(sessionID)
		for _, l := range dropped {
			s.router.EmitToBoard(l.BoardID, protocol.Unlocked{ItemID: l.ItemID}, "")
		}
		left, wasOn = s.presence.Disconnect(sessionID)
		if wasOn {
			s.router.EmitToBoard(left.BoardID, protocol.UserLeft{UserID: left.UserID, SessionID: sessionID}, sessionID)
		}
	})
	if wasOn {
		s.mirrorLeave(left.BoardID, sessionID)
	}
	log.WithFields(log.Fields{"session": sessionID, "locks": len(dropped)}).Info("session closed")
}

// Reject reports an intent that could not be decoded.
func (s *Service) Reject(sessionID, ref string, err error) {
	s.router.EmitToSession(sessionID, errorEvent(ref, err))
}

// Handle applies one intent for a session. Failures are sent to that session
// as an error event carrying ref, and returned.
func (s *Service) Handle(ctx context.Context, sessionID, ref string, in protocol.Intent) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: unknown session %s", ErrNotAuthenticated, sessionID)
	}
	if in == nil {
		err := fmt.Errorf("%w: empty intent", ErrValidation)
		s.Reject(sess.ID, ref, err)
		return err
	}
	var err error
	switch in := in.(type) {
	case protocol.Join:
		err = s.join(ctx, sess, in)
	case protocol.Leave:
		err = s.leave(sess, in)
	case protocol.Lock:
		err = s.lock(ctx, sess, in)
	case protocol.Unlock:
		s.unlock(sess, in)
	case protocol.Move:
		err = s.move(ctx, sess, in)
	case protocol.Create:
		err = s.create(ctx, sess, in)
	case protocol.Update:
		err = s.update(ctx, sess, in)
	case protocol.Delete:
		err = s.delete(ctx, sess, in)
	default:
		err = fmt.Errorf("%w: unsupported intent %T", ErrValidation, in)
	}
	if err != nil {
		s.router.EmitToSession(sess.ID, errorEvent(ref, err))
		log.WithError(err).WithFields(log.Fields{"session": sess.ID, "event": in.IntentName(), "ref": ref}).Debug("intent rejected")
	}
	return err
}

func (s *Service) join(ctx context.Context, sess *Session, in protocol.Join) error {
	if err := s.persist(ctx, func(ctx context.Context) error {
		_, err := s.store.GetBoard(ctx, in.BoardID)
		return err
	}); err != nil {
		return err
	}

	prev, _ := s.presence.BoardOf(sess.ID)
	var (
		res JoinResult
		err error
	)
	s.withBoards([]string{prev, in.BoardID}, func() {
		res, err = s.presence.Join(in.BoardID, sess.ID, sess.Identity)
		if err != nil {
			return
		}
		if res.Previous != "" {
			s.releaseOnBoard(sess.ID, res.Previous)
			s.router.EmitToBoard(res.Previous, protocol.UserLeft{UserID: sess.Identity.ID, SessionID: sess.ID}, sess.ID)
		}
		if !res.Rejoined {
			s.router.EmitToBoard(in.BoardID, protocol.UserJoined{Presence: res.Self}, sess.ID)
		}
		s.router.EmitToSession(sess.ID, protocol.OnlineUsers{BoardID: in.BoardID, Users: res.Members})
		for _, l := range s.locks.OnBoard(in.BoardID) {
			s.router.EmitToSession(sess.ID, lockedEvent(l))
		}
	})
	if err != nil {
		return err
	}
	if res.Previous != "" {
		s.mirrorLeave(res.Previous, sess.ID)
	}
	s.mirrorJoin(res.Self)
	log.WithFields(log.Fields{"session": sess.ID, "board": in.BoardID, "from": res.Previous}).Debug("joined board")
	return nil
}

func (s *Service) leave(sess *Session, in protocol.Leave) error {
	var left bool
	s.withBoards([]string{in.BoardID}, func() {
		if _, left = s.presence.Leave(in.BoardID, sess.ID); !left {
			return
		}
		s.releaseOnBoard(sess.ID, in.BoardID)
		s.router.EmitToBoard(in.BoardID, protocol.UserLeft{UserID: sess.Identity.ID, SessionID: sess.ID}, sess.ID)
	})
	if left {
		s.mirrorLeave(in.BoardID, sess.ID)
	}
	return nil
}

// releaseOnBoard must run with boardID's mutex held.
func (s *Service) releaseOnBoard(sessionID, boardID string) {
	for _, l := range s.locks.ReleaseBoard(sessionID, boardID) {
		s.router.EmitToBoard(boardID, protocol.Unlocked{ItemID: l.ItemID}, "")
	}
}

func (s *Service) lock(ctx context.Context, sess *Session, in protocol.Lock) error {
	boardID, err := s.currentBoard(sess)
	if err != nil {
		return err
	}
	if _, err := s.itemOnBoard(ctx, boardID, in.ItemID); err != nil {
		return err
	}
	s.withBoards([]string{boardID}, func() {
		var (
			l       model.Lock
			granted bool
		)
		l, granted, err = s.locks.Acquire(in.ItemID, sess.ID, boardID, sess.Identity)
		switch {
		case err != nil:
		case granted:
			s.router.EmitToBoard(boardID, lockedEvent(l), "")
		default:
			s.router.EmitToSession(sess.ID, lockedEvent(l))
		}
	})
	return err
}

func (s *Service) unlock(sess *Session, in protocol.Unlock) {
	held, ok := s.locks.Holder(in.ItemID)
	if !ok || held.SessionID != sess.ID {
		return
	}
	s.withBoards([]string{held.BoardID}, func() {
		if l, ok := s.locks.Release(in.ItemID, sess.ID); ok {
			s.router.EmitToBoard(l.BoardID, protocol.Unlocked{ItemID: l.ItemID}, "")
		}
	})
}

func (s *Service) move(ctx context.Context, sess *Session, in protocol.Move) error {
	boardID, err := s.currentBoard(sess)
	if err != nil {
		return err
	}
	it, err := s.itemOnBoard(ctx, boardID, in.ItemID)
	if err != nil {
		return err
	}
	if err := s.checkParent(ctx, it.Kind, boardID, in.TargetParentID); err != nil {
		return err
	}
	if it.ParentID == in.TargetParentID && s.opts.Order.Same(it.Order, in.TargetOrder) {
		s.router.EmitToSession(sess.ID, protocol.Moved{Item: it, FromParentID: it.ParentID, ToParentID: it.ParentID})
		return nil
	}

	from := it.ParentID
	it.ParentID = in.TargetParentID
	it.Order = in.TargetOrder
	var moved model.Item
	if err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		moved, err = s.store.UpdateItem(ctx, it)
		return err
	}); err != nil {
		return err
	}
	s.broadcast(boardID, protocol.Moved{Item: moved, FromParentID: from, ToParentID: moved.ParentID})
	s.rebalanceIfNeeded(ctx, boardID, moved.ParentID)
	return nil
}

func (s *Service) create(ctx context.Context, sess *Session, in protocol.Create) error {
	boardID, err := s.currentBoard(sess)
	if err != nil {
		return err
	}
	it := model.Item{Kind: model.KindCard, BoardID: boardID, ParentID: in.ParentID}
	if in.ParentID == boardID {
		it.Kind = model.KindColumn
	} else if err := s.checkParent(ctx, model.KindCard, boardID, in.ParentID); err != nil {
		return err
	}
	in.Fields.ApplyTo(&it)

	if in.Order != nil {
		it.Order = *in.Order
	} else {
		siblings, err := s.children(ctx, in.ParentID)
		if err != nil {
			return err
		}
		orders := make([]float64, len(siblings))
		for i, sib := range siblings {
			orders[i] = sib.Order
		}
		it.Order = s.opts.Order.Initial(orders)
	}

	var created model.Item
	if err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.store.CreateItem(ctx, it)
		return err
	}); err != nil {
		return err
	}
	s.broadcast(boardID, protocol.Created{Item: created, ClientRef: in.ClientRef})
	if in.Order != nil {
		s.rebalanceIfNeeded(ctx, boardID, created.ParentID)
	}
	return nil
}

func (s *Service) update(ctx context.Context, sess *Session, in protocol.Update) error {
	boardID, err := s.currentBoard(sess)
	if err != nil {
		return err
	}
	it, err := s.itemOnBoard(ctx, boardID, in.ItemID)
	if err != nil {
		return err
	}
	in.Fields.ApplyTo(&it)
	var updated model.Item
	if err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.store.UpdateItem(ctx, it)
		return err
	}); err != nil {
		return err
	}
	s.broadcast(boardID, protocol.Updated{Item: updated})
	return nil
}

func (s *Service) delete(ctx context.Context, sess *Session, in protocol.Delete) error {
	boardID, err := s.currentBoard(sess)
	if err != nil {
		return err
	}
	it, err := s.itemOnBoard(ctx, boardID, in.ItemID)
	if err != nil {
		return err
	}
	var cascade []model.Item
	if it.Kind == model.KindColumn {
		if cascade, err = s.children(ctx, it.ID); err != nil {
			return err
		}
	}
	if err := s.persist(ctx, func(ctx context.Context) error {
		_, err := s.store.DeleteItem(ctx, it.ID)
		return err
	}); err != nil {
		return err
	}

	gone := append(cascade, it)
	s.withBoards([]string{boardID}, func() {
		for _, d := range gone {
			if l, ok := s.locks.ReleaseItem(d.ID); ok {
				s.router.EmitToBoard(l.BoardID, protocol.Unlocked{ItemID: l.ItemID}, "")
			}
			s.router.EmitToBoard(boardID, protocol.Deleted{ItemID: d.ID, ParentID: d.ParentID}, "")
		}
	})
	for _, d := range gone {
		s.publish(boardID, protocol.Deleted{ItemID: d.ID, ParentID: d.ParentID})
	}
	return nil
}

// rebalanceIfNeeded respaces parentID's children when their gaps have run out.
// The triggering mutation already succeeded, so failures are only logged.
func (s *Service) rebalanceIfNeeded(ctx context.Context, boardID, parentID string) {
	kids, err := s.children(ctx, parentID)
	if err != nil {
		log.WithError(err).WithField("parent", parentID).Warn("rebalance: list children failed")
		return
	}
	orders := make([]float64, len(kids))
	entries := make([]order.Entry, len(kids))
	for i, k := range kids {
		orders[i] = k.Order
		entries[i] = order.Entry{ID: k.ID, Order: k.Order}
	}
	if !s.opts.Order.NeedsRebalance(orders) {
		return
	}

	current := make(map[string]float64, len(kids))
	for _, k := range kids {
		current[k.ID] = k.Order
	}
	// the store skips children that moved after the read above
	var changed []store.Reorder
	for _, e := range s.opts.Order.Rebalance(entries) {
		if was := current[e.ID]; was != e.Order {
			changed = append(changed, store.Reorder{ID: e.ID, Was: was, Order: e.Order})
		}
	}
	var items []model.Item
	if err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		items, err = s.store.UpdateOrders(ctx, parentID, changed)
		return err
	}); err != nil {
		log.WithError(err).WithField("parent", parentID).Warn("rebalance: persist failed")
		return
	}
	s.withBoards([]string{boardID}, func() {
		for _, it := range items {
			s.router.EmitToBoard(boardID, protocol.Updated{Item: it}, "")
		}
	})
	for _, it := range items {
		s.publish(boardID, protocol.Updated{Item: it})
	}
	log.WithFields(log.Fields{"board": boardID, "parent": parentID, "items": len(items)}).Info("rebalanced")
}

func (s *Service) currentBoard(sess *Session) (string, error) {
	b, ok := s.presence.BoardOf(sess.ID)
	if !ok {
		return "", fmt.Errorf("%w: join a board first", ErrValidation)
	}
	return b, nil
}

func (s *Service) itemOnBoard(ctx context.Context, boardID, itemID string) (model.Item, error) {
	var it model.Item
	if err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		it, err = s.store.GetItem(ctx, itemID)
		return err
	}); err != nil {
		return model.Item{}, err
	}
	if it.BoardID != boardID {
		return model.Item{}, fmt.Errorf("%w: item %s is not on board %s", ErrValidation, itemID, boardID)
	}
	return it, nil
}

// checkParent verifies a column is placed on its board and a card in a column of that board.
func (s *Service) checkParent(ctx context.Context, kind model.Kind, boardID, parentID string) error {
	if kind == model.KindColumn {
		if parentID != boardID {
			return fmt.Errorf("%w: columns belong to board %s", ErrValidation, boardID)
		}
		return nil
	}
	parent, err := s.itemOnBoard(ctx, boardID, parentID)
	if err != nil {
		return err
	}
	if parent.Kind != model.KindColumn {
		return fmt.Errorf("%w: %s is not a column", ErrValidation, parentID)
	}
	return nil
}

func (s *Service) children(ctx context.Context, parentID string) ([]model.Item, error) {
	var kids []model.Item
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		kids, err = s.store.ListChildren(ctx, parentID)
		return err
	})
	return kids, err
}

// persist runs fn detached from the caller's cancellation, bounded by the
// persistence timeout and the in-flight limit.
func (s *Service) persist(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PersistTimeout)
	defer cancel()
	if err := s.sem.Acquire(ctx); err != nil {
		log.WithError(err).WithField("inflight", s.sem.InUse()).Warn("persistence limiter saturated")
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	defer func() {
		if err := s.sem.Release(); err != nil {
			log.WithError(err).Error("persistence limiter release failed")
		}
	}()
	return storeErr(fn(ctx))
}

func (s *Service) broadcast(boardID string, evt protocol.Event) {
	s.withBoards([]string{boardID}, func() {
		s.router.EmitToBoard(boardID, evt, "")
	})
	s.publish(boardID, evt)
}

func (s *Service) publish(boardID string, evt protocol.Event) {
	if s.opts.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()
	if err := s.opts.Publisher.Publish(ctx, boardID, evt); err != nil {
		log.WithError(err).WithFields(log.Fields{"board": boardID, "event": evt.EventName()}).Warn("publish failed")
	}
}

// Touch extends the session's entry in the presence mirror. Connections call
// it on every heartbeat.
func (s *Service) Touch(sessionID string) {
	if s.opts.Mirror == nil {
		return
	}
	if p, ok := s.presence.Entry(sessionID); ok {
		s.mirrorJoin(p)
	}
}

func (s *Service) mirrorJoin(p model.Presence) {
	if s.opts.Mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()
	if err := s.opts.Mirror.Join(ctx, p, s.opts.PresenceTTL); err != nil {
		log.WithError(err).WithFields(log.Fields{"board": p.BoardID, "session": p.SessionID}).Warn("presence mirror join failed")
	}
}

func (s *Service) mirrorLeave(boardID, sessionID string) {
	if s.opts.Mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()
	if err := s.opts.Mirror.Leave(ctx, boardID, sessionID); err != nil {
		log.WithError(err).WithFields(log.Fields{"board": boardID, "session": sessionID}).Warn("presence mirror leave failed")
	}
}

func (s *Service) board(id string) *boardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.boards[id]
	if b == nil {
		b = &boardState{}
		s.boards[id] = b
	}
	return b
}

// withBoards runs fn holding the mutex of every named board, taken in id order.
func (s *Service) withBoards(ids []string, fn func()) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)
	states := make([]*boardState, len(uniq))
	for i, id := range uniq {
		states[i] = s.board(id)
		states[i].mu.Lock()
	}
	defer func() {
		for i := len(states) - 1; i >= 0; i-- {
			states[i].mu.Unlock()
		}
	}()
	fn()
}

func lockedEvent(l model.Lock) protocol.Locked {
	return protocol.Locked{ItemID: l.ItemID, UserID: l.Holder.ID, SessionID: l.SessionID, User: l.Holder}
}
