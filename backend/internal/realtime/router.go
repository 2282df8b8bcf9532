package realtime

import (
	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/internal/protocol"
)

// Router fans events out to the sessions present on a board.
type Router struct {
	sessions *SessionRegistry
	presence *PresenceTable
}

func NewRouter(sessions *SessionRegistry, presence *PresenceTable) *Router {
	return &Router{sessions: sessions, presence: presence}
}

// EmitToBoard delivers evt to every session on boardID except exclude and
// returns how many accepted it. Sessions that are already gone are skipped.
func (r *Router) EmitToBoard(boardID string, evt protocol.Event, exclude string) int {
	delivered := 0
	for _, id := range r.presence.Sessions(boardID) {
		if id == exclude {
			continue
		}
		if r.deliver(id, evt) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) EmitToSession(sessionID string, evt protocol.Event) bool {
	return r.deliver(sessionID, evt)
}

func (r *Router) deliver(sessionID string, evt protocol.Event) bool {
	s, ok := r.sessions.Get(sessionID)
	if !ok {
		return false
	}
	if !s.Deliver(evt) {
		log.WithFields(log.Fields{"session": sessionID, "event": evt.EventName()}).Warn("send queue full, event dropped")
		return false
	}
	return true
}
