package realtime

import (
	"sync"

	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/protocol"
)

// recorder is a Sink that keeps every delivered event. limit > 0 makes it
// refuse events once that many are buffered.
type recorder struct {
	mu     sync.Mutex
	events []protocol.Event
	limit  int
}

func (r *recorder) Deliver(evt protocol.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.events) >= r.limit {
		return false
	}
	r.events = append(r.events, evt)
	return true
}

func (r *recorder) all() []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Event(nil), r.events...)
}

func (r *recorder) names() []string {
	var out []string
	for _, e := range r.all() {
		out = append(out, e.EventName())
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *recorder) last() protocol.Event {
	evs := r.all()
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}

func eventsOf[T protocol.Event](r *recorder) []T {
	var out []T
	for _, e := range r.all() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func ident(id string) model.Identity {
	return model.Identity{ID: id, Name: "User " + id, Email: id + "@example.com"}
}
