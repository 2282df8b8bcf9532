package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/internal/protocol"
	"kanbanServer/backend/internal/realtime"
)

// Conn is one board WebSocket. Reads are handled in order on the caller's
// goroutine; writes drain the send queue on their own goroutine.
type Conn struct {
	ws        *websocket.Conn
	svc       *realtime.Service
	sessionID string
	opts      Options

	send chan protocol.Event
	done chan struct{}
}

func newConn(ws *websocket.Conn, svc *realtime.Service, opts Options) *Conn {
	return &Conn{
		ws:   ws,
		svc:  svc,
		opts: opts,
		send: make(chan protocol.Event, opts.SendQueue),
		done: make(chan struct{}),
	}
}

// Deliver enqueues evt without blocking. A full queue drops the event.
func (c *Conn) Deliver(evt protocol.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- evt:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.svc.Touch(c.sessionID)
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	for {
		env, err := readEnvelope(c.ws)
		if errors.Is(err, protocol.ErrMalformed) {
			c.svc.Reject(c.sessionID, env.Ref, err)
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("session", c.sessionID).Warn("websocket read failed")
			}
			return
		}
		in, err := protocol.DecodeIntent(env)
		if err != nil {
			c.svc.Reject(c.sessionID, env.Ref, err)
			continue
		}
		_ = c.svc.Handle(ctx, c.sessionID, env.Ref, in)
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case evt := <-c.send:
			if err := writeEvent(c.ws, evt, c.opts.WriteWait); err != nil {
				log.WithError(err).WithField("session", c.sessionID).Debug("websocket write failed")
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}
