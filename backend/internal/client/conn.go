package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/internal/protocol"
)

const writeWait = 10 * time.Second

// Conn is a board WebSocket from the client side. Send may be called from any
// goroutine; Run owns the read side.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens url (ws://host/board/ws) with token as the bearer credential.
func Dial(ctx context.Context, url, token string) (*Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			log.WithField("status", resp.StatusCode).Warn("board websocket rejected")
		}
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) Send(ref string, in protocol.Intent) error {
	env, err := protocol.EncodeIntent(ref, in)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(env)
}

// Run reads events until the connection ends or ctx is done, applying each to
// m and then passing it to onEvent when set. On return every update still
// outstanding has been rolled back.
func (c *Conn) Run(ctx context.Context, m *Manager, onEvent func(protocol.Event)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer m.ConnectionLost()

	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		evt, err := protocol.DecodeEvent(env)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownEvent) {
				log.WithField("event", env.Event).Debug("skipping unknown event")
			} else {
				log.WithError(err).WithField("event", env.Event).Warn("undecodable event")
			}
			continue
		}
		m.Apply(evt)
		if onEvent != nil {
			onEvent(evt)
		}
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}
