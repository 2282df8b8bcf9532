package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"kanbanServer/backend/internal/protocol"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 << 10
)

// readEnvelope reads one text frame. A frame that is not a JSON envelope is
// reported as protocol.ErrMalformed so the connection survives it.
func readEnvelope(c *websocket.Conn) (protocol.Envelope, error) {
	var env protocol.Envelope
	_, data, err := c.ReadMessage()
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", protocol.ErrMalformed, err)
	}
	if env.Event == "" {
		return env, fmt.Errorf("%w: missing event name", protocol.ErrMalformed)
	}
	return env, nil
}

func writeEvent(c *websocket.Conn, evt protocol.Event, wait time.Duration) error {
	env, err := protocol.EncodeEvent(evt)
	if err != nil {
		return err
	}
	if err := c.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return c.WriteJSON(env)
}
