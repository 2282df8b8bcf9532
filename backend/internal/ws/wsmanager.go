package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/internal/httpapi/middleware"
	"kanbanServer/backend/internal/realtime"
)

type Options struct {
	SendQueue      int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	// AllowedOrigins are origin prefixes accepted on upgrade. Requests with no
	// Origin header (non-browser clients) are always accepted.
	AllowedOrigins []string
}

var defaultOrigins = []string{
	"http://localhost",
	"http://127.0.0.1",
	"https://localhost",
	"https://127.0.0.1",
}

func (o Options) withDefaults() Options {
	if o.SendQueue <= 0 {
		o.SendQueue = 64
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = defaultOrigins
	}
	return o
}

type Manager struct {
	svc      *realtime.Service
	opts     Options
	upgrader websocket.Upgrader
}

func NewManager(svc *realtime.Service, opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{svc: svc, opts: opts}
	m.upgrader = websocket.Upgrader{CheckOrigin: m.checkOrigin}
	return m
}

func (m *Manager) checkOrigin(r *http.Request) bool {
	return m.AllowOrigin(r.Header.Get("Origin"))
}

// AllowOrigin also backs the HTTP CORS policy so both surfaces agree.
func (m *Manager) AllowOrigin(origin string) bool {
	if origin == "" || origin == "null" {
		return true
	}
	for _, p := range m.opts.AllowedOrigins {
		if p == "*" || strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}

// WebSocketConnect upgrades an authenticated request and serves it until the
// connection ends. The auth middleware must have stored the identity.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "missing identity"})
		return
	}

	wsConn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).WithField("origin", c.Request.Header.Get("Origin")).Warn("websocket upgrade failed")
		return
	}
	defer wsConn.Close()

	conn := newConn(wsConn, m.svc, m.opts)
	sess, err := m.svc.Connect(who, conn)
	if err != nil {
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, realtime.Code(err)),
			time.Now().Add(m.opts.WriteWait))
		return
	}
	conn.sessionID = sess.ID

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		conn.writeLoop()
	}()

	// blocks until the peer goes away; cleanup runs however that happened
	conn.readLoop(c.Request.Context())
	m.svc.Disconnect(sess.ID)
	close(conn.done)
	<-writerDone
}
