package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ametov/huddle/internal/app"
	"github.com/ametov/huddle/internal/config"
	"github.com/ametov/huddle/internal/core"
	"github.com/ametov/huddle/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Controller owns the websocket endpoint: it upgrades authenticated
// requests, spawns the read/write pumps, and dispatches inbound events
// into the session lifecycle.
type Controller struct {
	Lifecycle *app.Lifecycle
	Limiter   *MessageRateLimiter
	Cfg       *config.Config
}

func NewController(lc *app.Lifecycle, limiter *MessageRateLimiter, cfg *config.Config) *Controller {
	return &Controller{Lifecycle: lc, Limiter: limiter, Cfg: cfg}
}

// WsConn adapts a gorilla websocket to core.SignalConnection. Outbound
// frames go through a buffered channel drained by the write pump; a full
// buffer drops the frame with ErrBackpressure instead of blocking.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades an authenticated request and enters the Connected
// state. The user identity comes from the auth middleware; an
// unauthenticated request never reaches this handler.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	userID := domain.UserID(c.GetString("user_id"))
	connID := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(connID)).Str("user", string(userID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	sess := ctl.Lifecycle.Connect(connID, userID, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn)
}
