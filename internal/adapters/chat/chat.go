// Package chat is the websocket adapter: it owns transport resources and
// feeds raw frames into the room engine.
package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/identity"
)

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

type WSController struct {
	Rooms     *core.Manager
	ReadLimit int64
}

func NewWSController(rooms *core.Manager, readLimit int64) *WSController {
	return &WSController{Rooms: rooms, ReadLimit: readLimit}
}

// wsConn adapts a gorilla connection to core.Conn. TrySend never blocks;
// a full send buffer is backpressure and the engine treats the failure
// as a disconnect.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
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

// HandleChat upgrades the request, registers the connection with its
// room, and starts the pumps.
func (ctl *WSController) HandleChat(ctx context.Context, c *gin.Context) {
	ident, err := identity.FromContext(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no verified identity"})
		return
	}

	roomName := domain.RoomName(c.Query("room"))
	if roomName == "" {
		roomName = "main"
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.chat").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.ReadLimit)

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	room := ctl.Rooms.GetOrCreate(roomName)
	cc := core.NewConnection(core.ConnID(uuid.NewString()), ident, conn)
	if err := room.Connect(cc); err != nil {
		log.Warn().Err(err).Str("module", "adapters.chat").Str("user", string(ident.ID)).Msg("connect refused")
		conn.Close()
		return
	}
	log.Info().Str("module", "adapters.chat").Str("conn", string(cc.ID)).Str("room", string(roomName)).Str("login", ident.Login).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, room, cc.ID, conn)
}
