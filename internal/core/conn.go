package core

import (
	"time"

	"github.com/parleychat/parley/internal/domain"
)

// Frame is a raw outbound or inbound payload.
type Frame []byte

type ConnID string

// Conn abstracts the transport endpoint of one connection. Sends must be
// non-blocking; a full buffer is a send failure, never a stall.
type Conn interface {
	TrySend(Frame) error
	Close()
}

// Connection is one live duplex channel plus its attachment: the
// verified identity and the join timestamp. Owned exclusively by the
// room that holds it; removal from the room's set is an explicit step.
type Connection struct {
	ID       ConnID
	Identity domain.Identity
	JoinedAt time.Time

	conn    Conn
	invalid int // consecutive invalid payloads
}

func NewConnection(id ConnID, ident domain.Identity, conn Conn) *Connection {
	return &Connection{
		ID:       id,
		Identity: ident,
		JoinedAt: time.Now().UTC(),
		conn:     conn,
	}
}
