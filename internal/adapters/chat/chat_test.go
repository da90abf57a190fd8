package chat

import (
	"errors"
	"testing"

	"github.com/parleychat/parley/internal/core"
)

func TestTrySendBackpressure(t *testing.T) {
	c := &wsConn{send: make(chan core.Frame, 1)}

	if err := c.TrySend(core.Frame("one")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.TrySend(core.Frame("two")); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("send into full buffer: err = %v, want ErrBackpressure", err)
	}
}

func TestTrySendAfterClose(t *testing.T) {
	c := &wsConn{send: make(chan core.Frame, 1)}
	c.closed = true

	if err := c.TrySend(core.Frame("x")); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("send on closed conn: err = %v, want ErrConnectionClosed", err)
	}
}
