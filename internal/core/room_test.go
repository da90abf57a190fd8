package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/moderation"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/store"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
	fail   bool
}

func (f *fakeConn) TrySend(data Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errors.New("send failed")
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// events decodes every received frame into its envelope plus raw JSON.
type envelope struct {
	Type string `json:"type"`
	V    int    `json:"v"`
	Raw  map[string]json.RawMessage
}

func (f *fakeConn) events(t *testing.T) []envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("received invalid JSON frame: %v", err)
		}
		if err := json.Unmarshal(frame, &env.Raw); err != nil {
			t.Fatal(err)
		}
		out = append(out, env)
	}
	return out
}

func (f *fakeConn) eventsOfType(t *testing.T, typ string) []envelope {
	t.Helper()
	var out []envelope
	for _, env := range f.events(t) {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func testRoomConfig() RoomConfig {
	cfg := DefaultRoomConfig()
	cfg.PresenceWindow = 5 * time.Millisecond
	return cfg
}

func newTestRoom(cfg RoomConfig, denylist moderation.CompiledDenylist) *Room {
	return NewRoom("main", cfg, store.NewMemory(), denylist, nil)
}

func join(t *testing.T, r *Room, id ConnID, userID domain.UserID, login string) (*Connection, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	c := NewConnection(id, domain.Identity{ID: userID, Login: login}, fc)
	if err := r.Connect(c); err != nil {
		t.Fatalf("Connect(%s): %v", id, err)
	}
	return c, fc
}

func sendFrame(t *testing.T, text, clientMessageID string) Frame {
	t.Helper()
	payload := map[string]string{"type": protocol.TypeMessageSend, "text": text}
	if clientMessageID != "" {
		payload["clientMessageId"] = clientMessageID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func waitPresence() { time.Sleep(50 * time.Millisecond) }

func TestCorrelatedDelivery(t *testing.T) {
	r := newTestRoom(testRoomConfig(), nil)
	defer r.Stop()
	ctx := context.Background()

	_, aliceConn := join(t, r, "c1", "uA", "alice")
	_, bobConn := join(t, r, "c2", "uB", "bob")
	_, alice2Conn := join(t, r, "c3", "uA", "alice")

	r.Receive(ctx, "c1", sendFrame(t, "hello", "x"))

	aliceEvents := aliceConn.eventsOfType(t, protocol.TypeMessageNew)
	if len(aliceEvents) != 1 {
		t.Fatalf("sender received %d message events, want 1", len(aliceEvents))
	}
	if _, ok := aliceEvents[0].Raw["clientMessageId"]; !ok {
		t.Error("sender event is missing clientMessageId")
	}

	bobEvents := bobConn.eventsOfType(t, protocol.TypeMessageNew)
	if len(bobEvents) != 1 {
		t.Fatalf("other identity received %d message events, want 1", len(bobEvents))
	}
	if _, ok := bobEvents[0].Raw["clientMessageId"]; ok {
		t.Error("public event carries clientMessageId")
	}

	// Another connection bound to the sender's identity also gets the
	// sender variant.
	alice2Events := alice2Conn.eventsOfType(t, protocol.TypeMessageNew)
	if len(alice2Events) != 1 {
		t.Fatalf("second sender connection received %d message events, want 1", len(alice2Events))
	}
	if _, ok := alice2Events[0].Raw["clientMessageId"]; !ok {
		t.Error("second sender connection got the public variant")
	}
}

func TestPresenceBroadcastOnJoinAndLeave(t *testing.T) {
	r := newTestRoom(testRoomConfig(), nil)
	defer r.Stop()

	_, aliceConn := join(t, r, "c1", "uA", "alice")
	join(t, r, "c2", "uB", "bob")
	waitPresence()

	events := aliceConn.eventsOfType(t, protocol.TypePresence)
	if len(events) == 0 {
		t.Fatal("no presence event after joins")
	}
	last := events[len(events)-1]
	var snap []map[string]any
	if err := json.Unmarshal(last.Raw["snapshot"], &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}

	r.Disconnect("c2")
	waitPresence()

	events = aliceConn.eventsOfType(t, protocol.TypePresence)
	last = events[len(events)-1]
	if err := json.Unmarshal(last.Raw["snapshot"], &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap) != 1 {
		t.Fatalf("snapshot size after disconnect = %d, want 1", len(snap))
	}
}

func TestPresenceCoalescesJoinBurst(t *testing.T) {
	cfg := testRoomConfig()
	cfg.PresenceWindow = 20 * time.Millisecond
	r := newTestRoom(cfg, nil)
	defer r.Stop()

	_, aliceConn := join(t, r, "c1", "uA", "alice")
	for i, id := range []ConnID{"c2", "c3", "c4", "c5"} {
		join(t, r, id, domain.UserID(rune('b'+i)), "user")
	}
	waitPresence()

	events := aliceConn.eventsOfType(t, protocol.TypePresence)
	if len(events) != 1 {
		t.Fatalf("join burst produced %d presence broadcasts, want 1", len(events))
	}
}

func TestModerationBlocksMessage(t *testing.T) {
	denylist := moderation.CompileDenylist([]string{"badword"})
	kv := store.NewMemory()
	r := NewRoom("main", testRoomConfig(), kv, denylist, nil)
	defer r.Stop()
	ctx := context.Background()

	_, aliceConn := join(t, r, "c1", "uA", "alice")
	_, bobConn := join(t, r, "c2", "uB", "bob")

	r.Receive(ctx, "c1", sendFrame(t, "b a d w o r d", ""))

	if got := bobConn.eventsOfType(t, protocol.TypeMessageNew); len(got) != 0 {
		t.Fatalf("moderated message was broadcast: %v", got)
	}
	notices := aliceConn.eventsOfType(t, protocol.TypeError)
	if len(notices) != 1 {
		t.Fatalf("sender received %d error notices, want 1", len(notices))
	}
	var code string
	if err := json.Unmarshal(notices[0].Raw["code"], &code); err != nil {
		t.Fatal(err)
	}
	if code != protocol.CodeMessageBlocked {
		t.Fatalf("notice code = %q, want %q", code, protocol.CodeMessageBlocked)
	}

	// Nothing persisted either.
	log, err := store.History(ctx, kv)
	if err != nil || len(log) != 0 {
		t.Fatalf("unexpected history: %v, %v", log, err)
	}
}

func TestRateLimitStopsMessage(t *testing.T) {
	cfg := testRoomConfig()
	cfg.RateLimitMessages = 2
	cfg.RateLimitWindow = time.Minute
	r := newTestRoom(cfg, nil)
	defer r.Stop()
	ctx := context.Background()

	_, aliceConn := join(t, r, "c1", "uA", "alice")
	_, bobConn := join(t, r, "c2", "uB", "bob")

	for i := 0; i < 3; i++ {
		r.Receive(ctx, "c1", sendFrame(t, "spam", ""))
	}

	if got := bobConn.eventsOfType(t, protocol.TypeMessageNew); len(got) != 2 {
		t.Fatalf("recipient got %d messages, want 2 within quota", len(got))
	}
	notices := aliceConn.eventsOfType(t, protocol.TypeError)
	if len(notices) != 1 {
		t.Fatalf("sender received %d rate-limit notices, want 1", len(notices))
	}
	var code string
	if err := json.Unmarshal(notices[0].Raw["code"], &code); err != nil {
		t.Fatal(err)
	}
	if code != protocol.CodeRateLimited {
		t.Fatalf("notice code = %q, want %q", code, protocol.CodeRateLimited)
	}
}

func TestInvalidPayloadCircuitBreaker(t *testing.T) {
	r := newTestRoom(testRoomConfig(), nil)
	defer r.Stop()
	ctx := context.Background()

	_, fc := join(t, r, "c1", "uA", "alice")

	// A valid frame first: it must not count.
	r.Receive(ctx, "c1", sendFrame(t, "hi", ""))

	for i := 0; i < 3; i++ {
		r.Receive(ctx, "c1", Frame(`{{{`))
		if fc.isClosed() {
			t.Fatalf("connection closed after %d invalid payloads", i+1)
		}
	}
	r.Receive(ctx, "c1", Frame(`{{{`))
	if !fc.isClosed() {
		t.Fatal("connection not closed after exceeding the invalid-payload budget")
	}
	if r.MemberCount() != 0 {
		t.Fatal("forced-closed connection still in the room")
	}
}

func TestValidFrameResetsInvalidCounter(t *testing.T) {
	r := newTestRoom(testRoomConfig(), nil)
	defer r.Stop()
	ctx := context.Background()

	_, fc := join(t, r, "c1", "uA", "alice")

	for round := 0; round < 3; round++ {
		for i := 0; i < 3; i++ {
			r.Receive(ctx, "c1", Frame(`not json`))
		}
		r.Receive(ctx, "c1", sendFrame(t, "still here", ""))
	}
	if fc.isClosed() {
		t.Fatal("connection closed despite the counter being reset by valid frames")
	}
}

func TestOversizedFrameIsProtocolError(t *testing.T) {
	cfg := testRoomConfig()
	r := newTestRoom(cfg, nil)
	defer r.Stop()
	ctx := context.Background()

	_, fc := join(t, r, "c1", "uA", "alice")

	big := make([]byte, cfg.MaxFrameBytes+1)
	for i := 0; i < 4; i++ {
		r.Receive(ctx, "c1", Frame(big))
	}
	if !fc.isClosed() {
		t.Fatal("oversized frames did not trip the circuit breaker")
	}
}

func TestSendFailureActsAsDisconnect(t *testing.T) {
	r := newTestRoom(testRoomConfig(), nil)
	defer r.Stop()
	ctx := context.Background()

	join(t, r, "c1", "uA", "alice")
	_, deadConn := join(t, r, "c2", "uB", "bob")
	deadConn.fail = true

	r.Receive(ctx, "c1", sendFrame(t, "hello", ""))

	if r.MemberCount() != 1 {
		t.Fatalf("member count = %d, want 1 after dead connection dropped", r.MemberCount())
	}
	if !deadConn.isClosed() {
		t.Fatal("dead connection was not closed")
	}
}

func TestDeniedUserRefused(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	if err := store.PutDeniedUserIDs(ctx, kv, []domain.UserID{"banned"}); err != nil {
		t.Fatal(err)
	}
	m := NewManager(testRoomConfig(), kv, nil)
	if err := m.LoadDenied(ctx); err != nil {
		t.Fatal(err)
	}
	r := m.GetOrCreate("main")
	defer m.StopAll()

	c := NewConnection("c1", domain.Identity{ID: "banned", Login: "troll"}, &fakeConn{})
	if err := r.Connect(c); !errors.Is(err, ErrUserDenied) {
		t.Fatalf("Connect banned user: err = %v, want ErrUserDenied", err)
	}
	if r.MemberCount() != 0 {
		t.Fatal("banned user entered the room")
	}
}

func TestAcceptedMessagePersisted(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	r := NewRoom("main", testRoomConfig(), kv, nil, nil)
	defer r.Stop()

	join(t, r, "c1", "uA", "alice")
	r.Receive(ctx, "c1", sendFrame(t, "for the record", ""))

	log, err := store.History(ctx, kv)
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 1 || log[0].Text != "for the record" {
		t.Fatalf("history = %+v, want the accepted message", log)
	}
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(testRoomConfig(), store.NewMemory(), nil)
	defer m.StopAll()

	a := m.GetOrCreate("alpha")
	if b := m.GetOrCreate("alpha"); a != b {
		t.Fatal("GetOrCreate returned a different room for the same name")
	}
	m.GetOrCreate("beta")
	if got := len(m.List()); got != 2 {
		t.Fatalf("List() has %d rooms, want 2", got)
	}
	m.Stop("alpha")
	if got := len(m.List()); got != 1 {
		t.Fatalf("List() has %d rooms after Stop, want 1", got)
	}
}
