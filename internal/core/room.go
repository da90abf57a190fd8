// Package core owns the room session engine: the live connection set,
// the inbound message pipeline, and presence fan-out.
package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/metrics"
	"github.com/parleychat/parley/internal/moderation"
	"github.com/parleychat/parley/internal/presence"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/ratelimit"
	"github.com/parleychat/parley/internal/store"
)

var ErrUserDenied = errors.New("user id is denied")

type RoomConfig struct {
	MaxFrameBytes      int
	MaxInvalidPayloads int
	PresenceWindow     time.Duration
	RateLimitMessages  int
	RateLimitWindow    time.Duration
	HistoryLimit       int
}

func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		MaxFrameBytes:      16384,
		MaxInvalidPayloads: 3,
		PresenceWindow:     presence.DefaultWindow,
		RateLimitMessages:  10,
		RateLimitWindow:    10 * time.Second,
		HistoryLimit:       200,
	}
}

// Room is the session engine for one room. The mutex is the room's
// single sequence point: no two mutations of membership or rate-limit
// state interleave. Different rooms share nothing mutable.
type Room struct {
	name     domain.RoomName
	cfg      RoomConfig
	kv       store.KV
	denylist moderation.CompiledDenylist
	denied   map[domain.UserID]struct{}

	mu      sync.Mutex
	conns   map[ConnID]*Connection
	limiter *ratelimit.Limiter
	coal    *presence.Coalescer[ConnID]
}

func NewRoom(
	name domain.RoomName,
	cfg RoomConfig,
	kv store.KV,
	denylist moderation.CompiledDenylist,
	denied map[domain.UserID]struct{},
) *Room {
	r := &Room{
		name:     name,
		cfg:      cfg,
		kv:       kv,
		denylist: denylist,
		denied:   denied,
		conns:    make(map[ConnID]*Connection),
		limiter:  ratelimit.NewLimiter(cfg.RateLimitMessages, cfg.RateLimitWindow),
	}
	r.coal = presence.NewCoalescer(cfg.PresenceWindow, r.broadcastPresence)
	return r
}

func (r *Room) Name() domain.RoomName { return r.name }

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Connect adds the connection to the room and requests a coalesced
// presence broadcast with no exclusions, so the newcomer sees the
// snapshot too once it lands. A banned user id is refused outright.
func (r *Room) Connect(c *Connection) error {
	if _, banned := r.denied[c.Identity.ID]; banned {
		metrics.DeniedConnects.Inc()
		log.Warn().Str("module", "core.room").Str("room", string(r.name)).Str("user", string(c.Identity.ID)).Msg("denied user refused")
		return ErrUserDenied
	}
	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()

	metrics.ConnectionsTotal.Inc()
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("conn", string(c.ID)).Str("user", string(c.Identity.ID)).Msg("connection added")
	r.coal.Request()
	return nil
}

// Disconnect removes the connection first, then requests a presence
// broadcast excluding it: its channel may already be unusable. Unknown
// ids are a no-op so transport teardown and engine-forced closes can
// race safely.
func (r *Room) Disconnect(id ConnID) {
	r.mu.Lock()
	_, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("conn", string(id)).Msg("connection removed")
	r.coal.Request(id)
}

// Receive processes one raw inbound frame for a connection. Oversized or
// malformed frames count against the connection's consecutive
// invalid-payload budget; exceeding it forces the connection closed. A
// valid frame resets the budget.
func (r *Room) Receive(ctx context.Context, id ConnID, raw Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return
	}

	if len(raw) > r.cfg.MaxFrameBytes {
		r.noteInvalidLocked(c)
		return
	}
	frame, err := protocol.DecodeClientFrame(raw)
	if err != nil {
		r.noteInvalidLocked(c)
		return
	}
	c.invalid = 0

	switch f := frame.(type) {
	case protocol.MessageSend:
		r.handleMessageLocked(ctx, c, f)
	}
}

func (r *Room) noteInvalidLocked(c *Connection) {
	c.invalid++
	metrics.InvalidFrames.Inc()
	r.notifyLocked(c, protocol.NewErrorEvent(protocol.CodeInvalidPayload, "malformed or oversized frame"))
	if c.invalid <= r.cfg.MaxInvalidPayloads {
		return
	}
	metrics.ForcedCloses.Inc()
	log.Warn().Str("module", "core.room").Str("room", string(r.name)).Str("conn", string(c.ID)).Int("invalid", c.invalid).Msg("forcing connection closed")
	r.dropLocked(c)
}

// handleMessageLocked runs the accepted-message pipeline: rate limit,
// moderation, persistence, correlated fan-out. Checks always precede
// persistence and broadcast.
func (r *Room) handleMessageLocked(ctx context.Context, c *Connection, f protocol.MessageSend) {
	if !r.limiter.Allow(string(c.Identity.ID), time.Now()) {
		metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		r.notifyLocked(c, protocol.NewErrorEvent(protocol.CodeRateLimited, "sending too fast"))
		return
	}
	if r.denylist.Violates(f.Text) {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		r.notifyLocked(c, protocol.NewErrorEvent(protocol.CodeMessageBlocked, "message rejected by moderation"))
		return
	}

	msg := domain.NewChatMessage(c.Identity, f.Text)
	if err := store.AppendHistory(ctx, r.kv, msg, r.cfg.HistoryLimit); err != nil {
		// Persistence failure must not take the room down or drop the
		// broadcast; the message is already accepted.
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.name)).Msg("append history")
	}
	metrics.MessagesTotal.WithLabelValues("accepted").Inc()

	public, sender := protocol.NewMessageEvents(msg, f.ClientMessageID)
	var dead []*Connection
	for _, rc := range r.conns {
		ev := protocol.PickMessageEvent(rc.Identity.ID, c.Identity.ID, public, sender)
		data, err := protocol.Encode(ev)
		if err != nil {
			log.Error().Err(err).Str("module", "core.room").Msg("encode message event")
			return
		}
		if err := rc.conn.TrySend(Frame(data)); err != nil {
			dead = append(dead, rc)
		}
	}
	for _, rc := range dead {
		r.dropLocked(rc)
	}
}

// broadcastPresence is the coalescer's flush callback. Derives the
// snapshot from scratch and fans it out to every connection not in the
// accumulated exclude set.
func (r *Room) broadcastPresence(exclude map[ConnID]struct{}) {
	r.mu.Lock()
	idents := make(map[ConnID]domain.Identity, len(r.conns))
	for id, c := range r.conns {
		idents[id] = c.Identity
	}
	snap := presence.Derive(idents, exclude)
	data, err := protocol.Encode(protocol.NewPresenceEvent(snap))
	if err != nil {
		r.mu.Unlock()
		log.Error().Err(err).Str("module", "core.room").Msg("encode presence event")
		return
	}
	var dead []*Connection
	for id, c := range r.conns {
		if _, skip := exclude[id]; skip {
			continue
		}
		if err := c.conn.TrySend(Frame(data)); err != nil {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		r.dropLocked(c)
	}
	r.mu.Unlock()

	metrics.PresenceBroadcasts.Inc()
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Int("present", len(snap)).Msg("presence broadcast")
}

// dropLocked treats a connection as disconnected: out of the set first,
// excluded from the next presence round, then the channel is closed.
func (r *Room) dropLocked(c *Connection) {
	if _, ok := r.conns[c.ID]; !ok {
		return
	}
	delete(r.conns, c.ID)
	r.coal.Request(c.ID)
	c.conn.Close()
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("conn", string(c.ID)).Msg("connection dropped")
}

// notifyLocked sends a soft notice to one connection, best effort.
func (r *Room) notifyLocked(c *Connection, ev protocol.ErrorEvent) {
	data, err := protocol.Encode(ev)
	if err != nil {
		return
	}
	_ = c.conn.TrySend(Frame(data))
}

// Stop cancels any pending presence window. Connections are closed by
// their adapters.
func (r *Room) Stop() {
	r.coal.Stop()
}
