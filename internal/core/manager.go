package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/moderation"
	"github.com/parleychat/parley/internal/store"
)

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

// Manager creates rooms on demand. Each room gets a key-scoped view of
// the shared store; the denylist and banned-id set are shared read-only.
type Manager struct {
	cfg      RoomConfig
	kv       store.KV
	denylist moderation.CompiledDenylist
	denied   map[domain.UserID]struct{}

	mu    sync.RWMutex
	rooms map[domain.RoomName]*Room
}

func NewManager(cfg RoomConfig, kv store.KV, denylist moderation.CompiledDenylist) *Manager {
	return &Manager{
		cfg:      cfg,
		kv:       kv,
		denylist: denylist,
		denied:   map[domain.UserID]struct{}{},
		rooms:    make(map[domain.RoomName]*Room),
	}
}

// LoadDenied seeds the banned-user id set from the store. Called once at
// startup, before any room exists.
func (m *Manager) LoadDenied(ctx context.Context) error {
	denied, err := store.DeniedUserIDs(ctx, m.kv)
	if err != nil {
		return err
	}
	m.denied = denied
	log.Info().Str("module", "core.manager").Int("denied", len(denied)).Msg("loaded denied user ids")
	return nil
}

func (m *Manager) GetOrCreate(name domain.RoomName) *Room {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[name]; ok {
		return room
	}
	room = NewRoom(name, m.cfg, store.Scoped(m.kv, "room:"+string(name)), m.denylist, m.denied)
	m.rooms[name] = room
	log.Info().Str("module", "core.manager").Str("room", string(name)).Msg("room created")
	return room
}

func (m *Manager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for name, r := range m.rooms {
		out = append(out, RoomInfo{Name: name, MemberCount: r.MemberCount()})
	}
	return out
}

func (m *Manager) Stop(name domain.RoomName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[name]; ok {
		room.Stop()
		delete(m.rooms, name)
	}
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, room := range m.rooms {
		room.Stop()
		delete(m.rooms, name)
	}
}
