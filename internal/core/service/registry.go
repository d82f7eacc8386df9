package service

import (
	"errors"
	"sync"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog/log"
)

type connection struct {
	client port.Client
	room   domain.RoomID
}

// Registry tracks every live connection and the room it currently belongs to.
// It is the only writer of liveness; the matcher updates room references
// through SetRoom/ClearRoom. Implements port.Gateway.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connection

	hooksMu      sync.RWMutex
	onUnregister []func(domain.ConnID)
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*connection),
	}
}

// OnUnregister adds a callback run after a connection is removed.
func (r *Registry) OnUnregister(fn func(id domain.ConnID)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.onUnregister = append(r.onUnregister, fn)
}

func (r *Registry) Register(c port.Client) domain.ConnID {
	id := domain.NewConnID()

	r.mu.Lock()
	r.conns[id] = &connection{client: c}
	count := len(r.conns)
	r.mu.Unlock()

	log.Info().Str("conn_id", id.String()).Int("count", count).Msg("Connection registered")
	return id
}

// Unregister removes the connection, closes its transport and runs the
// unregister hooks. Only the first call for an id has any effect.
func (r *Registry) Unregister(id domain.ConnID) bool {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	count := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if err := conn.client.Close(); err != nil {
		log.Debug().Err(err).Str("conn_id", id.String()).Msg("Error closing connection")
	}
	log.Info().Str("conn_id", id.String()).Int("count", count).Msg("Connection unregistered")

	r.hooksMu.RLock()
	hooks := append([]func(domain.ConnID){}, r.onUnregister...)
	r.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
	return true
}

func (r *Registry) IsLive(id domain.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

func (r *Registry) RoomOf(id domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	if !ok || conn.room.IsZero() {
		return domain.RoomID{}, false
	}
	return conn.room, true
}

// SetRoom records room membership. It reports false for a dead connection.
func (r *Registry) SetRoom(id domain.ConnID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return false
	}
	conn.room = room
	return true
}

// ClearRoom drops the membership only if it still points at room.
func (r *Registry) ClearRoom(id domain.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[id]; ok && conn.room == room {
		conn.room = domain.RoomID{}
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) Deliver(to domain.ConnID, ev domain.Event) error {
	r.mu.RLock()
	conn, ok := r.conns[to]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrPeerGone
	}

	err := conn.client.Send(ev)
	if errors.Is(err, domain.ErrSlowConsumer) {
		log.Warn().Str("conn_id", to.String()).Str("event", ev.Kind.String()).Msg("Outbound queue full, dropping connection")
		// callers may hold a room lock; the hooks must not run under it
		go r.Unregister(to)
	}
	return err
}
