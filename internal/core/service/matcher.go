package service

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog/log"
)

var ErrMatcherStopped = errors.New("matcher stopped")

type requestKind int

const (
	requestJoin requestKind = iota
	requestLeave
	requestRemove
)

type request struct {
	kind  requestKind
	id    domain.ConnID
	reply chan error
}

// Matcher owns the waiting pool and is the only goroutine that creates or
// destroys rooms. Every pairing and teardown runs inside Run, one at a time.
type Matcher struct {
	registry *Registry
	rooms    port.RoomRepository
	now      func() time.Time

	requests chan request
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	pool    *list.List
	queued  map[domain.ConnID]*list.Element
	waiting atomic.Int64
}

// NewMatcher wires itself to the registry so that every unregistered
// connection leaves the pool and tears its room down.
func NewMatcher(registry *Registry, rooms port.RoomRepository) *Matcher {
	m := &Matcher{
		registry: registry,
		rooms:    rooms,
		now:      time.Now,
		requests: make(chan request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		pool:     list.New(),
		queued:   make(map[domain.ConnID]*list.Element),
	}
	registry.OnUnregister(m.Remove)
	return m
}

func (m *Matcher) Run() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			log.Info().Int("waiting", m.pool.Len()).Msg("Stopping matcher")
			return

		case req := <-m.requests:
			var err error
			switch req.kind {
			case requestJoin:
				err = m.join(req.id)
			case requestLeave:
				err = m.leave(req.id, true)
			case requestRemove:
				err = m.leave(req.id, false)
			}
			m.waiting.Store(int64(m.pool.Len()))
			req.reply <- err
		}
	}
}

func (m *Matcher) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
	<-m.done
}

// JoinQueue pairs id with the longest-waiting live connection, or enqueues it.
func (m *Matcher) JoinQueue(id domain.ConnID) error {
	return m.submit(requestJoin, id)
}

// LeaveRoom destroys the caller's room, or takes it out of the pool. The
// caller stays connected and unpaired.
func (m *Matcher) LeaveRoom(id domain.ConnID) error {
	return m.submit(requestLeave, id)
}

// Remove is the disconnect path; it is registered as an unregister hook.
func (m *Matcher) Remove(id domain.ConnID) {
	if err := m.submit(requestRemove, id); err != nil && !errors.Is(err, ErrMatcherStopped) {
		log.Error().Err(err).Str("conn_id", id.String()).Msg("Failed to remove connection")
	}
}

func (m *Matcher) Waiting() int {
	return int(m.waiting.Load())
}

func (m *Matcher) submit(kind requestKind, id domain.ConnID) error {
	req := request{kind: kind, id: id, reply: make(chan error, 1)}
	select {
	case m.requests <- req:
	case <-m.done:
		return ErrMatcherStopped
	}
	return <-req.reply
}

func (m *Matcher) join(id domain.ConnID) error {
	if !m.registry.IsLive(id) {
		return nil
	}
	if _, ok := m.queued[id]; ok {
		return nil
	}
	if _, ok := m.rooms.ByMember(id); ok {
		return domain.ErrAlreadyPaired
	}

	for m.pool.Len() > 0 {
		front := m.pool.Front()
		head := m.pool.Remove(front).(domain.ConnID)
		delete(m.queued, head)

		if !m.registry.IsLive(head) {
			log.Debug().Str("conn_id", head.String()).Msg("Skipping dead connection in pool")
			continue
		}
		done, err := m.pair(head, id)
		if err != nil || done {
			return err
		}
	}

	m.queued[id] = m.pool.PushBack(id)
	_ = m.registry.Deliver(id, domain.Event{Kind: domain.EventQueued})
	log.Debug().Str("conn_id", id.String()).Int("waiting", m.pool.Len()).Msg("Connection queued")
	return nil
}

// pair reports false when the waiting connection died before its membership
// was recorded; the arrival then keeps looking.
func (m *Matcher) pair(waiting, arrival domain.ConnID) (bool, error) {
	room := domain.NewRoom(waiting, arrival, m.now())
	if err := m.rooms.Save(room); err != nil {
		return false, err
	}

	// membership goes in before joined so that a reply to joined finds the room
	if !m.registry.SetRoom(waiting, room.ID) {
		m.rooms.Delete(room.ID)
		log.Debug().Str("conn_id", waiting.String()).Msg("Waiting connection left before pairing")
		return false, nil
	}
	if !m.registry.SetRoom(arrival, room.ID) {
		m.rooms.Delete(room.ID)
		m.registry.ClearRoom(waiting, room.ID)
		m.queued[waiting] = m.pool.PushFront(waiting)
		log.Debug().Str("conn_id", arrival.String()).Msg("Arriving connection left before pairing")
		return true, nil
	}

	_ = m.registry.Deliver(waiting, domain.Joined(room.ID))
	_ = m.registry.Deliver(arrival, domain.Joined(room.ID))

	log.Info().
		Str("room_id", room.ID.String()).
		Str("first", waiting.String()).
		Str("second", arrival.String()).
		Msg("Room created")
	return true, nil
}

func (m *Matcher) leave(id domain.ConnID, explicit bool) error {
	if el, ok := m.queued[id]; ok {
		m.pool.Remove(el)
		delete(m.queued, id)
		log.Debug().Str("conn_id", id.String()).Msg("Connection left pool")
		return nil
	}

	room, ok := m.rooms.ByMember(id)
	if !ok {
		if explicit {
			return domain.ErrNotInRoom
		}
		return nil
	}
	if _, removed := m.rooms.Delete(room.ID); !removed {
		return nil
	}
	room.Close(id, m.registry.Deliver)
	for _, member := range room.Members {
		m.registry.ClearRoom(member, room.ID)
	}

	log.Info().
		Str("room_id", room.ID.String()).
		Str("leaver", id.String()).
		Dur("lifetime", m.now().Sub(room.CreatedAt)).
		Msg("Room destroyed")
	return nil
}
