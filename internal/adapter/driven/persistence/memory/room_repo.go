package memory

import (
	"errors"
	"sync"

	"github.com/Wyydra/duo/internal/core/domain"
)

var ErrMemberTaken = errors.New("member already belongs to a room")

type RoomRepository struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*domain.Room
	byMember map[domain.ConnID]domain.RoomID
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{
		rooms:    make(map[domain.RoomID]*domain.Room),
		byMember: make(map[domain.ConnID]domain.RoomID),
	}
}

func (r *RoomRepository) Save(room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range room.Members {
		if existing, ok := r.byMember[m]; ok && existing != room.ID {
			return ErrMemberTaken
		}
	}
	r.rooms[room.ID] = room
	for _, m := range room.Members {
		r.byMember[m] = room.ID
	}
	return nil
}

func (r *RoomRepository) Get(id domain.RoomID) (*domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

func (r *RoomRepository) ByMember(conn domain.ConnID) (*domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byMember[conn]
	if !ok {
		return nil, false
	}
	room, ok := r.rooms[id]
	return room, ok
}

func (r *RoomRepository) Delete(id domain.RoomID) (*domain.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, false
	}
	delete(r.rooms, id)
	for _, m := range room.Members {
		if r.byMember[m] == id {
			delete(r.byMember, m)
		}
	}
	return room, true
}

func (r *RoomRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
