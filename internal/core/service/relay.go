package service

import (
	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
)

// roomLocator resolves the room a connection currently belongs to.
type roomLocator struct {
	registry *Registry
	rooms    port.RoomRepository
}

func (l roomLocator) roomOf(id domain.ConnID) (*domain.Room, error) {
	roomID, ok := l.registry.RoomOf(id)
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	room, ok := l.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomClosed
	}
	return room, nil
}
