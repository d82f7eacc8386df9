package port

import (
	"github.com/Wyydra/duo/internal/core/domain"
)

// RoomRepository is the table of active rooms, indexed by id and by member.
type RoomRepository interface {
	Save(room *domain.Room) error
	Get(id domain.RoomID) (*domain.Room, bool)
	ByMember(conn domain.ConnID) (*domain.Room, bool)
	// Delete removes the room and reports whether this call removed it.
	Delete(id domain.RoomID) (*domain.Room, bool)
	Count() int
}
