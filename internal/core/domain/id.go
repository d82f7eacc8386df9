package domain

import (
	"github.com/google/uuid"
)

type ConnID uuid.UUID
type RoomID uuid.UUID

func NewConnID() ConnID {
	return ConnID(uuid.New())
}

func NewRoomID() RoomID {
	return RoomID(uuid.New())
}

func ParseRoomID(s string) (RoomID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return RoomID{}, err
	}
	return RoomID(id), nil
}

func (id ConnID) String() string {
	return uuid.UUID(id).String()
}

func (id ConnID) IsZero() bool {
	return id == ConnID{}
}

func (id RoomID) String() string {
	return uuid.UUID(id).String()
}

func (id RoomID) IsZero() bool {
	return id == RoomID{}
}
