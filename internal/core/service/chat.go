package service

import (
	"context"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog"
)

type ChatService struct {
	locator roomLocator
	gateway port.Gateway
}

func NewChatService(registry *Registry, rooms port.RoomRepository) *ChatService {
	return &ChatService{
		locator: roomLocator{registry: registry, rooms: rooms},
		gateway: registry,
	}
}

// SendMessage relays text to the partner and echoes tempID back to the sender.
func (s *ChatService) SendMessage(ctx context.Context, senderID domain.ConnID, content string, tempID domain.TempID) error {
	room, err := s.locator.roomOf(senderID)
	if err != nil {
		return err
	}

	msg, err := domain.NewMessage(senderID, room.ID, content, tempID)
	if err != nil {
		return err
	}

	if err := room.RelayMessage(*msg, s.gateway.Deliver); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().Str("room_id", room.ID.String()).Int("len", len(content)).Msg("Message relayed")
	return nil
}

// Typing forwards a typing pulse unconditionally; expiry is up to the receiver.
func (s *ChatService) Typing(ctx context.Context, senderID domain.ConnID) error {
	room, err := s.locator.roomOf(senderID)
	if err != nil {
		return err
	}
	return room.Relay(senderID, domain.Event{Kind: domain.EventUserTyping, RoomID: room.ID}, s.gateway.Deliver)
}
