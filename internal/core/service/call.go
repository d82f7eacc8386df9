package service

import (
	"context"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type CallService struct {
	locator     roomLocator
	gateway     port.Gateway
	ringTimeout time.Duration
}

// NewCallService builds the call-control relay. A zero ringTimeout lets a
// call ring until it is answered or cancelled.
func NewCallService(registry *Registry, rooms port.RoomRepository, ringTimeout time.Duration) *CallService {
	return &CallService{
		locator:     roomLocator{registry: registry, rooms: rooms},
		gateway:     registry,
		ringTimeout: ringTimeout,
	}
}

func (s *CallService) StartCall(ctx context.Context, from domain.ConnID) error {
	room, err := s.locator.roomOf(from)
	if err != nil {
		return err
	}

	attempt, err := room.StartCall(from, s.gateway.Deliver)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("room_id", room.ID.String()).Uint64("attempt", attempt).Msg("Call ringing")

	if s.ringTimeout > 0 {
		time.AfterFunc(s.ringTimeout, func() {
			if room.ExpireRing(attempt, s.gateway.Deliver) {
				log.Info().Str("room_id", room.ID.String()).Uint64("attempt", attempt).Msg("Call timed out")
			}
		})
	}
	return nil
}

func (s *CallService) AcceptCall(ctx context.Context, from domain.ConnID) error {
	room, err := s.locator.roomOf(from)
	if err != nil {
		return err
	}
	if err := room.Accept(from, s.gateway.Deliver); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("room_id", room.ID.String()).Msg("Call accepted")
	return nil
}

func (s *CallService) RejectCall(ctx context.Context, from domain.ConnID) error {
	room, err := s.locator.roomOf(from)
	if err != nil {
		return err
	}
	if err := room.Reject(from, s.gateway.Deliver); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("room_id", room.ID.String()).Msg("Call rejected")
	return nil
}

// Signal relays an envelope to the partner. The payload is never inspected.
func (s *CallService) Signal(ctx context.Context, from domain.ConnID, env domain.Envelope) error {
	room, err := s.locator.roomOf(from)
	if err != nil {
		return err
	}
	if err := room.Signal(from, env, s.gateway.Deliver); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().
		Str("room_id", room.ID.String()).
		Str("signal", string(env.Type)).
		Int("payload_len", len(env.Payload)).
		Msg("Signal relayed")
	return nil
}
