package service

import (
	"context"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog"
)

type Stats struct {
	Connections int `json:"connections"`
	Waiting     int `json:"waiting"`
	Rooms       int `json:"rooms"`
}

// Dispatcher is the single entry point transports use: it owns the
// connection lifecycle and routes decoded commands to the services.
type Dispatcher struct {
	registry *Registry
	matcher  *Matcher
	rooms    port.RoomRepository
	chat     *ChatService
	call     *CallService
}

func NewDispatcher(registry *Registry, matcher *Matcher, rooms port.RoomRepository, chat *ChatService, call *CallService) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		matcher:  matcher,
		rooms:    rooms,
		chat:     chat,
		call:     call,
	}
}

func (d *Dispatcher) Connect(c port.Client) domain.ConnID {
	return d.registry.Register(c)
}

// Disconnect is safe to call more than once for the same connection.
func (d *Dispatcher) Disconnect(id domain.ConnID) {
	d.registry.Unregister(id)
}

// Handle executes cmd on behalf of from. The returned error is informational:
// the sender has already been answered according to the error class.
func (d *Dispatcher) Handle(ctx context.Context, from domain.ConnID, cmd domain.Command) error {
	var err error
	switch cmd.Kind {
	case domain.CommandJoinQueue:
		err = d.matcher.JoinQueue(from)
	case domain.CommandLeaveRoom:
		err = d.matcher.LeaveRoom(from)
	case domain.CommandSendMessage:
		err = d.chat.SendMessage(ctx, from, cmd.Text, cmd.TempID)
	case domain.CommandTyping:
		err = d.chat.Typing(ctx, from)
	case domain.CommandStartCall:
		err = d.call.StartCall(ctx, from)
	case domain.CommandAcceptCall:
		err = d.call.AcceptCall(ctx, from)
	case domain.CommandRejectCall:
		err = d.call.RejectCall(ctx, from)
	case domain.CommandSignal:
		err = d.call.Signal(ctx, from, cmd.Signal)
	case domain.CommandUnknown:
		err = domain.WrapError("dispatch", domain.ErrUnsupported, cmd.Name)
	default:
		err = domain.WrapError("dispatch", domain.ErrUnsupported, cmd.Kind.String())
	}
	return d.Refuse(ctx, from, err)
}

// Refuse answers the sender of a failed request. Protocol and peer-loss errors
// get a soft noop; state errors are silently ignored.
func (d *Dispatcher) Refuse(ctx context.Context, from domain.ConnID, err error) error {
	if err == nil {
		return nil
	}

	l := zerolog.Ctx(ctx)
	switch {
	case domain.IsStateError(err):
		l.Debug().Err(err).Msg("Ignoring command invalid for current state")
	case domain.IsProtocolError(err):
		l.Warn().Err(err).Msg("Dropping malformed command")
		_ = d.registry.Deliver(from, domain.Noop(err.Error()))
	case domain.IsPeerLoss(err):
		l.Debug().Err(err).Msg("No room to relay to")
		_ = d.registry.Deliver(from, domain.Noop(err.Error()))
	default:
		l.Error().Err(err).Msg("Failed to handle command")
	}
	return err
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Connections: d.registry.Count(),
		Waiting:     d.matcher.Waiting(),
		Rooms:       d.rooms.Count(),
	}
}
