package protocol

import (
	"github.com/Wyydra/duo/internal/core/domain"
)

var eventKinds = map[string]domain.EventKind{
	"queued":           domain.EventQueued,
	"joined":           domain.EventJoined,
	"message":          domain.EventMessage,
	"userTyping":       domain.EventUserTyping,
	"incomingCall":     domain.EventIncomingCall,
	"callAccepted":     domain.EventCallAccepted,
	"callRejected":     domain.EventCallRejected,
	"callCancelled":    domain.EventCallCancelled,
	"signalingMessage": domain.EventSignal,
	"peerLeft":         domain.EventPeerLeft,
	"noop":             domain.EventNoop,
}

func EncodeEvent(c Codec, ev domain.Event) ([]byte, error) {
	f := Frame{
		Type:   ev.Kind.String(),
		Reason: ev.Reason,
	}
	switch ev.Kind {
	case domain.EventJoined:
		f.RoomID = ev.RoomID.String()
	case domain.EventMessage:
		f.Message = ev.Text
		f.TempID = TempID(ev.TempID)
	case domain.EventSignal:
		f.Signal = &SignalFrame{Type: string(ev.Signal.Type), Payload: ev.Signal.Payload}
	}
	return c.Marshal(&f)
}

// DecodeEvent parses one server frame on the peer side.
func DecodeEvent(c Codec, data []byte) (domain.Event, error) {
	var f Frame
	if err := c.Unmarshal(data, &f); err != nil {
		return domain.Event{}, domain.WrapError("decode", domain.ErrMalformedFrame, err.Error())
	}

	kind, ok := eventKinds[f.Type]
	if !ok {
		return domain.Event{}, domain.WrapError("decode", domain.ErrUnsupported, f.Type)
	}

	ev := domain.Event{Kind: kind, Text: f.Message, TempID: domain.TempID(f.TempID), Reason: f.Reason}
	if f.RoomID != "" {
		id, err := domain.ParseRoomID(f.RoomID)
		if err != nil {
			return domain.Event{}, domain.WrapError("decode", domain.ErrMalformedFrame, "bad roomId")
		}
		ev.RoomID = id
	}
	if kind == domain.EventSignal {
		if f.Signal == nil {
			return domain.Event{}, domain.WrapError("decode", domain.ErrMalformedSignal, "missing signal")
		}
		env, err := domain.NewEnvelope(domain.SignalType(f.Signal.Type), f.Signal.Payload)
		if err != nil {
			return domain.Event{}, err
		}
		ev.Signal = env
	}
	return ev, nil
}
