package protocol

import (
	"github.com/Wyydra/duo/internal/core/domain"
)

var commandKinds = map[string]domain.CommandKind{
	"joinQueue":        domain.CommandJoinQueue,
	"leaveRoom":        domain.CommandLeaveRoom,
	"message":          domain.CommandSendMessage,
	"typing":           domain.CommandTyping,
	"startVideoCall":   domain.CommandStartCall,
	"acceptCall":       domain.CommandAcceptCall,
	"rejectCall":       domain.CommandRejectCall,
	"signalingMessage": domain.CommandSignal,
}

// DecodeCommand parses one client frame. Unknown types decode to
// CommandUnknown without error; broken frames and envelopes are protocol
// errors.
func DecodeCommand(c Codec, data []byte) (domain.Command, error) {
	var f Frame
	if err := c.Unmarshal(data, &f); err != nil {
		return domain.Command{}, domain.WrapError("decode", domain.ErrMalformedFrame, err.Error())
	}

	kind, ok := commandKinds[f.Type]
	if !ok {
		return domain.Command{Kind: domain.CommandUnknown, Name: f.Type}, nil
	}

	cmd := domain.Command{Kind: kind, Name: f.Type}
	switch kind {
	case domain.CommandSendMessage:
		cmd.Text = f.Message
		cmd.TempID = domain.TempID(f.TempID)
	case domain.CommandSignal:
		if f.Signal == nil {
			return domain.Command{}, domain.WrapError("decode", domain.ErrMalformedSignal, "missing signal")
		}
		env, err := domain.NewEnvelope(domain.SignalType(f.Signal.Type), f.Signal.Payload)
		if err != nil {
			return domain.Command{}, err
		}
		cmd.Signal = env
	}
	return cmd, nil
}

// EncodeCommand is the peer side of DecodeCommand.
func EncodeCommand(c Codec, cmd domain.Command) ([]byte, error) {
	f := Frame{Type: cmd.Kind.String()}
	switch cmd.Kind {
	case domain.CommandUnknown:
		f.Type = cmd.Name
	case domain.CommandSendMessage:
		f.Message = cmd.Text
		f.TempID = TempID(cmd.TempID)
	case domain.CommandSignal:
		f.Signal = &SignalFrame{Type: string(cmd.Signal.Type), Payload: cmd.Signal.Payload}
	}
	return c.Marshal(&f)
}
