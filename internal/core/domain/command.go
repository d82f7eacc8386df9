package domain

// CommandKind describes what a connection asks the server to do.
type CommandKind int

const (
	// CommandUnknown is any inbound frame whose type is not recognised.
	CommandUnknown CommandKind = iota
	// CommandJoinQueue asks to be paired with a stranger.
	CommandJoinQueue
	// CommandLeaveRoom destroys the current room without disconnecting.
	CommandLeaveRoom
	// CommandSendMessage relays chat text to the partner.
	CommandSendMessage
	// CommandTyping relays a typing pulse.
	CommandTyping

	// CommandStartCall rings the partner.
	CommandStartCall
	// CommandAcceptCall accepts a ringing call.
	CommandAcceptCall
	// CommandRejectCall rejects a ringing call.
	CommandRejectCall
	// CommandSignal relays an SDP/ICE/hangup envelope.
	CommandSignal
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinQueue:
		return "joinQueue"
	case CommandLeaveRoom:
		return "leaveRoom"
	case CommandSendMessage:
		return "message"
	case CommandTyping:
		return "typing"
	case CommandStartCall:
		return "startVideoCall"
	case CommandAcceptCall:
		return "acceptCall"
	case CommandRejectCall:
		return "rejectCall"
	case CommandSignal:
		return "signalingMessage"
	default:
		return "unknown"
	}
}

// Command is one decoded client request. Only the fields relevant to Kind are set.
type Command struct {
	Kind   CommandKind
	Text   string
	TempID TempID
	Signal Envelope

	// Name is the raw wire type, kept for logging unknown commands.
	Name string
}
