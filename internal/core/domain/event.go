package domain

// EventKind describes a server notification.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventQueued
	EventJoined
	EventMessage
	EventUserTyping
	EventIncomingCall
	EventCallAccepted
	EventCallRejected
	EventCallCancelled
	EventSignal
	EventPeerLeft
	EventNoop
)

func (k EventKind) String() string {
	switch k {
	case EventQueued:
		return "queued"
	case EventJoined:
		return "joined"
	case EventMessage:
		return "message"
	case EventUserTyping:
		return "userTyping"
	case EventIncomingCall:
		return "incomingCall"
	case EventCallAccepted:
		return "callAccepted"
	case EventCallRejected:
		return "callRejected"
	case EventCallCancelled:
		return "callCancelled"
	case EventSignal:
		return "signalingMessage"
	case EventPeerLeft:
		return "peerLeft"
	case EventNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// Event is one notification addressed to a single connection.
type Event struct {
	Kind   EventKind
	RoomID RoomID
	Text   string
	// TempID is only set on the delivery echo sent back to a message's author.
	TempID TempID
	Signal Envelope
	Reason string
}

func Joined(roomID RoomID) Event {
	return Event{Kind: EventJoined, RoomID: roomID}
}

func Noop(reason string) Event {
	return Event{Kind: EventNoop, Reason: reason}
}
