package domain

type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallInCall
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallRinging:
		return "ringing"
	case CallInCall:
		return "in_call"
	default:
		return "unknown"
	}
}

// RejectReason tells the initiator why a ringing attempt ended without a call.
type RejectReason string

const (
	ReasonRejected RejectReason = "rejected"
	ReasonTimeout  RejectReason = "timeout"
)
