package domain

import "encoding/json"

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	SignalHangup    SignalType = "hangup"
)

func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalCandidate, SignalHangup:
		return true
	}
	return false
}

// Envelope is a signaling payload relayed between the two members of a room.
// The relay only looks at Type; Payload is opaque JSON (an SDP description or
// an ICE candidate) and is forwarded verbatim.
type Envelope struct {
	Type    SignalType
	Payload json.RawMessage
}

// NewEnvelope validates the envelope shape. Offers, answers and candidates
// must carry a well-formed JSON payload; hangup may carry none.
func NewEnvelope(t SignalType, payload json.RawMessage) (Envelope, error) {
	if !t.Valid() {
		return Envelope{}, WrapError("signal", ErrMalformedSignal, "unknown type "+string(t))
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return Envelope{}, WrapError("signal", ErrMalformedSignal, "payload is not valid JSON")
	}
	if t != SignalHangup && (len(payload) == 0 || string(payload) == "null") {
		return Envelope{}, WrapError("signal", ErrMalformedSignal, string(t)+" without payload")
	}
	return Envelope{Type: t, Payload: payload}, nil
}

// SessionDescription mirrors the browser RTCSessionDescriptionInit shape and is
// what offer and answer payloads decode to.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}
