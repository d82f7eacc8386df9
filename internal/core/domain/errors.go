package domain

import (
	"errors"
	"fmt"
)

// Protocol errors: the request itself is malformed.
var (
	ErrMalformedFrame  = errors.New("malformed frame")
	ErrMalformedSignal = errors.New("malformed signaling envelope")
	ErrEmptyMessage    = errors.New("message content cannot be empty")
	ErrUnsupported     = errors.New("unsupported command")
)

// State errors: the request is valid but not for the current state.
var (
	ErrCallInProgress = errors.New("call already ringing or active")
	ErrNoPendingCall  = errors.New("no pending call")
	ErrNotCallee      = errors.New("only the callee may answer")
	ErrNoActiveCall   = errors.New("no active call")
	ErrAlreadyPaired  = errors.New("connection already in a room")
)

// Peer-loss errors: the room or the other member is gone.
var (
	ErrNotInRoom  = errors.New("not in a room")
	ErrRoomClosed = errors.New("room closed")
	ErrPeerGone   = errors.New("peer is gone")
)

// Resource and negotiation errors, client side.
var (
	ErrMediaUnavailable = errors.New("local media unavailable")
	ErrSuperseded       = errors.New("call session superseded")
	ErrCallActive       = errors.New("a call session is already active")
	ErrSlowConsumer     = errors.New("outbound queue full")
	ErrConnClosed       = errors.New("connection closed")
)

func IsProtocolError(err error) bool {
	return errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrMalformedSignal) ||
		errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrUnsupported)
}

func IsStateError(err error) bool {
	return errors.Is(err, ErrCallInProgress) || errors.Is(err, ErrNoPendingCall) ||
		errors.Is(err, ErrNotCallee) || errors.Is(err, ErrNoActiveCall) || errors.Is(err, ErrAlreadyPaired)
}

func IsPeerLoss(err error) bool {
	return errors.Is(err, ErrNotInRoom) || errors.Is(err, ErrRoomClosed) || errors.Is(err, ErrPeerGone)
}

type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}
