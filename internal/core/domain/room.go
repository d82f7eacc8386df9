package domain

import (
	"sync"
	"time"
)

// Deliver hands an event to the outbound queue of one connection. It must
// not block; Room calls it while holding its own lock so that every
// notification scoped to a room leaves in the order the room decided it.
type Deliver func(to ConnID, ev Event) error

// Room is one two-party session. Membership is fixed at creation: a room is
// closed, never shrunk, when either side leaves. Text chat works in every
// call state; the call sub-state only gates signaling.
type Room struct {
	ID        RoomID
	Members   [2]ConnID
	CreatedAt time.Time

	mu        sync.Mutex
	state     CallState
	initiator ConnID
	attempt   uint64
	closed    bool
}

func NewRoom(a, b ConnID, now time.Time) *Room {
	return &Room{
		ID:        NewRoomID(),
		Members:   [2]ConnID{a, b},
		CreatedAt: now,
	}
}

func (r *Room) Has(id ConnID) bool {
	return r.Members[0] == id || r.Members[1] == id
}

// Peer returns the other member.
func (r *Room) Peer(id ConnID) (ConnID, bool) {
	switch id {
	case r.Members[0]:
		return r.Members[1], true
	case r.Members[1]:
		return r.Members[0], true
	}
	return ConnID{}, false
}

func (r *Room) CallState() CallState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// peerLocked resolves the partner of from on an open room.
func (r *Room) peerLocked(from ConnID) (ConnID, error) {
	if r.closed {
		return ConnID{}, ErrRoomClosed
	}
	peer, ok := r.Peer(from)
	if !ok {
		return ConnID{}, ErrNotInRoom
	}
	return peer, nil
}

func deliverToPeer(send Deliver, peer ConnID, ev Event) error {
	if err := send(peer, ev); err != nil {
		return WrapError("deliver "+ev.Kind.String(), ErrPeerGone, err.Error())
	}
	return nil
}

// Relay forwards ev to the partner of from, never back to from.
func (r *Room) Relay(from ConnID, ev Event, send Deliver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, err := r.peerLocked(from)
	if err != nil {
		return err
	}
	return deliverToPeer(send, peer, ev)
}

// RelayMessage forwards a chat message to the partner without its tempId and,
// once the partner's queue accepted it, echoes the tempId back to the author.
func (r *Room) RelayMessage(msg Message, send Deliver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, err := r.peerLocked(msg.SenderID)
	if err != nil {
		return err
	}
	if err := deliverToPeer(send, peer, Event{Kind: EventMessage, RoomID: r.ID, Text: msg.Content}); err != nil {
		return err
	}
	// the author may have gone meanwhile; its own teardown handles that
	_ = send(msg.SenderID, Event{Kind: EventMessage, RoomID: r.ID, Text: msg.Content, TempID: msg.TempID})
	return nil
}

// StartCall moves Idle to Ringing and rings the partner. It returns the ring
// attempt number, which ExpireRing uses to ignore stale timers.
func (r *Room) StartCall(from ConnID, send Deliver) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, err := r.peerLocked(from)
	if err != nil {
		return 0, err
	}
	if r.state != CallIdle {
		return 0, ErrCallInProgress
	}
	if err := deliverToPeer(send, peer, Event{Kind: EventIncomingCall, RoomID: r.ID}); err != nil {
		return 0, err
	}
	r.state = CallRinging
	r.initiator = from
	r.attempt++
	return r.attempt, nil
}

func (r *Room) answerLocked(from ConnID) error {
	if _, err := r.peerLocked(from); err != nil {
		return err
	}
	if r.state != CallRinging {
		return ErrNoPendingCall
	}
	if from == r.initiator {
		return ErrNotCallee
	}
	return nil
}

// Accept moves Ringing to InCall. Only the callee may accept.
func (r *Room) Accept(from ConnID, send Deliver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.answerLocked(from); err != nil {
		return err
	}
	r.state = CallInCall
	return deliverToPeer(send, r.initiator, Event{Kind: EventCallAccepted, RoomID: r.ID})
}

// Reject moves Ringing back to Idle. A new StartCall may follow immediately.
func (r *Room) Reject(from ConnID, send Deliver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.answerLocked(from); err != nil {
		return err
	}
	r.state = CallIdle
	r.attempt++
	return deliverToPeer(send, r.initiator, Event{
		Kind:   EventCallRejected,
		RoomID: r.ID,
		Reason: string(ReasonRejected),
	})
}

// Signal forwards an envelope while a call is ringing or active. Envelopes
// arriving in Idle are refused so a stale offer can never leak into a later
// call. A hangup returns the room to Idle.
func (r *Room) Signal(from ConnID, env Envelope, send Deliver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, err := r.peerLocked(from)
	if err != nil {
		return err
	}
	if r.state == CallIdle {
		return ErrNoActiveCall
	}
	if env.Type == SignalHangup {
		r.state = CallIdle
		r.attempt++
	}
	return deliverToPeer(send, peer, Event{Kind: EventSignal, RoomID: r.ID, Signal: env})
}

// ExpireRing ends a ringing attempt nobody answered. It reports false when
// the attempt was already answered, rejected or superseded.
func (r *Room) ExpireRing(attempt uint64, send Deliver) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.state != CallRinging || r.attempt != attempt {
		return false
	}
	r.state = CallIdle
	r.attempt++

	callee, _ := r.Peer(r.initiator)
	_ = send(r.initiator, Event{Kind: EventCallRejected, RoomID: r.ID, Reason: string(ReasonTimeout)})
	_ = send(callee, Event{Kind: EventCallCancelled, RoomID: r.ID, Reason: string(ReasonTimeout)})
	return true
}

// Close marks the room destroyed because leaver disconnected or left, and
// tells the other member. Only the first call has any effect.
func (r *Room) Close(leaver ConnID, send Deliver) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	r.closed = true
	r.state = CallIdle
	r.attempt++

	if peer, ok := r.Peer(leaver); ok {
		_ = send(peer, Event{Kind: EventPeerLeft, RoomID: r.ID})
	}
	return true
}
