package domain

import (
	"errors"
	"testing"
	"time"
)

type outbox struct {
	sent []sent
	fail map[ConnID]error
}

type sent struct {
	to ConnID
	ev Event
}

func (o *outbox) deliver(to ConnID, ev Event) error {
	if err := o.fail[to]; err != nil {
		return err
	}
	o.sent = append(o.sent, sent{to: to, ev: ev})
	return nil
}

func (o *outbox) to(id ConnID) []Event {
	var evs []Event
	for _, s := range o.sent {
		if s.to == id {
			evs = append(evs, s.ev)
		}
	}
	return evs
}

func newTestRoom() (*Room, ConnID, ConnID, *outbox) {
	a, b := NewConnID(), NewConnID()
	return NewRoom(a, b, time.Now()), a, b, &outbox{}
}

func TestRoomCallTransitions(t *testing.T) {
	type step struct {
		name    string
		do      func(r *Room, a, b ConnID, o *outbox) error
		wantErr error
		want    CallState
	}

	start := func(r *Room, a, b ConnID, o *outbox) error { _, err := r.StartCall(a, o.deliver); return err }
	accept := func(r *Room, a, b ConnID, o *outbox) error { return r.Accept(b, o.deliver) }
	reject := func(r *Room, a, b ConnID, o *outbox) error { return r.Reject(b, o.deliver) }
	hangup := func(r *Room, a, b ConnID, o *outbox) error {
		return r.Signal(a, Envelope{Type: SignalHangup}, o.deliver)
	}
	offer := func(r *Room, a, b ConnID, o *outbox) error {
		return r.Signal(a, Envelope{Type: SignalOffer, Payload: []byte(`{}`)}, o.deliver)
	}

	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "ring accept hangup",
			steps: []step{
				{"start", start, nil, CallRinging},
				{"accept", accept, nil, CallInCall},
				{"offer", offer, nil, CallInCall},
				{"hangup", hangup, nil, CallIdle},
			},
		},
		{
			name: "ring reject ring",
			steps: []step{
				{"start", start, nil, CallRinging},
				{"reject", reject, nil, CallIdle},
				{"start again", start, nil, CallRinging},
			},
		},
		{
			name: "idle refusals",
			steps: []step{
				{"accept", accept, ErrNoPendingCall, CallIdle},
				{"reject", reject, ErrNoPendingCall, CallIdle},
				{"offer", offer, ErrNoActiveCall, CallIdle},
				{"hangup", hangup, ErrNoActiveCall, CallIdle},
			},
		},
		{
			name: "double start",
			steps: []step{
				{"start", start, nil, CallRinging},
				{"start", start, ErrCallInProgress, CallRinging},
				{"accept", accept, nil, CallInCall},
				{"start", start, ErrCallInProgress, CallInCall},
				{"accept", accept, ErrNoPendingCall, CallInCall},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, a, b, o := newTestRoom()
			for _, s := range tt.steps {
				err := s.do(r, a, b, o)
				if !errors.Is(err, s.wantErr) {
					t.Fatalf("%s: err = %v, want %v", s.name, err, s.wantErr)
				}
				if got := r.CallState(); got != s.want {
					t.Fatalf("%s: state = %v, want %v", s.name, got, s.want)
				}
			}
		})
	}
}

func TestRoomRelayNeverEchoes(t *testing.T) {
	r, a, b, o := newTestRoom()

	if err := r.Relay(a, Event{Kind: EventUserTyping}, o.deliver); err != nil {
		t.Fatal(err)
	}
	if len(o.to(a)) != 0 || len(o.to(b)) != 1 {
		t.Fatalf("relay went to the wrong member: %+v", o.sent)
	}
}

func TestRoomRelayMessage(t *testing.T) {
	r, a, b, o := newTestRoom()

	msg, err := NewMessage(a, r.ID, "hi", "1001")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RelayMessage(*msg, o.deliver); err != nil {
		t.Fatal(err)
	}

	if len(o.sent) != 2 || o.sent[0].to != b || o.sent[1].to != a {
		t.Fatalf("want peer copy then echo, got %+v", o.sent)
	}
	if o.sent[0].ev.TempID != "" || o.sent[0].ev.Text != "hi" {
		t.Errorf("peer copy = %+v", o.sent[0].ev)
	}
	if o.sent[1].ev.TempID != "1001" {
		t.Errorf("echo tempId = %q", o.sent[1].ev.TempID)
	}
}

func TestRoomRelayMessageToGonePeerHasNoEcho(t *testing.T) {
	r, a, b, o := newTestRoom()
	o.fail = map[ConnID]error{b: ErrConnClosed}

	msg, _ := NewMessage(a, r.ID, "hi", "7")
	err := r.RelayMessage(*msg, o.deliver)
	if !IsPeerLoss(err) {
		t.Fatalf("err = %v, want peer loss", err)
	}
	if len(o.sent) != 0 {
		t.Errorf("no delivery echo expected, got %+v", o.sent)
	}
}

func TestRoomExpireRing(t *testing.T) {
	r, a, b, o := newTestRoom()

	attempt, err := r.StartCall(a, o.deliver)
	if err != nil {
		t.Fatal(err)
	}
	if r.ExpireRing(attempt+1, o.deliver) {
		t.Fatal("a future attempt must not expire the ring")
	}
	if !r.ExpireRing(attempt, o.deliver) {
		t.Fatal("ring should expire")
	}
	if r.ExpireRing(attempt, o.deliver) {
		t.Fatal("a ring expires once")
	}

	toA, toB := o.to(a), o.to(b)
	if last := toA[len(toA)-1]; last.Kind != EventCallRejected || last.Reason != string(ReasonTimeout) {
		t.Errorf("initiator got %+v", last)
	}
	if last := toB[len(toB)-1]; last.Kind != EventCallCancelled {
		t.Errorf("callee got %+v", last)
	}

	// a rejected attempt leaves its timer stale
	attempt, _ = r.StartCall(a, o.deliver)
	if err := r.Reject(b, o.deliver); err != nil {
		t.Fatal(err)
	}
	if r.ExpireRing(attempt, o.deliver) {
		t.Error("stale timer expired a rejected ring")
	}
}

func TestRoomClose(t *testing.T) {
	r, a, b, o := newTestRoom()

	if _, err := r.StartCall(a, o.deliver); err != nil {
		t.Fatal(err)
	}
	o.sent = nil

	if !r.Close(a, o.deliver) {
		t.Fatal("first close should report true")
	}
	if r.Close(b, o.deliver) {
		t.Fatal("second close should report false")
	}
	if len(o.sent) != 1 || o.sent[0].to != b || o.sent[0].ev.Kind != EventPeerLeft {
		t.Fatalf("want one peerLeft to b, got %+v", o.sent)
	}

	if err := r.Relay(b, Event{Kind: EventUserTyping}, o.deliver); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("relay on closed room err = %v", err)
	}
	if _, err := r.StartCall(b, o.deliver); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("start on closed room err = %v", err)
	}
}

func TestRoomRejectsStrangers(t *testing.T) {
	r, _, _, o := newTestRoom()
	stranger := NewConnID()

	if err := r.Relay(stranger, Event{Kind: EventUserTyping}, o.deliver); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("err = %v, want ErrNotInRoom", err)
	}
	if _, ok := r.Peer(stranger); ok {
		t.Error("stranger has no peer")
	}
}
