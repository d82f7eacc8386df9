package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
)

type fakeSignaling struct {
	mu      sync.Mutex
	cmds    []domain.Command
	signals []domain.Envelope
	events  chan domain.Event
	err     error
}

var _ Signaling = (*fakeSignaling)(nil)

func newFakeSignaling() *fakeSignaling {
	return &fakeSignaling{events: make(chan domain.Event, 16)}
}

func (f *fakeSignaling) Send(cmd domain.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeSignaling) SendSignal(env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, env)
	return nil
}

func (f *fakeSignaling) Events() <-chan domain.Event { return f.events }

func (f *fakeSignaling) kinds() []domain.CommandKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CommandKind
	for _, c := range f.cmds {
		out = append(out, c.Kind)
	}
	return out
}

// noMedia fails every acquisition; these tests never reach a real call.
type noMedia struct{}

func (noMedia) Acquire(context.Context) (port.LocalMedia, error) {
	return nil, domain.ErrMediaUnavailable
}

type noPeers struct{}

func (noPeers) NewPeer() (port.PeerConnection, error) {
	return nil, errors.New("no peers in tests")
}

func newTestSession() (*Session, *fakeSignaling, *bytes.Buffer) {
	sig := newFakeSignaling()
	out := &bytes.Buffer{}
	return NewSession(sig, noMedia{}, noPeers{}, out), sig, out
}

func TestMessageDeliveryEcho(t *testing.T) {
	s, sig, out := newTestSession()
	s.handleEvent(context.Background(), domain.Joined(domain.NewRoomID()))

	s.handleLine("hello there")
	if len(sig.cmds) != 1 || sig.cmds[0].Kind != domain.CommandSendMessage {
		t.Fatalf("commands = %v", sig.kinds())
	}
	id := sig.cmds[0].TempID
	if id == "" || s.pending[id] != "hello there" {
		t.Fatalf("message not pending under %q", id)
	}
	if strings.Contains(out.String(), "✓") {
		t.Fatal("marked delivered before the echo")
	}

	// an echo we never sent is ignored
	s.handleEvent(context.Background(), domain.Event{Kind: domain.EventMessage, Text: "x", TempID: "nope"})

	s.handleEvent(context.Background(), domain.Event{Kind: domain.EventMessage, Text: "hello there", TempID: id})
	if len(s.pending) != 0 {
		t.Errorf("pending = %v, want empty", s.pending)
	}
	if !strings.Contains(out.String(), "✓") {
		t.Error("delivered mark missing")
	}
	if strings.Contains(out.String(), "Stranger: x") {
		t.Error("unknown echo rendered as a stranger message")
	}
}

func TestMessageRequiresPartner(t *testing.T) {
	s, sig, out := newTestSession()
	s.handleLine("anyone?")
	if len(sig.cmds) != 0 {
		t.Errorf("sent %v while unpaired", sig.kinds())
	}
	if !strings.Contains(out.String(), "not chatting") {
		t.Errorf("output = %q", out.String())
	}
}

func TestFailedSendDropsPending(t *testing.T) {
	s, sig, _ := newTestSession()
	s.handleEvent(context.Background(), domain.Joined(domain.NewRoomID()))
	sig.err = errors.New("connection closed")

	s.handleLine("lost")
	if len(s.pending) != 0 {
		t.Errorf("pending = %v, want empty", s.pending)
	}
}

func TestTypingWindow(t *testing.T) {
	s, _, out := newTestSession()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	typing := domain.Event{Kind: domain.EventUserTyping}
	s.handleEvent(context.Background(), typing)
	now = now.Add(time.Second)
	s.handleEvent(context.Background(), typing)
	if n := strings.Count(out.String(), "typing"); n != 1 {
		t.Fatalf("indicator shown %d times inside the window, want 1", n)
	}

	now = now.Add(TypingWindow + time.Second)
	s.handleEvent(context.Background(), typing)
	if n := strings.Count(out.String(), "typing"); n != 2 {
		t.Errorf("indicator shown %d times, want 2 after the window lapsed", n)
	}
}

func TestHangupWhileRingingCancels(t *testing.T) {
	s, sig, _ := newTestSession()
	s.handleEvent(context.Background(), domain.Joined(domain.NewRoomID()))

	s.handleLine("/call")
	if !s.calling {
		t.Fatal("expected to be calling")
	}
	s.handleLine("/call")
	if got := sig.kinds(); len(got) != 1 || got[0] != domain.CommandStartCall {
		t.Fatalf("commands = %v, want a single startCall", got)
	}

	s.handleLine("/hangup")
	if s.calling {
		t.Error("still calling after hangup")
	}
	if len(sig.signals) != 1 || sig.signals[0].Type != domain.SignalHangup {
		t.Errorf("signals = %v, want one hangup", sig.signals)
	}
}

func TestAcceptAndRejectNeedARingingCall(t *testing.T) {
	s, sig, _ := newTestSession()
	s.handleEvent(context.Background(), domain.Joined(domain.NewRoomID()))

	s.handleLine("/accept")
	s.handleLine("/reject")
	if len(sig.cmds) != 0 {
		t.Fatalf("commands = %v, want none", sig.kinds())
	}

	s.handleEvent(context.Background(), domain.Event{Kind: domain.EventIncomingCall})
	s.handleLine("/reject")
	if got := sig.kinds(); len(got) != 1 || got[0] != domain.CommandRejectCall {
		t.Errorf("commands = %v, want rejectCall", got)
	}
	if s.ringing {
		t.Error("still ringing after reject")
	}
}

func TestCallerHangupBeforeOfferIsMissedCall(t *testing.T) {
	s, _, out := newTestSession()
	s.handleEvent(context.Background(), domain.Joined(domain.NewRoomID()))
	s.handleEvent(context.Background(), domain.Event{Kind: domain.EventIncomingCall})

	s.handleEvent(context.Background(), domain.Event{
		Kind:   domain.EventSignal,
		Signal: domain.Envelope{Type: domain.SignalHangup},
	})
	if s.ringing {
		t.Error("still ringing")
	}
	if !strings.Contains(out.String(), "Missed call") {
		t.Errorf("output = %q", out.String())
	}
}

func TestNextLeavesAndRequeues(t *testing.T) {
	tests := []struct {
		name   string
		paired bool
		want   []domain.CommandKind
	}{
		{"paired", true, []domain.CommandKind{domain.CommandLeaveRoom, domain.CommandJoinQueue}},
		{"alone", false, []domain.CommandKind{domain.CommandJoinQueue}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sig, _ := newTestSession()
			if tt.paired {
				s.handleEvent(context.Background(), domain.Joined(domain.NewRoomID()))
				s.pending["1"] = "unsent"
			}
			s.handleLine("/next")

			got := sig.kinds()
			if len(got) != len(tt.want) {
				t.Fatalf("commands = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("commands = %v, want %v", got, tt.want)
				}
			}
			if s.paired || len(s.pending) != 0 {
				t.Error("room state not reset")
			}
		})
	}
}

func TestPeerLeftResets(t *testing.T) {
	s, _, out := newTestSession()
	s.handleEvent(context.Background(), domain.Joined(domain.NewRoomID()))
	s.handleEvent(context.Background(), domain.Event{Kind: domain.EventIncomingCall})

	s.handleEvent(context.Background(), domain.Event{Kind: domain.EventPeerLeft})
	if s.paired || s.ringing {
		t.Error("room state survived peerLeft")
	}
	if !strings.Contains(out.String(), "Stranger left") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunJoinsAndQuits(t *testing.T) {
	s, sig, _ := newTestSession()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), strings.NewReader("/quit\n")) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after /quit")
	}
	if got := sig.kinds(); len(got) == 0 || got[0] != domain.CommandJoinQueue {
		t.Errorf("commands = %v, want joinQueue first", got)
	}
}

func TestRunStopsWhenServerGoesAway(t *testing.T) {
	s, sig, out := newTestSession()
	close(sig.events)

	in, w := io.Pipe()
	defer w.Close()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), in) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the event stream closed")
	}
	if !strings.Contains(out.String(), "Disconnected") {
		t.Errorf("output = %q", out.String())
	}
}

func TestHangupAfterAcceptEndsCall(t *testing.T) {
	s, sig, _ := newTestSession()
	s.handleEvent(context.Background(), domain.Joined(domain.NewRoomID()))
	s.handleEvent(context.Background(), domain.Event{Kind: domain.EventIncomingCall})

	s.handleLine("/accept")
	if s.ringing || !s.accepted {
		t.Fatalf("ringing=%v accepted=%v after accept", s.ringing, s.accepted)
	}

	s.handleLine("/reject")
	if got := sig.kinds(); len(got) != 1 || got[0] != domain.CommandAcceptCall {
		t.Fatalf("commands = %v, want only acceptCall", got)
	}

	s.handleLine("/hangup")
	if s.accepted {
		t.Error("still accepted after hangup")
	}
	if len(sig.signals) != 1 || sig.signals[0].Type != domain.SignalHangup {
		t.Errorf("signals = %v, want one hangup", sig.signals)
	}

	s.handleLine("/hangup")
	if len(sig.signals) != 1 {
		t.Errorf("second hangup sent %d signals", len(sig.signals))
	}
}

func TestCallerHangupAfterAcceptClearsState(t *testing.T) {
	s, _, out := newTestSession()
	s.handleEvent(context.Background(), domain.Joined(domain.NewRoomID()))
	s.handleEvent(context.Background(), domain.Event{Kind: domain.EventIncomingCall})
	s.handleLine("/accept")

	s.handleEvent(context.Background(), domain.Event{
		Kind:   domain.EventSignal,
		Signal: domain.Envelope{Type: domain.SignalHangup},
	})
	if s.accepted {
		t.Error("still accepted after the caller hung up")
	}
	if !strings.Contains(out.String(), "Call ended") {
		t.Errorf("output = %q", out.String())
	}
}
