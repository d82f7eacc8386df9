// Package app runs an interactive duo chat in a terminal.
package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/negotiation"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// TypingWindow is how long a typing pulse stays visible.
const TypingWindow = 3 * time.Second

const help = "/call /accept /reject /hangup /mute /unmute /camera on|off /next /quit"

// Signaling is the connection to the server as seen by a session.
type Signaling interface {
	port.SignalSender
	Send(cmd domain.Command) error
	Events() <-chan domain.Event
}

type Session struct {
	sig     Signaling
	machine *negotiation.Machine
	ui      *printer
	now     func() time.Time

	group *errgroup.Group

	paired      bool
	calling     bool // we rang and wait for an answer
	ringing     bool // the partner rang us
	accepted    bool // we answered and wait for the offer
	pending     map[domain.TempID]string
	typingUntil time.Time
}

func NewSession(sig Signaling, source port.MediaSource, peers port.PeerFactory, out io.Writer) *Session {
	s := &Session{
		sig:     sig,
		ui:      &printer{out: out},
		now:     time.Now,
		pending: make(map[domain.TempID]string),
	}
	s.machine = negotiation.New(sig, source, peers, negotiation.Hooks{
		OnState: func(st negotiation.State) {
			switch st {
			case negotiation.Connected:
				s.ui.system("Call connected")
			case negotiation.Closed:
				s.ui.system("Call ended")
			}
		},
		OnTrack: func(t port.RemoteTrack) {
			s.ui.system("Receiving %s from stranger", t.Kind)
		},
	})
	return s
}

// Run joins the queue and processes server events and input lines until
// /quit, end of input, loss of the server or ctx cancellation.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)
	s.group = g

	lines := make(chan string)
	go readLines(ctx, in, lines)

	g.Go(func() error {
		defer s.machine.Hangup()
		return s.loop(ctx, lines)
	})
	return g.Wait()
}

func (s *Session) loop(ctx context.Context, lines <-chan string) error {
	if err := s.sig.Send(domain.Command{Kind: domain.CommandJoinQueue}); err != nil {
		return err
	}
	s.ui.system("Looking for a stranger… (%s)", help)

	events := s.sig.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				s.ui.error("Disconnected from server")
				return nil
			}
			s.handleEvent(ctx, ev)

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := s.handleLine(line); quit {
				return nil
			}
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev domain.Event) {
	switch ev.Kind {
	case domain.EventQueued:
		s.ui.system("Waiting for a partner…")

	case domain.EventJoined:
		s.paired = true
		s.ui.system("You are now chatting with a stranger. Say hi!")

	case domain.EventMessage:
		if ev.TempID != "" {
			text, ok := s.pending[ev.TempID]
			if !ok {
				return
			}
			delete(s.pending, ev.TempID)
			s.ui.you(text, true)
			return
		}
		s.typingUntil = time.Time{}
		s.ui.stranger(ev.Text)

	case domain.EventUserTyping:
		now := s.now()
		if now.After(s.typingUntil) {
			s.ui.system("Stranger is typing…")
		}
		s.typingUntil = now.Add(TypingWindow)

	case domain.EventIncomingCall:
		s.ringing = true
		s.ui.warn("Incoming video call: /accept or /reject")

	case domain.EventCallAccepted:
		if !s.calling {
			return
		}
		s.calling = false
		s.ui.system("Call accepted, connecting…")
		s.group.Go(func() error {
			if err := s.machine.Call(ctx); err != nil && !errors.Is(err, domain.ErrSuperseded) {
				s.ui.error("Call failed: %v", err)
			}
			return nil
		})

	case domain.EventCallRejected:
		s.calling = false
		if ev.Reason == string(domain.ReasonTimeout) {
			s.ui.warn("No answer")
			return
		}
		s.ui.warn("Call rejected")

	case domain.EventCallCancelled:
		s.ringing = false
		s.ui.warn("Missed call")

	case domain.EventSignal:
		s.handleSignal(ctx, ev.Signal)

	case domain.EventPeerLeft:
		s.resetRoom()
		s.ui.warn("Stranger left. /next to meet someone new")

	case domain.EventNoop:
		log.Debug().Str("reason", ev.Reason).Msg("Server ignored a request")

	default:
		log.Debug().Str("kind", ev.Kind.String()).Msg("Unhandled event")
	}
}

func (s *Session) handleSignal(ctx context.Context, env domain.Envelope) {
	if env.Type == domain.SignalHangup && !s.machine.Active() {
		// the caller gave up before any media was negotiated
		switch {
		case s.ringing:
			s.ringing = false
			s.ui.warn("Missed call")
		case s.accepted:
			s.accepted = false
			s.ui.warn("Call ended")
		}
		return
	}
	if env.Type == domain.SignalOffer {
		s.ringing = false
		s.accepted = false
	}
	if err := s.machine.HandleSignal(ctx, env); err != nil {
		if errors.Is(err, domain.ErrMediaUnavailable) {
			s.ui.error("Camera or microphone unavailable: %v", err)
			return
		}
		log.Warn().Err(err).Str("type", string(env.Type)).Msg("Failed to apply signal")
	}
}

// handleLine reports whether the user asked to quit.
func (s *Session) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.sendMessage(line)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/call":
		if !s.requirePartner() {
			return false
		}
		if s.calling || s.accepted || s.machine.Active() {
			s.ui.warn("A call is already in progress")
			return false
		}
		s.calling = true
		s.send(domain.Command{Kind: domain.CommandStartCall})
		s.ui.system("Ringing…")

	case "/accept":
		if !s.ringing {
			s.ui.warn("Nobody is calling")
			return false
		}
		s.ringing = false
		if s.send(domain.Command{Kind: domain.CommandAcceptCall}) {
			s.accepted = true
		}

	case "/reject":
		if !s.ringing {
			s.ui.warn("Nobody is calling")
			return false
		}
		s.ringing = false
		s.send(domain.Command{Kind: domain.CommandRejectCall})

	case "/hangup":
		s.hangup()

	case "/mute":
		s.machine.SetAudioEnabled(false)
		s.ui.system("Microphone off")

	case "/unmute":
		s.machine.SetAudioEnabled(true)
		s.ui.system("Microphone on")

	case "/camera":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			s.ui.warn("usage: /camera on|off")
			return false
		}
		on := fields[1] == "on"
		s.machine.SetVideoEnabled(on)
		s.ui.system("Camera %s", fields[1])

	case "/next":
		if s.paired {
			s.hangup()
			s.send(domain.Command{Kind: domain.CommandLeaveRoom})
		}
		s.resetRoom()
		s.send(domain.Command{Kind: domain.CommandJoinQueue})
		s.ui.system("Looking for a stranger…")

	default:
		s.ui.warn("Unknown command %s (%s)", fields[0], help)
	}
	return false
}

func (s *Session) sendMessage(text string) {
	if !s.requirePartner() {
		return
	}
	id := domain.TempID(strconv.FormatInt(s.now().UnixNano(), 10))
	for s.pending[id] != "" {
		id += "1"
	}
	s.pending[id] = text
	if !s.send(domain.Command{Kind: domain.CommandSendMessage, Text: text, TempID: id}) {
		delete(s.pending, id)
		return
	}
	s.ui.you(text, false)
}

func (s *Session) hangup() {
	switch {
	case s.machine.Active():
		s.machine.Hangup()
	case s.calling:
		// still ringing: a hangup cancels the attempt
		s.calling = false
		if err := s.sig.SendSignal(domain.Envelope{Type: domain.SignalHangup}); err != nil {
			log.Warn().Err(err).Msg("Failed to cancel call")
		}
		s.ui.system("Call cancelled")
	case s.accepted:
		// answered but no offer yet: the room is in a call, end it
		s.accepted = false
		if err := s.sig.SendSignal(domain.Envelope{Type: domain.SignalHangup}); err != nil {
			log.Warn().Err(err).Msg("Failed to end call")
		}
		s.ui.system("Call ended")
	}
}

func (s *Session) requirePartner() bool {
	if !s.paired {
		s.ui.warn("You are not chatting with anyone yet")
	}
	return s.paired
}

func (s *Session) send(cmd domain.Command) bool {
	if err := s.sig.Send(cmd); err != nil {
		s.ui.error("Failed to send %s: %v", cmd.Kind, err)
		return false
	}
	return true
}

func (s *Session) resetRoom() {
	s.machine.Abort()
	s.paired = false
	s.calling = false
	s.ringing = false
	s.accepted = false
	s.typingUntil = time.Time{}
	clear(s.pending)
}

func readLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
