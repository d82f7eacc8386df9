// Package negotiation drives one side of a WebRTC call: media acquisition,
// offer/answer exchange, ICE buffering and teardown. Signaling travels through
// a port.SignalSender, so the machine never knows about the wire.
package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/rs/zerolog/log"
)

type State int

const (
	NoCall State = iota
	Offering
	AwaitingAnswer
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case NoCall:
		return "no-call"
	case Offering:
		return "offering"
	case AwaitingAnswer:
		return "awaiting-answer"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Hooks are invoked with the machine lock held and must not call back into
// the Machine.
type Hooks struct {
	OnState func(State)
	OnTrack func(port.RemoteTrack)
}

// session is one call attempt. Every asynchronous step re-checks that its
// session is still the active one before touching shared state.
type session struct {
	id     uint64
	caller bool
	peer   port.PeerConnection
	media  port.LocalMedia

	remoteSet bool
	localSent bool
	remote    []json.RawMessage // remote candidates waiting for a remote description
	local     []json.RawMessage // local candidates waiting for our offer/answer
	tracks    []port.RemoteTrack
	closed    bool
}

// Machine is safe for concurrent use, but HandleSignal must be called from a
// single goroutine so remote candidates are applied in arrival order.
type Machine struct {
	signals port.SignalSender
	source  port.MediaSource
	peers   port.PeerFactory
	hooks   Hooks

	mu    sync.Mutex
	state State
	sess  *session
	seq   uint64
	early []json.RawMessage
	audio bool
	video bool
}

func New(signals port.SignalSender, source port.MediaSource, peers port.PeerFactory, hooks Hooks) *Machine {
	return &Machine{
		signals: signals,
		source:  source,
		peers:   peers,
		hooks:   hooks,
		audio:   true,
		video:   true,
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active reports whether a call attempt is in progress.
func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil
}

func (m *Machine) RemoteTracks() []port.RemoteTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	return append([]port.RemoteTrack(nil), m.sess.tracks...)
}

// Call starts the caller side: acquire media, build a peer, send the offer.
func (m *Machine) Call(ctx context.Context) error {
	m.mu.Lock()
	if m.sess != nil {
		m.mu.Unlock()
		return domain.ErrCallActive
	}
	s := m.open(true)
	m.early = nil
	m.setState(Offering)
	m.mu.Unlock()

	peer, err := m.prepare(ctx, s)
	if err != nil {
		return err
	}

	offer, err := peer.CreateOffer()
	if err != nil {
		return m.fail(s, domain.NewError("create offer", err))
	}
	if err := peer.SetLocalDescription(offer); err != nil {
		return m.fail(s, domain.NewError("set local description", err))
	}
	payload, err := json.Marshal(offer)
	if err != nil {
		return m.fail(s, domain.NewError("encode offer", err))
	}

	m.mu.Lock()
	if !m.current(s) {
		m.mu.Unlock()
		return domain.ErrSuperseded
	}
	m.setState(AwaitingAnswer)
	if err := m.send(domain.SignalOffer, payload); err != nil {
		release := m.detach(s, false)
		m.mu.Unlock()
		release()
		return err
	}
	m.flushLocal(s)
	m.mu.Unlock()

	log.Debug().Uint64("session", s.id).Msg("Offer sent")
	return nil
}

// HandleSignal applies one envelope received from the partner.
func (m *Machine) HandleSignal(ctx context.Context, env domain.Envelope) error {
	switch env.Type {
	case domain.SignalOffer:
		return m.handleOffer(ctx, env.Payload)
	case domain.SignalAnswer:
		return m.handleAnswer(env.Payload)
	case domain.SignalCandidate:
		return m.handleCandidate(env.Payload)
	case domain.SignalHangup:
		m.end(false)
		return nil
	default:
		return domain.WrapError("handle signal", domain.ErrMalformedSignal, string(env.Type))
	}
}

// Hangup ends the current call and tells the partner. Calling it with no call
// in progress does nothing.
func (m *Machine) Hangup() {
	m.end(true)
}

// Abort ends the current call without telling the partner, for when the
// partner is already gone.
func (m *Machine) Abort() {
	m.end(false)
}

func (m *Machine) SetAudioEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = on
	if m.sess != nil && m.sess.media != nil {
		m.sess.media.SetAudioEnabled(on)
	}
}

func (m *Machine) SetVideoEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.video = on
	if m.sess != nil && m.sess.media != nil {
		m.sess.media.SetVideoEnabled(on)
	}
}

func (m *Machine) AudioEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio
}

func (m *Machine) VideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.video
}

func (m *Machine) handleOffer(ctx context.Context, payload json.RawMessage) error {
	desc, err := parseDescription(payload, "offer")
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.sess != nil {
		m.mu.Unlock()
		log.Debug().Msg("Ignoring offer during an active call")
		return nil
	}
	s := m.open(false)
	s.remote, m.early = m.early, nil
	m.mu.Unlock()

	peer, err := m.prepare(ctx, s)
	if err != nil {
		return err
	}

	if err := peer.SetRemoteDescription(desc); err != nil {
		return m.fail(s, domain.NewError("set remote description", err))
	}
	if err := m.remoteReady(s, peer); err != nil {
		return err
	}

	answer, err := peer.CreateAnswer()
	if err != nil {
		return m.fail(s, domain.NewError("create answer", err))
	}
	if err := peer.SetLocalDescription(answer); err != nil {
		return m.fail(s, domain.NewError("set local description", err))
	}
	out, err := json.Marshal(answer)
	if err != nil {
		return m.fail(s, domain.NewError("encode answer", err))
	}

	m.mu.Lock()
	if !m.current(s) {
		m.mu.Unlock()
		return domain.ErrSuperseded
	}
	if err := m.send(domain.SignalAnswer, out); err != nil {
		release := m.detach(s, false)
		m.mu.Unlock()
		release()
		return err
	}
	m.flushLocal(s)
	m.setState(Connected)
	m.mu.Unlock()

	log.Debug().Uint64("session", s.id).Msg("Answer sent")
	return nil
}

func (m *Machine) handleAnswer(payload json.RawMessage) error {
	desc, err := parseDescription(payload, "answer")
	if err != nil {
		return err
	}

	m.mu.Lock()
	s := m.sess
	switch {
	case s == nil || !s.caller:
		m.mu.Unlock()
		log.Debug().Msg("Ignoring answer without a pending offer")
		return nil
	case s.remoteSet:
		m.mu.Unlock()
		log.Debug().Uint64("session", s.id).Msg("Ignoring duplicate answer")
		return nil
	case m.state != AwaitingAnswer:
		m.mu.Unlock()
		log.Debug().Uint64("session", s.id).Str("state", m.state.String()).Msg("Ignoring early answer")
		return nil
	}
	s.remoteSet = true
	peer := s.peer
	pending := s.remote
	s.remote = nil
	m.mu.Unlock()

	if err := peer.SetRemoteDescription(desc); err != nil {
		return m.fail(s, domain.NewError("set remote description", err))
	}
	applyCandidates(peer, pending)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(s) {
		return domain.ErrSuperseded
	}
	m.setState(Connected)
	return nil
}

func (m *Machine) handleCandidate(payload json.RawMessage) error {
	if len(payload) == 0 || !json.Valid(payload) {
		return domain.WrapError("candidate", domain.ErrMalformedSignal, "invalid payload")
	}
	c := append(json.RawMessage(nil), payload...)

	m.mu.Lock()
	s := m.sess
	if s == nil {
		m.early = append(m.early, c)
		m.mu.Unlock()
		return nil
	}
	if !s.remoteSet {
		s.remote = append(s.remote, c)
		m.mu.Unlock()
		return nil
	}
	peer := s.peer
	m.mu.Unlock()

	if err := peer.AddICECandidate(c); err != nil {
		return domain.NewError("add ice candidate", err)
	}
	return nil
}

// prepare acquires media and a peer for s and attaches them.
func (m *Machine) prepare(ctx context.Context, s *session) (port.PeerConnection, error) {
	media, err := m.source.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrMediaUnavailable) {
			err = domain.WrapError("acquire media", domain.ErrMediaUnavailable, err.Error())
		}
		return nil, m.fail(s, err)
	}

	peer, err := m.peers.NewPeer()
	if err != nil {
		media.Stop()
		return nil, m.fail(s, domain.NewError("new peer", err))
	}

	m.mu.Lock()
	if !m.current(s) {
		m.mu.Unlock()
		peer.Close()
		media.Stop()
		return nil, domain.ErrSuperseded
	}
	media.SetAudioEnabled(m.audio)
	media.SetVideoEnabled(m.video)
	s.media = media
	s.peer = peer
	m.mu.Unlock()

	peer.OnICECandidate(func(c json.RawMessage) { m.localCandidate(s, c) })
	peer.OnTrack(func(t port.RemoteTrack) { m.remoteTrack(s, t) })
	peer.OnStateChange(func(st port.PeerState) { m.peerState(s, st) })

	if err := peer.AddMedia(media); err != nil {
		return nil, m.fail(s, domain.NewError("add media", err))
	}
	return peer, nil
}

func (m *Machine) remoteReady(s *session, peer port.PeerConnection) error {
	m.mu.Lock()
	if !m.current(s) {
		m.mu.Unlock()
		return domain.ErrSuperseded
	}
	s.remoteSet = true
	pending := s.remote
	s.remote = nil
	m.mu.Unlock()

	applyCandidates(peer, pending)
	return nil
}

func (m *Machine) localCandidate(s *session, c json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(s) {
		return
	}
	if !s.localSent {
		s.local = append(s.local, c)
		return
	}
	if err := m.send(domain.SignalCandidate, c); err != nil {
		log.Warn().Err(err).Msg("Failed to send local candidate")
	}
}

func (m *Machine) remoteTrack(s *session, t port.RemoteTrack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(s) {
		return
	}
	s.tracks = append(s.tracks, t)
	if m.hooks.OnTrack != nil {
		m.hooks.OnTrack(t)
	}
}

func (m *Machine) peerState(s *session, st port.PeerState) {
	if st != port.PeerFailed {
		return
	}
	m.mu.Lock()
	if !m.current(s) {
		m.mu.Unlock()
		return
	}
	log.Warn().Uint64("session", s.id).Msg("Peer connection failed")
	release := m.detach(s, true)
	m.mu.Unlock()
	release()
}

func (m *Machine) end(local bool) {
	m.mu.Lock()
	s := m.sess
	if s == nil {
		m.mu.Unlock()
		return
	}
	release := m.detach(s, local)
	m.mu.Unlock()
	release()
}

func (m *Machine) fail(s *session, err error) error {
	m.mu.Lock()
	if !m.current(s) {
		m.mu.Unlock()
		return domain.ErrSuperseded
	}
	release := m.detach(s, true)
	m.mu.Unlock()
	release()
	return err
}

func (m *Machine) flushLocal(s *session) {
	s.localSent = true
	for _, c := range s.local {
		if err := m.send(domain.SignalCandidate, c); err != nil {
			log.Warn().Err(err).Msg("Failed to send local candidate")
		}
	}
	s.local = nil
}

// open, detach, current, send and setState expect m.mu to be held.

func (m *Machine) open(caller bool) *session {
	m.seq++
	s := &session{id: m.seq, caller: caller}
	m.sess = s
	return s
}

// detach closes s and returns the release of its peer and media, which the
// caller runs after unlocking.
func (m *Machine) detach(s *session, emit bool) func() {
	s.closed = true
	m.sess = nil
	m.early = nil
	if emit {
		if err := m.send(domain.SignalHangup, nil); err != nil {
			log.Warn().Err(err).Msg("Failed to send hangup")
		}
	}
	s.remote, s.local, s.tracks = nil, nil, nil
	m.setState(Closed)

	peer, media := s.peer, s.media
	return func() {
		if peer != nil {
			if err := peer.Close(); err != nil {
				log.Warn().Err(err).Uint64("session", s.id).Msg("Failed to close peer connection")
			}
		}
		if media != nil {
			media.Stop()
		}
	}
}

func (m *Machine) current(s *session) bool {
	return m.sess == s && !s.closed
}

func (m *Machine) send(t domain.SignalType, payload json.RawMessage) error {
	env, err := domain.NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	return m.signals.SendSignal(env)
}

func (m *Machine) setState(st State) {
	if m.state == st {
		return
	}
	m.state = st
	if m.hooks.OnState != nil {
		m.hooks.OnState(st)
	}
}

func parseDescription(payload json.RawMessage, want string) (domain.SessionDescription, error) {
	var desc domain.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return desc, domain.WrapError(want, domain.ErrMalformedSignal, err.Error())
	}
	if desc.SDP == "" || (desc.Type != "" && desc.Type != want) {
		return desc, domain.WrapError(want, domain.ErrMalformedSignal, "missing or mismatched description")
	}
	if desc.Type == "" {
		desc.Type = want
	}
	return desc, nil
}

func applyCandidates(peer port.PeerConnection, cs []json.RawMessage) {
	for _, c := range cs {
		if err := peer.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Msg("Failed to apply buffered candidate")
		}
	}
}
