package port

import (
	"context"
	"encoding/json"

	"github.com/Wyydra/duo/internal/core/domain"
)

// LocalMedia is a handle on acquired local audio/video tracks.
type LocalMedia interface {
	SetAudioEnabled(on bool)
	SetVideoEnabled(on bool)
	AudioEnabled() bool
	VideoEnabled() bool
	// Stop releases the devices. Calling it more than once is harmless.
	Stop() error
}

type MediaSource interface {
	Acquire(ctx context.Context) (LocalMedia, error)
}

type PeerState int

const (
	PeerNew PeerState = iota
	PeerConnecting
	PeerConnected
	PeerDisconnected
	PeerFailed
	PeerClosed
)

// RemoteTrack describes one track received from the partner.
type RemoteTrack struct {
	ID   string
	Kind string
}

type PeerConnection interface {
	AddMedia(m LocalMedia) error
	CreateOffer() (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	SetRemoteDescription(desc domain.SessionDescription) error
	AddICECandidate(candidate json.RawMessage) error

	OnICECandidate(fn func(candidate json.RawMessage))
	OnStateChange(fn func(state PeerState))
	OnTrack(fn func(track RemoteTrack))

	Close() error
}

type PeerFactory interface {
	NewPeer() (PeerConnection, error)
}

// SignalSender emits envelopes toward the partner through the relay.
type SignalSender interface {
	SendSignal(env domain.Envelope) error
}
