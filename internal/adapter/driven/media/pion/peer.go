package pion

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/duo/internal/config"
	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Interval between keyframe requests on received video.
const pliInterval = 3 * time.Second

type PeerFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

var _ port.PeerFactory = (*PeerFactory)(nil)

func NewPeerFactory(cfg *config.Peer) (*PeerFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	s := webrtc.SettingEngine{LoggerFactory: loggerFactory{}}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s))

	return &PeerFactory{api: api, config: webrtc.Configuration{ICEServers: iceServers(cfg)}}, nil
}

func iceServers(cfg *config.Peer) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if turn := cfg.GetTURNServers(); len(turn) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPass,
		})
	}
	return servers
}

func (f *PeerFactory) NewPeer() (port.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &Peer{pc: pc, done: make(chan struct{})}, nil
}

// Peer adapts a pion PeerConnection to port.PeerConnection.
type Peer struct {
	pc *webrtc.PeerConnection

	done      chan struct{}
	closeOnce sync.Once
}

func (p *Peer) AddMedia(m port.LocalMedia) error {
	lm, ok := m.(*LocalMedia)
	if !ok {
		return fmt.Errorf("unsupported local media %T", m)
	}

	for _, track := range lm.tracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		// Incoming RTCP must be read for interceptors to run.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (p *Peer) CreateOffer() (domain.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return toDomain(offer), nil
}

func (p *Peer) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return toDomain(answer), nil
}

func (p *Peer) SetLocalDescription(desc domain.SessionDescription) error {
	return p.pc.SetLocalDescription(fromDomain(desc))
}

func (p *Peer) SetRemoteDescription(desc domain.SessionDescription) error {
	return p.pc.SetRemoteDescription(fromDomain(desc))
}

func (p *Peer) AddICECandidate(candidate json.RawMessage) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &c); err != nil {
		return domain.WrapError("candidate", domain.ErrMalformedSignal, err.Error())
	}
	return p.pc.AddICECandidate(c)
}

func (p *Peer) OnICECandidate(fn func(candidate json.RawMessage)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal candidate")
			return
		}
		fn(data)
	})
}

func (p *Peer) OnStateChange(fn func(state port.PeerState)) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("state", s.String()).Msg("Peer connection state changed")
		fn(peerState(s))
	})
}

func (p *Peer) OnTrack(fn func(track port.RemoteTrack)) {
	p.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug().Str("kind", remote.Kind().String()).Str("track_id", remote.ID()).Msg("Received remote track")

		go drain(remote)
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			go p.requestKeyframes(uint32(remote.SSRC()))
		}

		fn(port.RemoteTrack{ID: remote.ID(), Kind: remote.Kind().String()})
	})
}

func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.pc.Close()
	})
	return err
}

// requestKeyframes sends a PLI immediately and then every pliInterval until
// the peer is closed.
func (p *Peer) requestKeyframes(ssrc uint32) {
	sendPLI := func() {
		if err := p.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: ssrc},
		}); err != nil {
			log.Debug().Err(err).Msg("Failed to send PLI")
		}
	}

	sendPLI()

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sendPLI()
		case <-p.done:
			return
		}
	}
}

// drain consumes remote RTP; rendering is left to the embedding UI.
func drain(remote *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := remote.Read(buf); err != nil {
			return
		}
	}
}

func peerState(s webrtc.PeerConnectionState) port.PeerState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return port.PeerConnecting
	case webrtc.PeerConnectionStateConnected:
		return port.PeerConnected
	case webrtc.PeerConnectionStateDisconnected:
		return port.PeerDisconnected
	case webrtc.PeerConnectionStateFailed:
		return port.PeerFailed
	case webrtc.PeerConnectionStateClosed:
		return port.PeerClosed
	default:
		return port.PeerNew
	}
}

func toDomain(d webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func fromDomain(d domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}
