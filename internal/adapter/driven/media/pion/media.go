package pion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	streamID      = "duo"
	audioInterval = 20 * time.Millisecond
)

// A single Opus frame encoding 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Source hands out local media for a terminal peer. There are no capture
// devices in a terminal, so the audio track carries silence and the video
// track stays idle; both exist so the partner negotiates audio and video.
type Source struct {
	// Unavailable makes Acquire fail as a denied device would.
	Unavailable bool
}

var _ port.MediaSource = (*Source)(nil)

func (s *Source) Acquire(ctx context.Context) (port.LocalMedia, error) {
	if s.Unavailable {
		return nil, domain.WrapError("acquire media", domain.ErrMediaUnavailable, "media disabled")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, err
	}

	lm := &LocalMedia{audio: audio, video: video, done: make(chan struct{})}
	lm.audioOn.Store(true)
	lm.videoOn.Store(true)

	lm.wg.Add(1)
	go lm.pumpAudio()
	return lm, nil
}

type LocalMedia struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	audioOn atomic.Bool
	// videoOn only records the camera preference. There is no capture
	// device, so the video track stays idle whether or not it is set.
	videoOn atomic.Bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ port.LocalMedia = (*LocalMedia)(nil)

func (m *LocalMedia) SetAudioEnabled(on bool) { m.audioOn.Store(on) }
func (m *LocalMedia) SetVideoEnabled(on bool) { m.videoOn.Store(on) }
func (m *LocalMedia) AudioEnabled() bool      { return m.audioOn.Load() }
func (m *LocalMedia) VideoEnabled() bool      { return m.videoOn.Load() }

func (m *LocalMedia) Stop() error {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
	return nil
}

func (m *LocalMedia) tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{m.audio, m.video}
}

func (m *LocalMedia) pumpAudio() {
	defer m.wg.Done()

	ticker := time.NewTicker(audioInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if !m.audioOn.Load() {
				continue
			}
			// Errors before the track is bound are expected.
			_ = m.audio.WriteSample(media.Sample{Data: opusSilence, Duration: audioInterval})
		}
	}
}
