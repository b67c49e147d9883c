package media

import (
	"sync/atomic"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"

	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

// Track wraps a pion sample track with the enablement gate the toggles
// flip. Disabling stops frame delivery without renegotiating anything.
type Track struct {
	kind    domain.TrackKind
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
}

func newTrack(kind domain.TrackKind, id, streamID string) (*Track, error) {
	var capability webrtc.RTPCodecCapability
	switch kind {
	case domain.TrackAudio:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	default:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}

	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, err
	}

	t := &Track{kind: kind, local: local}
	t.enabled.Store(true)
	return t, nil
}

// NewPlaceholderTrack returns a disabled video track used to answer an
// incoming call when local media never initialized. A call is never left
// unanswered.
func NewPlaceholderTrack(id string) (*Track, error) {
	t, err := newTrack(domain.TrackVideo, id, "placeholder")
	if err != nil {
		return nil, err
	}
	t.enabled.Store(false)
	return t, nil
}

func (t *Track) ID() string             { return t.local.ID() }
func (t *Track) Kind() domain.TrackKind { return t.kind }

func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *Track) Enabled() bool           { return t.enabled.Load() }

// Local exposes the pion track for attachment to a peer connection.
func (t *Track) Local() webrtc.TrackLocal { return t.local }

// WriteFrame delivers one frame downstream unless the track is disabled.
func (t *Track) WriteFrame(frame ports.VideoFrame, duration time.Duration) error {
	if !t.enabled.Load() {
		return nil
	}
	return t.local.WriteSample(pionmedia.Sample{Data: frame.Data, Duration: duration})
}

// LocalTrackOf unwraps the pion track behind a ports.MediaTrack. Senders
// outside this package go through it when replacing tracks.
func LocalTrackOf(t ports.MediaTrack) (webrtc.TrackLocal, bool) {
	mt, ok := t.(*Track)
	if !ok {
		return nil, false
	}
	return mt.Local(), true
}
