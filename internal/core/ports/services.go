package ports

import (
	"context"
	"time"

	"meshcall/internal/core/domain"
)

// CapabilityProvider owns local capture and the raw-vs-transformed track
// selection. It is the only component that mutates outbound track state.
type CapabilityProvider interface {
	// Acquire obtains live device tracks. Fails with
	// domain.ErrMediaUnavailable on denied permission or missing hardware.
	// Idempotent: a second call with live tracks is a no-op.
	Acquire(ctx context.Context) error
	Acquired() bool

	AudioTrack() MediaTrack
	// SelectedVideo returns the video track currently offered to peers,
	// raw or transformed.
	SelectedVideo() MediaTrack

	SetMuted(muted bool)
	SetCameraOff(off bool)
	// SetBlurred starts or stops the frame-transform pump. Exactly one
	// selection change fires per toggle.
	SetBlurred(ctx context.Context, blurred bool) error

	// OnVideoSelected registers the callback invoked once per selection
	// swap with the newly selected track.
	OnVideoSelected(fn func(MediaTrack))

	Release()
}

// VideoFrame is one captured or composited frame handed to the transform
// collaborator.
type VideoFrame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Duration
}

// FrameTransformer is the external frame-transform capability. Best
// effort: a failed frame is dropped, never blocks the pump.
type FrameTransformer interface {
	Transform(ctx context.Context, frame VideoFrame) (VideoFrame, error)
}

// MediaSource produces capture frames for one device track.
type MediaSource interface {
	NextFrame(ctx context.Context) (VideoFrame, error)
	Close() error
}

// TextGenerator is the external text-generation capability. Both calls
// are stateless; on failure or missing credential they return a fixed
// sentinel string instead of an error.
type TextGenerator interface {
	Summarize(ctx context.Context, messages []domain.ChatMessage) string
	Answer(ctx context.Context, query string, history []domain.ChatMessage) string
}

// MeetingService is the rendezvous-side meeting registry behind join codes.
type MeetingService interface {
	CreateMeeting(ctx context.Context, originator domain.PeerID) (*domain.Meeting, error)
	ResolveMeeting(ctx context.Context, code domain.MeetingCode) (*domain.Meeting, error)
	EndMeeting(ctx context.Context, code domain.MeetingCode) error
}
