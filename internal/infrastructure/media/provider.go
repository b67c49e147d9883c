package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
	"meshcall/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// SourceFactory acquires a capture device. Failure means denied
// permission or missing hardware.
type SourceFactory func() (ports.MediaSource, error)

// Options configures capture geometry and the blur pump.
type Options struct {
	Width         int
	Height        int
	FrameRate     int
	FrameTimeout  time.Duration
	FallbackAfter int
}

// Provider is the capability provider: it owns local capture and the
// raw-vs-transformed selection. It is the only component mutating
// outbound track state; the registry just receives the swaps.
type Provider struct {
	opts        Options
	newSource   SourceFactory
	transformer ports.FrameTransformer
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.SugaredLogger

	mu          sync.Mutex
	acquired    bool
	source      ports.MediaSource
	audio       *Track
	raw         *Track
	transformed *Track
	selected    *Track
	muted       bool
	cameraOff   bool
	blurred     bool
	onSelected  func(ports.MediaTrack)

	captureCancel context.CancelFunc
	captureDone   chan struct{}
	blurCancel    context.CancelFunc
	blurDone      chan struct{}
	blurCh        chan ports.VideoFrame
}

func NewProvider(opts Options, newSource SourceFactory, transformer ports.FrameTransformer, logger *zap.SugaredLogger) *Provider {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold:    opts.FallbackAfter,
		SuccessThreshold:    2,
		Timeout:             5 * time.Second,
		MaxRequestsHalfOpen: 2,
	})

	p := &Provider{
		opts:        opts,
		newSource:   newSource,
		transformer: transformer,
		breaker:     breaker,
		logger:      logger,
	}

	// Sustained transform failure falls back to raw video silently; a
	// recovered transformer restores the blur selection.
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		switch to {
		case circuitbreaker.StateOpen:
			p.logger.Warnw("frame transform failing, falling back to raw video")
			p.selectFallback(true)
		case circuitbreaker.StateClosed:
			p.selectFallback(false)
		}
	})
	return p
}

// Acquire obtains live tracks from the capture device. Idempotent while
// tracks are live. A re-acquire after Release produces fresh tracks and
// announces the new selection so open pairs pick it up via track
// replacement, never an ICE restart.
func (p *Provider) Acquire(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.acquired {
		return nil
	}

	source, err := p.newSource()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}

	audio, err := newTrack(domain.TrackAudio, "mic", "local")
	if err != nil {
		source.Close()
		return fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	raw, err := newTrack(domain.TrackVideo, "camera", "local")
	if err != nil {
		source.Close()
		return fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}

	audio.SetEnabled(!p.muted)
	raw.SetEnabled(!p.cameraOff)

	p.source = source
	p.audio = audio
	p.raw = raw
	p.transformed = nil
	p.selected = raw
	p.blurred = false
	p.acquired = true

	captureCtx, cancel := context.WithCancel(context.Background())
	p.captureCancel = cancel
	p.captureDone = make(chan struct{})
	go p.captureLoop(captureCtx, source, raw, p.captureDone)

	if p.onSelected != nil {
		p.onSelected(raw)
	}
	p.logger.Infow("local media acquired", "width", p.opts.Width, "height", p.opts.Height, "fps", p.opts.FrameRate)
	return nil
}

func (p *Provider) Acquired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

func (p *Provider) AudioTrack() ports.MediaTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return nil
	}
	return p.audio
}

func (p *Provider) SelectedVideo() ports.MediaTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return nil
	}
	return p.selected
}

func (p *Provider) OnVideoSelected(fn func(ports.MediaTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSelected = fn
}

// SetMuted flips audio enablement in place. The audio track itself is
// never replaced, so blur swaps cannot interrupt it.
func (p *Provider) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	if p.audio != nil {
		p.audio.SetEnabled(!muted)
	}
}

// SetCameraOff gates video delivery on both the raw and transformed
// tracks so the selection always matches the toggle.
func (p *Provider) SetCameraOff(off bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cameraOff = off
	if p.raw != nil {
		p.raw.SetEnabled(!off)
	}
	if p.transformed != nil {
		p.transformed.SetEnabled(!off)
	}
}

// SetBlurred starts or stops the frame-transform pump and swaps the
// selected video track. Exactly one replacement fires per toggle; there
// is never a moment with no selected track.
func (p *Provider) SetBlurred(ctx context.Context, blurred bool) error {
	p.mu.Lock()
	if !p.acquired {
		p.mu.Unlock()
		return fmt.Errorf("%w: media not acquired", domain.ErrMediaUnavailable)
	}
	if p.blurred == blurred {
		p.mu.Unlock()
		return nil
	}

	if !blurred {
		cancel, done := p.blurCancel, p.blurDone
		p.blurCancel, p.blurDone, p.blurCh = nil, nil, nil
		p.blurred = false
		p.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		// Restore the original raw track, not an equivalent one.
		p.selectVideo(p.rawTrack())
		return nil
	}

	if p.transformed == nil {
		t, err := newTrack(domain.TrackVideo, "camera-blur", "local")
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("%w: %v", domain.ErrTransformFailure, err)
		}
		t.SetEnabled(!p.cameraOff)
		p.transformed = t
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	ch := make(chan ports.VideoFrame, 1)
	done := make(chan struct{})
	p.blurCancel = cancel
	p.blurDone = done
	p.blurCh = ch
	p.blurred = true
	transformed := p.transformed
	p.mu.Unlock()

	go p.blurLoop(pumpCtx, ch, transformed, done)
	p.selectVideo(transformed)
	return nil
}

func (p *Provider) rawTrack() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raw
}

// selectVideo swaps the outbound video selection and announces it once.
func (p *Provider) selectVideo(t *Track) {
	p.mu.Lock()
	if t == nil || p.selected == t {
		p.mu.Unlock()
		return
	}
	t.SetEnabled(!p.cameraOff)
	p.selected = t
	fn := p.onSelected
	p.mu.Unlock()

	if fn != nil {
		fn(t)
	}
}

// selectFallback routes around the transformer while the breaker is open
// and restores the blur selection when it recovers.
func (p *Provider) selectFallback(toRaw bool) {
	p.mu.Lock()
	blurred := p.blurred
	raw := p.raw
	transformed := p.transformed
	p.mu.Unlock()

	if !blurred {
		return
	}
	if toRaw {
		p.selectVideo(raw)
	} else {
		p.selectVideo(transformed)
	}
}

// captureLoop is the device pump: every captured frame feeds the raw
// track and, while blur is on, the transform pump. It stops only on
// Release.
func (p *Provider) captureLoop(ctx context.Context, source ports.MediaSource, raw *Track, done chan struct{}) {
	defer close(done)
	frameDur := time.Second / time.Duration(p.opts.FrameRate)

	for {
		frame, err := source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warnw("capture stopped", "error", err)
			return
		}

		if err := raw.WriteFrame(frame, frameDur); err != nil {
			p.logger.Debugw("raw frame write failed", "error", err)
		}

		p.mu.Lock()
		ch := p.blurCh
		p.mu.Unlock()

		if ch != nil {
			select {
			case ch <- frame:
				continue // pump owns the frame buffer now
			default:
				// Pump busy: this frame is dropped from the blur path.
			}
		}
		p.recycle(source, frame)
	}
}

// blurLoop is the frame-transform pump: best effort, one frame at a
// time. A failed or timed-out transform drops the frame and keeps going;
// the breaker handles sustained failure.
func (p *Provider) blurLoop(ctx context.Context, ch <-chan ports.VideoFrame, out *Track, done chan struct{}) {
	defer close(done)
	frameDur := time.Second / time.Duration(p.opts.FrameRate)

	for {
		var frame ports.VideoFrame
		select {
		case <-ctx.Done():
			return
		case frame = <-ch:
		}

		var composited ports.VideoFrame
		tctx, cancel := context.WithTimeout(ctx, p.opts.FrameTimeout)
		err := p.breaker.Execute(tctx, func() error {
			var terr error
			composited, terr = p.transformer.Transform(tctx, frame)
			return terr
		})
		cancel()

		if err != nil {
			p.recycleSource(frame)
			continue
		}
		if err := out.WriteFrame(composited, frameDur); err != nil {
			p.logger.Debugw("composited frame write failed", "error", err)
		}
		p.recycleSource(frame)
	}
}

func (p *Provider) recycleSource(frame ports.VideoFrame) {
	p.mu.Lock()
	source := p.source
	p.mu.Unlock()
	if source != nil {
		p.recycle(source, frame)
	}
}

func (p *Provider) recycle(source ports.MediaSource, frame ports.VideoFrame) {
	if r, ok := source.(interface{ Recycle(ports.VideoFrame) }); ok {
		r.Recycle(frame)
	}
}

// Release stops every pump and the capture device. The next Acquire
// starts from scratch with fresh tracks.
func (p *Provider) Release() {
	p.mu.Lock()
	if !p.acquired {
		p.mu.Unlock()
		return
	}
	captureCancel, captureDone := p.captureCancel, p.captureDone
	blurCancel, blurDone := p.blurCancel, p.blurDone
	source := p.source
	p.captureCancel, p.captureDone = nil, nil
	p.blurCancel, p.blurDone, p.blurCh = nil, nil, nil
	p.source = nil
	p.audio, p.raw, p.transformed, p.selected = nil, nil, nil, nil
	p.blurred = false
	p.acquired = false
	p.mu.Unlock()

	if blurCancel != nil {
		blurCancel()
		<-blurDone
	}
	if captureCancel != nil {
		captureCancel()
		<-captureDone
	}
	if source != nil {
		source.Close()
	}
	p.logger.Infow("local media released")
}
