package media

import (
	"context"
	"fmt"
	"math"
	"time"

	"meshcall/internal/core/ports"
	"meshcall/pkg/optimize"
)

// SyntheticSource stands in for a camera on headless clients: it emits
// frame-rate-paced gradient frames so every downstream path (pump, blur,
// track replacement) behaves as with live capture.
type SyntheticSource struct {
	width     int
	height    int
	frameRate int

	pool   *optimize.BytePool
	ticker *time.Ticker
	seq    uint64
}

func NewSyntheticSource(width, height, frameRate int) (*SyntheticSource, error) {
	if width <= 0 || height <= 0 || frameRate <= 0 {
		return nil, fmt.Errorf("invalid capture geometry %dx%d@%d", width, height, frameRate)
	}
	return &SyntheticSource{
		width:     width,
		height:    height,
		frameRate: frameRate,
		pool:      optimize.NewBytePool(width * height),
		ticker:    time.NewTicker(time.Second / time.Duration(frameRate)),
	}, nil
}

// NextFrame blocks until the next capture tick and returns a frame whose
// buffer comes from the pool; callers hand it back via Recycle.
func (s *SyntheticSource) NextFrame(ctx context.Context) (ports.VideoFrame, error) {
	select {
	case <-ctx.Done():
		return ports.VideoFrame{}, ctx.Err()
	case <-s.ticker.C:
	}

	s.seq++
	buf := s.pool.Get()
	phase := float64(s.seq) / float64(s.frameRate)
	for i := 0; i < s.width*s.height; i++ {
		buf = append(buf, byte(128+127*math.Sin(phase+float64(i%s.width)/64)))
	}

	return ports.VideoFrame{
		Data:      buf,
		Width:     s.width,
		Height:    s.height,
		Timestamp: time.Duration(s.seq) * time.Second / time.Duration(s.frameRate),
	}, nil
}

// Recycle returns a frame buffer to the pool.
func (s *SyntheticSource) Recycle(frame ports.VideoFrame) {
	s.pool.Put(frame.Data)
}

func (s *SyntheticSource) Close() error {
	s.ticker.Stop()
	return nil
}
