package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
)

// HTTPTransformer calls the external frame-transform capability over
// HTTP: raw frame in, composited frame out. Best effort; the pump drops
// a frame on any failure.
type HTTPTransformer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPTransformer(endpoint string) *HTTPTransformer {
	return &HTTPTransformer{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

func (t *HTTPTransformer) Transform(ctx context.Context, frame ports.VideoFrame) (ports.VideoFrame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(frame.Data))
	if err != nil {
		return ports.VideoFrame{}, fmt.Errorf("%w: %v", domain.ErrTransformFailure, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Frame-Width", strconv.Itoa(frame.Width))
	req.Header.Set("X-Frame-Height", strconv.Itoa(frame.Height))

	resp, err := t.client.Do(req)
	if err != nil {
		return ports.VideoFrame{}, fmt.Errorf("%w: %v", domain.ErrTransformFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.VideoFrame{}, fmt.Errorf("%w: status %d", domain.ErrTransformFailure, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.VideoFrame{}, fmt.Errorf("%w: %v", domain.ErrTransformFailure, err)
	}

	return ports.VideoFrame{
		Data:      data,
		Width:     frame.Width,
		Height:    frame.Height,
		Timestamp: frame.Timestamp,
	}, nil
}

// BoxBlurTransformer composites frames locally with a horizontal box
// blur. Used when no transform endpoint is configured.
type BoxBlurTransformer struct {
	radius int
}

func NewBoxBlurTransformer(radius int) *BoxBlurTransformer {
	if radius < 1 {
		radius = 3
	}
	return &BoxBlurTransformer{radius: radius}
}

func (t *BoxBlurTransformer) Transform(ctx context.Context, frame ports.VideoFrame) (ports.VideoFrame, error) {
	if len(frame.Data) < frame.Width*frame.Height {
		return ports.VideoFrame{}, fmt.Errorf("%w: short frame buffer", domain.ErrTransformFailure)
	}

	out := make([]byte, len(frame.Data))
	for y := 0; y < frame.Height; y++ {
		row := frame.Data[y*frame.Width : (y+1)*frame.Width]
		for x := 0; x < frame.Width; x++ {
			sum, n := 0, 0
			for dx := -t.radius; dx <= t.radius; dx++ {
				if x+dx >= 0 && x+dx < frame.Width {
					sum += int(row[x+dx])
					n++
				}
			}
			out[y*frame.Width+x] = byte(sum / n)
		}
	}

	return ports.VideoFrame{
		Data:      out,
		Width:     frame.Width,
		Height:    frame.Height,
		Timestamp: frame.Timestamp,
	}, nil
}
