package services

import (
	"context"
	"sync"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
)

const (
	waitLong = 2 * time.Second
	waitTick = 5 * time.Millisecond
)

// stubGenerator returns canned assistant text.
type stubGenerator struct {
	summary string
	answer  string
}

func (s stubGenerator) Summarize(ctx context.Context, messages []domain.ChatMessage) string {
	if s.summary == "" {
		return "stub summary"
	}
	return s.summary
}

func (s stubGenerator) Answer(ctx context.Context, query string, history []domain.ChatMessage) string {
	if s.answer == "" {
		return "stub answer"
	}
	return s.answer
}

// fakeDataChannel records sent payloads and can be flipped closed.
type fakeDataChannel struct {
	mu     sync.Mutex
	open   bool
	closed bool
	sent   [][]byte
}

func newFakeDataChannel() *fakeDataChannel {
	return &fakeDataChannel{open: true}
}

func (f *fakeDataChannel) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return domain.ErrChannelClosed
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeDataChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeDataChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closed = true
	return nil
}

func (f *fakeDataChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeDataChannel) sentPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeDataChannel) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeMediaSender records track replacements.
type fakeMediaSender struct {
	mu       sync.Mutex
	replaced []ports.MediaTrack
	closed   bool
}

func (f *fakeMediaSender) ReplaceTrack(track ports.MediaTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, track)
	return nil
}

func (f *fakeMediaSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMediaSender) replaceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replaced)
}

// fakeTrack satisfies ports.MediaTrack for swap tests.
type fakeTrack struct {
	id      string
	kind    domain.TrackKind
	enabled bool
}

func (f *fakeTrack) ID() string             { return f.id }
func (f *fakeTrack) Kind() domain.TrackKind { return f.kind }
func (f *fakeTrack) SetEnabled(e bool)      { f.enabled = e }
func (f *fakeTrack) Enabled() bool          { return f.enabled }
