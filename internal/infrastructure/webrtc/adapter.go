package webrtc

import (
	"fmt"
	"sync"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
	"meshcall/internal/infrastructure/media"

	"github.com/pion/webrtc/v3"
)

// dataChannelAdapter exposes a pion data channel through the core port.
// For inbound pairs the channel arrives after the pair is registered, so
// the adapter starts empty and is filled on OnDataChannel.
type dataChannelAdapter struct {
	mu sync.Mutex
	dc *webrtc.DataChannel
}

func newDataChannelAdapter(dc *webrtc.DataChannel) *dataChannelAdapter {
	return &dataChannelAdapter{dc: dc}
}

func (a *dataChannelAdapter) set(dc *webrtc.DataChannel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dc = dc
}

func (a *dataChannelAdapter) channel() *webrtc.DataChannel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dc
}

func (a *dataChannelAdapter) Send(payload []byte) error {
	dc := a.channel()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return domain.ErrChannelClosed
	}
	return dc.Send(payload)
}

func (a *dataChannelAdapter) IsOpen() bool {
	dc := a.channel()
	return dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (a *dataChannelAdapter) Close() error {
	dc := a.channel()
	if dc == nil {
		return nil
	}
	return dc.Close()
}

// mediaSenderAdapter replaces the outbound video track on one peer
// connection. Closing it tears down the whole connection, which also
// closes the paired data channel.
type mediaSenderAdapter struct {
	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	sender *webrtc.RTPSender
}

func newMediaSenderAdapter(pc *webrtc.PeerConnection, sender *webrtc.RTPSender) *mediaSenderAdapter {
	return &mediaSenderAdapter{pc: pc, sender: sender}
}

func (a *mediaSenderAdapter) ReplaceTrack(track ports.MediaTrack) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sender == nil {
		return domain.ErrChannelClosed
	}
	local, ok := media.LocalTrackOf(track)
	if !ok {
		return fmt.Errorf("track %s is not a local media track", track.ID())
	}
	return a.sender.ReplaceTrack(local)
}

func (a *mediaSenderAdapter) Close() error {
	a.mu.Lock()
	pc := a.pc
	a.pc, a.sender = nil, nil
	a.mu.Unlock()

	if pc == nil {
		return nil
	}
	return pc.Close()
}
