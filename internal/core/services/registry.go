package services

import (
	"sync"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"

	"go.uber.org/zap"
)

type PairState int

const (
	PairConnecting PairState = iota
	PairOpen
	PairClosed
)

// ConnectionPair holds the data channel and media sender for one remote
// peer. The registry is its sole owner; no other component closes or
// mutates the channels directly.
type ConnectionPair struct {
	Remote  domain.PeerID
	data    ports.DataChannel
	media   ports.MediaSender
	inbound bool
	state   PairState
}

func (p *ConnectionPair) State() PairState { return p.state }

func (p *ConnectionPair) teardown() {
	if p.state == PairClosed {
		return
	}
	p.state = PairClosed
	if p.data != nil {
		p.data.Close()
	}
	if p.media != nil {
		p.media.Close()
	}
}

// Registry owns every ConnectionPair, exactly one per remote peer. It is
// constructed at Joining and torn down at Left.
type Registry struct {
	mu      sync.Mutex
	localID domain.PeerID
	pairs   map[domain.PeerID]*ConnectionPair
	logger  *zap.SugaredLogger
}

func NewRegistry(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		pairs:  make(map[domain.PeerID]*ConnectionPair),
		logger: logger,
	}
}

// SetLocalID records the rendezvous-assigned id used for glare
// tie-breaking.
func (r *Registry) SetLocalID(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localID = id
}

// Upsert registers a pair for remote, resolving duplicates so exactly one
// pair survives. When both sides dial each other at once, the connection
// initiated by the lexically smaller peer id wins on both ends, so the
// mesh converges to a single pair per edge. The losing pair is closed
// without side effects and Upsert returns false for it.
func (r *Registry) Upsert(remote domain.PeerID, data ports.DataChannel, media ports.MediaSender, inbound bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidate := &ConnectionPair{Remote: remote, data: data, media: media, inbound: inbound, state: PairConnecting}

	existing, ok := r.pairs[remote]
	if !ok {
		r.pairs[remote] = candidate
		return true
	}

	if existing.state == PairOpen {
		r.logger.Debugw("duplicate pair rejected, existing open", "remote", remote)
		candidate.teardown()
		return false
	}

	// Both sides still connecting with opposite directions: glare. The
	// offer initiated by the lexically smaller peer id survives, so both
	// ends of the edge converge on the same pair.
	if inbound != existing.inbound {
		inboundWins := r.localID > remote
		if inbound == inboundWins {
			r.pairs[remote] = candidate
			existing.teardown()
			r.logger.Debugw("glare resolved", "remote", remote, "kept_inbound", inbound)
			return true
		}
	}

	r.logger.Debugw("duplicate pair rejected", "remote", remote, "inbound", inbound)
	candidate.teardown()
	return false
}

// MarkOpen flips the pair for remote to Open. Returns false when no
// connecting pair exists (late event after teardown).
func (r *Registry) MarkOpen(remote domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pair, ok := r.pairs[remote]
	if !ok || pair.state != PairConnecting {
		return false
	}
	pair.state = PairOpen
	return true
}

// Has reports whether a live pair exists for remote.
func (r *Registry) Has(remote domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair, ok := r.pairs[remote]
	return ok && pair.state != PairClosed
}

// Peers lists every remote with a live pair.
func (r *Registry) Peers() []domain.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]domain.PeerID, 0, len(r.pairs))
	for id, pair := range r.pairs {
		if pair.state != PairClosed {
			peers = append(peers, id)
		}
	}
	return peers
}

// SendTo delivers payload to one peer. Fails with domain.ErrChannelClosed
// unless the pair is open.
func (r *Registry) SendTo(remote domain.PeerID, payload []byte) error {
	r.mu.Lock()
	pair, ok := r.pairs[remote]
	r.mu.Unlock()

	if !ok || pair.state != PairOpen || !pair.data.IsOpen() {
		return domain.ErrChannelClosed
	}
	return pair.data.Send(payload)
}

// Broadcast sends payload to every pair with an open data channel.
// Closed or pending pairs are skipped, never queued. Returns the number
// of peers reached.
func (r *Registry) Broadcast(payload []byte) int {
	r.mu.Lock()
	open := make([]*ConnectionPair, 0, len(r.pairs))
	for _, pair := range r.pairs {
		if pair.state == PairOpen && pair.data.IsOpen() {
			open = append(open, pair)
		}
	}
	r.mu.Unlock()

	sent := 0
	for _, pair := range open {
		if err := pair.data.Send(payload); err != nil {
			r.logger.Debugw("broadcast send failed", "remote", pair.Remote, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// ReplaceOutboundTrack pushes the newly selected track to every pair.
// Failures on closed channels are dropped; the owning participant is
// removed by that channel's close handler, not here.
func (r *Registry) ReplaceOutboundTrack(track ports.MediaTrack) {
	r.mu.Lock()
	senders := make([]*ConnectionPair, 0, len(r.pairs))
	for _, pair := range r.pairs {
		if pair.state != PairClosed && pair.media != nil {
			senders = append(senders, pair)
		}
	}
	r.mu.Unlock()

	for _, pair := range senders {
		if err := pair.media.ReplaceTrack(track); err != nil {
			r.logger.Debugw("track replace failed", "remote", pair.Remote, "error", err)
		}
	}
}

// Close tears down both channels for remote. Idempotent.
func (r *Registry) Close(remote domain.PeerID) {
	r.mu.Lock()
	pair, ok := r.pairs[remote]
	if ok {
		delete(r.pairs, remote)
	}
	r.mu.Unlock()

	if ok {
		pair.teardown()
	}
}

// CloseAll tears down every pair. Used on the InMeeting -> Left transition.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pairs := make([]*ConnectionPair, 0, len(r.pairs))
	for _, pair := range r.pairs {
		pairs = append(pairs, pair)
	}
	r.pairs = make(map[domain.PeerID]*ConnectionPair)
	r.mu.Unlock()

	for _, pair := range pairs {
		pair.teardown()
	}
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}
