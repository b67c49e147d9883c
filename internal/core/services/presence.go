package services

import (
	"context"
	"sync"
	"time"

	"meshcall/internal/core/domain"

	"go.uber.org/zap"
)

const (
	// DefaultReactionTTL is how long a reaction stays on a participant.
	DefaultReactionTTL = 2000 * time.Millisecond
	// DefaultSweepInterval paces the reaction expiry sweep.
	DefaultSweepInterval = 500 * time.Millisecond
)

// Presence propagates local toggle state and reactions to every open
// pair, best effort and at-most-once. A peer disconnected at send time
// simply misses the update.
type Presence struct {
	registry    *Registry
	roster      *Roster
	reactionTTL time.Duration
	sweepEvery  time.Duration
	logger      *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPresence(registry *Registry, roster *Roster, logger *zap.SugaredLogger) *Presence {
	return &Presence{
		registry:    registry,
		roster:      roster,
		reactionTTL: DefaultReactionTTL,
		sweepEvery:  DefaultSweepInterval,
		logger:      logger,
	}
}

// SetTimings overrides the reaction TTL and sweep pace. Must be called
// before StartSweep.
func (p *Presence) SetTimings(ttl, sweep time.Duration) {
	if ttl > 0 {
		p.reactionTTL = ttl
	}
	if sweep > 0 {
		p.sweepEvery = sweep
	}
}

// BroadcastState fans the local toggle snapshot out to every open pair.
// Fire and forget: no queueing for closed or pending pairs.
func (p *Presence) BroadcastState(state domain.UpdateStatePayload) {
	data, err := domain.EncodeMessage(domain.MsgUpdateState, state)
	if err != nil {
		p.logger.Errorw("encode update_state", "error", err)
		return
	}
	p.registry.Broadcast(data)
}

// SendReaction appends the reaction locally and fans it out.
func (p *Presence) SendReaction(local domain.PeerID, emoji string) {
	p.roster.AddReaction(local, emoji, time.Now())

	data, err := domain.EncodeMessage(domain.MsgReaction, domain.ReactionPayload{PeerID: local, Emoji: emoji})
	if err != nil {
		p.logger.Errorw("encode reaction", "error", err)
		return
	}
	p.registry.Broadcast(data)
}

// StartSweep launches the periodic reaction-expiry sweep, the one
// continuously running loop in the coordinator. Calling it twice
// restarts the sweep.
func (p *Presence) StartSweep(ctx context.Context) {
	p.StopSweep()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.sweepEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				p.roster.ExpireReactions(now, p.reactionTTL)
			}
		}
	}()
}

// StopSweep cancels the sweep and waits for it to exit. Idempotent; must
// run on every owning transition so the loop is never leaked.
func (p *Presence) StopSweep() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
