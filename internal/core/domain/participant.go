package domain

import "time"

type PeerID string
type MeetingCode string

// PlaceholderPeerID keys the local participant until the rendezvous
// service assigns the real id.
const PlaceholderPeerID PeerID = "local-pending"

type ConnectionQuality string

const (
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityPoor      ConnectionQuality = "poor"
)

// Identity is what a peer knows about itself before and after joining.
// PeerID stays empty until the rendezvous service assigns one.
type Identity struct {
	PeerID       PeerID
	DisplayName  string
	AvatarRef    string
	IsOriginator bool
}

type Reaction struct {
	Emoji     string
	CreatedAt time.Time
}

// Participant is one roster entry. Exactly one exists per known peer id,
// including the local peer.
type Participant struct {
	ID           PeerID
	DisplayName  string
	AvatarRef    string
	IsOriginator bool
	IsLocal      bool

	Muted         bool
	CameraOff     bool
	Blurred       bool
	ScreenSharing bool
	Speaking      bool
	Quality       ConnectionQuality

	Reactions []Reaction

	// StreamID references the inbound media for this peer, empty until
	// the first remote track arrives. The rendering layer resolves it.
	StreamID string

	JoinedAt time.Time
}

// ExpireReactions drops reactions older than ttl and reports whether
// anything was removed.
func (p *Participant) ExpireReactions(now time.Time, ttl time.Duration) bool {
	kept := p.Reactions[:0]
	for _, r := range p.Reactions {
		if now.Sub(r.CreatedAt) < ttl {
			kept = append(kept, r)
		}
	}
	changed := len(kept) != len(p.Reactions)
	p.Reactions = kept
	return changed
}
