package services

import (
	"sort"
	"sync"
	"time"

	"meshcall/internal/core/domain"
)

// Roster is the participant set. Construction is a commutative merge:
// whichever of identity info or media stream arrives first creates the
// entry, the other enriches it. No peer id ever has two entries.
type Roster struct {
	mu           sync.Mutex
	participants map[domain.PeerID]*domain.Participant
}

func NewRoster() *Roster {
	return &Roster{participants: make(map[domain.PeerID]*domain.Participant)}
}

func (r *Roster) get(id domain.PeerID) *domain.Participant {
	p, ok := r.participants[id]
	if !ok {
		p = &domain.Participant{ID: id, Quality: domain.QualityGood, JoinedAt: time.Now()}
		r.participants[id] = p
	}
	return p
}

// PutLocal inserts the local participant under the placeholder id.
func (r *Roster) PutLocal(identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := identity.PeerID
	if id == "" {
		id = domain.PlaceholderPeerID
	}
	p := r.get(id)
	p.DisplayName = identity.DisplayName
	p.AvatarRef = identity.AvatarRef
	p.IsOriginator = identity.IsOriginator
	p.IsLocal = true
}

// Rekey moves the local placeholder entry under the assigned peer id.
// The entry is moved, never duplicated.
func (r *Roster) Rekey(from, to domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[from]
	if !ok || from == to {
		return
	}
	delete(r.participants, from)
	p.ID = to
	r.participants[to] = p
}

// MergeIdentity applies USER_INFO. An existing entry (for instance one
// created by an early media stream) is enriched, never recreated, and its
// stream is never discarded.
func (r *Roster) MergeIdentity(info domain.UserInfoPayload) *domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.get(info.PeerID)
	p.DisplayName = info.Name
	if info.AvatarRef != "" {
		p.AvatarRef = info.AvatarRef
	}
	p.Muted = info.Muted
	p.CameraOff = info.CameraOff
	return p
}

// MergeStream applies an arriving media stream, creating a placeholder
// entry when identity info has not arrived yet.
func (r *Roster) MergeStream(id domain.PeerID, streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(id).StreamID = streamID
}

// PatchState applies UPDATE_STATE to the matching participant only.
func (r *Roster) PatchState(state domain.UpdateStatePayload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[state.PeerID]
	if !ok {
		return false
	}
	p.Muted = state.Muted
	p.CameraOff = state.CameraOff
	p.Blurred = state.Blurred
	return true
}

// PatchLocal mutates the local entry through fn under the roster lock.
func (r *Roster) PatchLocal(fn func(*domain.Participant)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.participants {
		if p.IsLocal {
			fn(p)
			return
		}
	}
}

// AddReaction appends a reaction to the matching participant.
func (r *Roster) AddReaction(id domain.PeerID, emoji string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return
	}
	p.Reactions = append(p.Reactions, domain.Reaction{Emoji: emoji, CreatedAt: at})
}

// ExpireReactions sweeps every participant, dropping reactions older than
// ttl. Returns true when anything was removed.
func (r *Roster) ExpireReactions(now time.Time, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, p := range r.participants {
		if p.ExpireReactions(now, ttl) {
			changed = true
		}
	}
	return changed
}

// SetQuality updates the connection quality shown for one participant.
func (r *Roster) SetQuality(id domain.PeerID, q domain.ConnectionQuality) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[id]; ok {
		p.Quality = q
	}
}

// Remove drops the participant for id, keeping the local entry safe from
// remote-close races.
func (r *Roster) Remove(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[id]; ok && !p.IsLocal {
		delete(r.participants, id)
	}
}

// Clear drops every entry, local included.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = make(map[domain.PeerID]*domain.Participant)
}

func (r *Roster) Has(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[id]
	return ok
}

func (r *Roster) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// Participants returns a stable-ordered snapshot for the rendering layer.
func (r *Roster) Participants() []domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		snapshot := *p
		snapshot.Reactions = append([]domain.Reaction(nil), p.Reactions...)
		list = append(list, snapshot)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].IsLocal != list[j].IsLocal {
			return list[i].IsLocal
		}
		return list[i].ID < list[j].ID
	})
	return list
}
