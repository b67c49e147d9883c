package services

import (
	"testing"
	"time"

	"meshcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestRosterMergeIsCommutative(t *testing.T) {
	// Identity first, stream second.
	a := NewRoster()
	a.MergeIdentity(domain.UserInfoPayload{PeerID: "BBBB", Name: "Bea"})
	a.MergeStream("BBBB", "stream-1")

	// Stream first, identity second.
	b := NewRoster()
	b.MergeStream("BBBB", "stream-1")
	b.MergeIdentity(domain.UserInfoPayload{PeerID: "BBBB", Name: "Bea"})

	for _, r := range []*Roster{a, b} {
		assert.Equal(t, 1, r.Count())
		p := r.Participants()[0]
		assert.Equal(t, "Bea", p.DisplayName)
		assert.Equal(t, "stream-1", p.StreamID)
	}
}

func TestRosterIdentityNeverDiscardsStream(t *testing.T) {
	r := NewRoster()
	r.MergeStream("BBBB", "stream-1")
	r.MergeIdentity(domain.UserInfoPayload{PeerID: "BBBB", Name: "Bea", Muted: true})

	p := r.Participants()[0]
	assert.Equal(t, "stream-1", p.StreamID)
	assert.True(t, p.Muted)
}

func TestRosterRekeyMovesNotDuplicates(t *testing.T) {
	r := NewRoster()
	r.PutLocal(domain.Identity{DisplayName: "Me", IsOriginator: true})
	assert.True(t, r.Has(domain.PlaceholderPeerID))

	r.Rekey(domain.PlaceholderPeerID, "AAAA")

	assert.Equal(t, 1, r.Count())
	assert.False(t, r.Has(domain.PlaceholderPeerID))
	p := r.Participants()[0]
	assert.Equal(t, domain.PeerID("AAAA"), p.ID)
	assert.True(t, p.IsLocal)
	assert.True(t, p.IsOriginator)
}

func TestRosterPatchStateMatchingPeerOnly(t *testing.T) {
	r := NewRoster()
	r.MergeIdentity(domain.UserInfoPayload{PeerID: "BBBB", Name: "Bea"})
	r.MergeIdentity(domain.UserInfoPayload{PeerID: "CCCC", Name: "Cal"})

	assert.True(t, r.PatchState(domain.UpdateStatePayload{PeerID: "BBBB", Muted: true, Blurred: true}))
	assert.False(t, r.PatchState(domain.UpdateStatePayload{PeerID: "ZZZZ", Muted: true}))

	for _, p := range r.Participants() {
		if p.ID == "BBBB" {
			assert.True(t, p.Muted)
			assert.True(t, p.Blurred)
		} else {
			assert.False(t, p.Muted)
		}
	}
}

func TestRosterReactionExpiry(t *testing.T) {
	r := NewRoster()
	r.MergeIdentity(domain.UserInfoPayload{PeerID: "BBBB", Name: "Bea"})

	now := time.Now()
	r.AddReaction("BBBB", "👍", now.Add(-2500*time.Millisecond))
	r.AddReaction("BBBB", "🎉", now.Add(-500*time.Millisecond))

	changed := r.ExpireReactions(now, DefaultReactionTTL)
	assert.True(t, changed)

	p := r.Participants()[0]
	assert.Len(t, p.Reactions, 1)
	assert.Equal(t, "🎉", p.Reactions[0].Emoji)

	// Nothing else is due: sweep reports no change.
	assert.False(t, r.ExpireReactions(now, DefaultReactionTTL))
}

func TestRosterReactionForUnknownPeerDropped(t *testing.T) {
	r := NewRoster()
	r.AddReaction("ZZZZ", "👍", time.Now())
	assert.Equal(t, 0, r.Count())
}

func TestRosterRemoveKeepsLocal(t *testing.T) {
	r := NewRoster()
	r.PutLocal(domain.Identity{PeerID: "AAAA", DisplayName: "Me"})
	r.MergeIdentity(domain.UserInfoPayload{PeerID: "BBBB", Name: "Bea"})

	r.Remove("BBBB")
	r.Remove("AAAA") // local entry survives remote-close races

	assert.Equal(t, 1, r.Count())
	assert.True(t, r.Participants()[0].IsLocal)
}

func TestRosterParticipantsLocalFirstThenSorted(t *testing.T) {
	r := NewRoster()
	r.MergeIdentity(domain.UserInfoPayload{PeerID: "CCCC", Name: "Cal"})
	r.PutLocal(domain.Identity{PeerID: "ZZZZ", DisplayName: "Me"})
	r.MergeIdentity(domain.UserInfoPayload{PeerID: "BBBB", Name: "Bea"})

	list := r.Participants()
	assert.Len(t, list, 3)
	assert.True(t, list[0].IsLocal)
	assert.Equal(t, domain.PeerID("BBBB"), list[1].ID)
	assert.Equal(t, domain.PeerID("CCCC"), list[2].ID)
}
