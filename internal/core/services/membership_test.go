package services

import (
	"encoding/json"
	"sync"
	"testing"

	"meshcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type membershipFixture struct {
	registry   *Registry
	roster     *Roster
	chat       *ChatService
	membership *Membership

	mu     sync.Mutex
	dialed []domain.PeerID
}

func newMembershipFixture(localID domain.PeerID) *membershipFixture {
	log := zap.NewNop().Sugar()
	f := &membershipFixture{
		registry: NewRegistry(log),
		roster:   NewRoster(),
		chat:     NewChatService(stubGenerator{}, log),
	}
	f.registry.SetLocalID(localID)
	localInfo := func() domain.UserInfoPayload {
		return domain.UserInfoPayload{PeerID: localID, Name: "Me"}
	}
	connect := func(remote domain.PeerID) {
		f.mu.Lock()
		f.dialed = append(f.dialed, remote)
		f.mu.Unlock()
	}
	f.membership = NewMembership(f.registry, f.roster, f.chat, localInfo, connect, log)
	return f
}

func (f *membershipFixture) dialedPeers() []domain.PeerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PeerID(nil), f.dialed...)
}

func decodeSent(t *testing.T, payloads [][]byte) []domain.MeshMessage {
	t.Helper()
	msgs := make([]domain.MeshMessage, 0, len(payloads))
	for _, raw := range payloads {
		msg, err := domain.DecodeMessage(raw)
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestChannelOpenSendsUserInfoThenPeerList(t *testing.T) {
	f := newMembershipFixture("AAAA")

	// An already-open pair to an older peer, plus the new arrival.
	f.registry.Upsert("CCCC", newFakeDataChannel(), &fakeMediaSender{}, false)
	f.registry.MarkOpen("CCCC")

	newDC := newFakeDataChannel()
	f.registry.Upsert("BBBB", newDC, &fakeMediaSender{}, true)

	f.membership.HandleChannelOpen("BBBB")

	msgs := decodeSent(t, newDC.sentPayloads())
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MsgUserInfo, msgs[0].Type)
	assert.Equal(t, domain.MsgPeerList, msgs[1].Type)

	var list domain.PeerListPayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &list))
	assert.Equal(t, []domain.PeerID{"CCCC"}, list.Peers)
}

func TestChannelOpenOmitsEmptyPeerList(t *testing.T) {
	f := newMembershipFixture("AAAA")

	dc := newFakeDataChannel()
	f.registry.Upsert("BBBB", dc, &fakeMediaSender{}, true)
	f.membership.HandleChannelOpen("BBBB")

	msgs := decodeSent(t, dc.sentPayloads())
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MsgUserInfo, msgs[0].Type)
}

func TestChannelOpenForUnknownPairIgnored(t *testing.T) {
	f := newMembershipFixture("AAAA")
	f.membership.HandleChannelOpen("GHOST")
	assert.Equal(t, 0, f.roster.Count())
}

func TestPeerListDialsOnlyUnknownPeers(t *testing.T) {
	f := newMembershipFixture("AAAA")

	f.registry.Upsert("CCCC", newFakeDataChannel(), &fakeMediaSender{}, false)

	payload, err := domain.EncodeMessage(domain.MsgPeerList, domain.PeerListPayload{
		Peers: []domain.PeerID{"CCCC", "DDDD", "AAAA", ""},
	})
	require.NoError(t, err)

	f.membership.HandleData("BBBB", payload)

	// Known, local and empty ids skipped; only DDDD is new.
	assert.Equal(t, []domain.PeerID{"DDDD"}, f.dialedPeers())
}

func TestUserInfoMergesIntoRoster(t *testing.T) {
	f := newMembershipFixture("AAAA")

	payload, err := domain.EncodeMessage(domain.MsgUserInfo, domain.UserInfoPayload{
		PeerID: "BBBB", Name: "Bea", Muted: true,
	})
	require.NoError(t, err)

	f.membership.HandleData("BBBB", payload)

	require.Equal(t, 1, f.roster.Count())
	p := f.roster.Participants()[0]
	assert.Equal(t, "Bea", p.DisplayName)
	assert.True(t, p.Muted)
}

func TestUserInfoAfterStreamKeepsStream(t *testing.T) {
	f := newMembershipFixture("AAAA")
	f.roster.MergeStream("BBBB", "stream-7")

	payload, err := domain.EncodeMessage(domain.MsgUserInfo, domain.UserInfoPayload{PeerID: "BBBB", Name: "Bea"})
	require.NoError(t, err)
	f.membership.HandleData("BBBB", payload)

	require.Equal(t, 1, f.roster.Count())
	p := f.roster.Participants()[0]
	assert.Equal(t, "stream-7", p.StreamID)
	assert.Equal(t, "Bea", p.DisplayName)
}

func TestChatMessageAppendsToLog(t *testing.T) {
	f := newMembershipFixture("AAAA")

	payload, err := domain.EncodeMessage(domain.MsgChat, domain.ChatPayload{
		ID: "m1", SenderID: "BBBB", SenderName: "Bea", Text: "hi all",
	})
	require.NoError(t, err)
	f.membership.HandleData("BBBB", payload)

	msgs := f.chat.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi all", msgs[0].Text)
	assert.Equal(t, domain.OriginUser, msgs[0].Origin)
}

func TestMalformedMessagesDropped(t *testing.T) {
	f := newMembershipFixture("AAAA")

	f.membership.HandleData("BBBB", []byte("not json"))
	f.membership.HandleData("BBBB", []byte(`{"payload":{}}`))
	f.membership.HandleData("BBBB", []byte(`{"type":"user_info","payload":"bogus"}`))

	assert.Equal(t, 0, f.roster.Count())
	assert.Empty(t, f.dialedPeers())
}
