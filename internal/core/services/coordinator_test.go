package services

import (
	"context"
	"sync"
	"testing"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider satisfies ports.CapabilityProvider without touching any
// device.
type fakeProvider struct {
	mu         sync.Mutex
	acquired   bool
	failNext   error
	released   int
	onSelected func(ports.MediaTrack)
	audio      *fakeTrack
	video      *fakeTrack
	blurred    bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		audio: &fakeTrack{id: "audio", kind: domain.TrackAudio, enabled: true},
		video: &fakeTrack{id: "video-raw", kind: domain.TrackVideo, enabled: true},
	}
}

func (f *fakeProvider) Acquire(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.acquired = true
	return nil
}

func (f *fakeProvider) Acquired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired
}

func (f *fakeProvider) AudioTrack() ports.MediaTrack    { return f.audio }
func (f *fakeProvider) SelectedVideo() ports.MediaTrack { return f.video }

func (f *fakeProvider) SetMuted(muted bool)   { f.audio.SetEnabled(!muted) }
func (f *fakeProvider) SetCameraOff(off bool) { f.video.SetEnabled(!off) }

func (f *fakeProvider) SetBlurred(ctx context.Context, blurred bool) error {
	f.mu.Lock()
	f.blurred = blurred
	fn := f.onSelected
	f.mu.Unlock()
	if fn != nil {
		id := "video-raw"
		if blurred {
			id = "video-blur"
		}
		fn(&fakeTrack{id: id, kind: domain.TrackVideo, enabled: true})
	}
	return nil
}

func (f *fakeProvider) OnVideoSelected(fn func(ports.MediaTrack)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSelected = fn
}

func (f *fakeProvider) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired = false
	f.released++
}

// fakeTransport assigns a fixed peer id and records dialed remotes. On
// Connect it immediately establishes an open pair through the event sink,
// mimicking a successful handshake.
type fakeTransport struct {
	assigned domain.PeerID
	events   ports.TransportEvents
	openErr  error

	mu      sync.Mutex
	dialed  []domain.PeerID
	closed  bool
	dialErr error
}

func (f *fakeTransport) Open(ctx context.Context, identity domain.Identity) (domain.PeerID, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	return f.assigned, nil
}

func (f *fakeTransport) Connect(ctx context.Context, remote domain.PeerID) error {
	f.mu.Lock()
	f.dialed = append(f.dialed, remote)
	err := f.dialErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.events.HandlePairEstablishing(remote, newFakeDataChannel(), &fakeMediaSender{}, false)
	f.events.HandleChannelOpen(remote)
	return nil
}

func (f *fakeTransport) Status() ports.TransportStatus   { return ports.TransportConnected }
func (f *fakeTransport) Retry(ctx context.Context) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) dialedPeers() []domain.PeerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PeerID(nil), f.dialed...)
}

func newTestCoordinator(assigned domain.PeerID) (*Coordinator, *fakeProvider, *fakeTransport) {
	log := zap.NewNop().Sugar()
	provider := newFakeProvider()
	transport := &fakeTransport{assigned: assigned}
	chat := NewChatService(stubGenerator{}, log)

	c := NewCoordinator(provider, chat, NewQualityService(), func(events ports.TransportEvents) ports.PeerTransport {
		transport.events = events
		return transport
	}, log)
	return c, provider, transport
}

func TestJoinRequiresDisplayName(t *testing.T) {
	c, _, _ := newTestCoordinator("AAAA")

	err := c.Join(context.Background(), domain.Identity{}, "")
	assert.ErrorIs(t, err, domain.ErrDisplayNameRequired)
	assert.Equal(t, domain.StateLobby, c.State())
}

func TestJoinAsOriginatorReachesInMeeting(t *testing.T) {
	c, provider, _ := newTestCoordinator("AAAA")

	err := c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, "")
	require.NoError(t, err)

	assert.Equal(t, domain.StateInMeeting, c.State())
	assert.Equal(t, domain.PeerID("AAAA"), c.LocalID())
	assert.True(t, provider.Acquired())

	// Local roster entry was rekeyed from the placeholder.
	list := c.Participants()
	require.Len(t, list, 1)
	assert.Equal(t, domain.PeerID("AAAA"), list[0].ID)
	assert.True(t, list[0].IsLocal)
	assert.True(t, list[0].IsOriginator)

	require.NoError(t, c.Leave(context.Background()))
}

func TestJoinDialsHostWhenJoining(t *testing.T) {
	c, _, transport := newTestCoordinator("BBBB")

	err := c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, "AAAA")
	require.NoError(t, err)

	assert.Equal(t, []domain.PeerID{"AAAA"}, transport.dialedPeers())
	assert.Equal(t, domain.StateInMeeting, c.State())

	// Joiner is never the originator.
	for _, p := range c.Participants() {
		if p.IsLocal {
			assert.False(t, p.IsOriginator)
		}
	}

	require.NoError(t, c.Leave(context.Background()))
}

func TestJoinStaysInMeetingWhenHostUnreachable(t *testing.T) {
	c, _, transport := newTestCoordinator("BBBB")
	transport.dialErr = domain.ErrPeerUnreachable

	err := c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, "AAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.StateInMeeting, c.State())

	// The failure surfaces as a dismissable notice, not an error.
	select {
	case notice := <-c.Notices():
		assert.Contains(t, notice, "AAAA")
	default:
		t.Fatal("expected a notice for the unreachable host")
	}

	require.NoError(t, c.Leave(context.Background()))
}

func TestJoinMediaFailureReturnsToLobby(t *testing.T) {
	c, provider, _ := newTestCoordinator("AAAA")
	provider.failNext = domain.ErrMediaUnavailable

	err := c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, "")
	assert.ErrorIs(t, err, domain.ErrMediaUnavailable)
	assert.Equal(t, domain.StateLobby, c.State())
	assert.Empty(t, c.Participants())

	// The state machine recovered: a second join succeeds.
	require.NoError(t, c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, ""))
	assert.Equal(t, domain.StateInMeeting, c.State())
	require.NoError(t, c.Leave(context.Background()))
}

func TestLeaveResetsEverything(t *testing.T) {
	c, provider, transport := newTestCoordinator("AAAA")

	require.NoError(t, c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, ""))
	c.SendChat("hello")

	require.NoError(t, c.Leave(context.Background()))

	assert.Equal(t, domain.StateLobby, c.State())
	assert.Empty(t, c.Participants())
	assert.Equal(t, domain.PeerID(""), c.LocalID())
	assert.True(t, transport.closed)
	assert.False(t, provider.Acquired())
	assert.Empty(t, c.chat.Messages())

	// Lobby -> Joining is open again.
	require.NoError(t, c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, ""))
	require.NoError(t, c.Leave(context.Background()))
}

func TestLeaveFromLobbyRejected(t *testing.T) {
	c, _, _ := newTestCoordinator("AAAA")
	err := c.Leave(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPeerListConvergesMesh(t *testing.T) {
	// C joins via B and learns about A through B's PEER_LIST; the
	// coordinator must dial A without user involvement.
	c, _, transport := newTestCoordinator("CCCC")

	require.NoError(t, c.Join(context.Background(), domain.Identity{DisplayName: "Cal"}, "BBBB"))

	payload, err := domain.EncodeMessage(domain.MsgPeerList, domain.PeerListPayload{Peers: []domain.PeerID{"AAAA"}})
	require.NoError(t, err)
	c.HandleChannelData("BBBB", payload)

	assert.Eventually(t, func() bool {
		dialed := transport.dialedPeers()
		return len(dialed) == 2 && dialed[1] == "AAAA"
	}, waitLong, waitTick)

	require.NoError(t, c.Leave(context.Background()))
}

func TestRemoteStreamBeforeUserInfoMerges(t *testing.T) {
	c, _, _ := newTestCoordinator("AAAA")
	require.NoError(t, c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, ""))

	c.HandleRemoteStream("BBBB", "stream-9")
	info, err := domain.EncodeMessage(domain.MsgUserInfo, domain.UserInfoPayload{PeerID: "BBBB", Name: "Bea"})
	require.NoError(t, err)
	c.HandleChannelData("BBBB", info)

	list := c.Participants()
	require.Len(t, list, 2)
	assert.Equal(t, "Bea", list[1].DisplayName)
	assert.Equal(t, "stream-9", list[1].StreamID)

	require.NoError(t, c.Leave(context.Background()))
}

func TestChannelClosedRemovesPeer(t *testing.T) {
	c, _, _ := newTestCoordinator("AAAA")
	require.NoError(t, c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, ""))

	c.HandlePairEstablishing("BBBB", newFakeDataChannel(), &fakeMediaSender{}, true)
	c.HandleChannelOpen("BBBB")
	c.HandleRemoteStream("BBBB", "stream-1")
	require.Len(t, c.Participants(), 2)

	c.HandleChannelClosed("BBBB")
	assert.Len(t, c.Participants(), 1)

	require.NoError(t, c.Leave(context.Background()))
}

func TestNetworkStatsClassifyQuality(t *testing.T) {
	c, _, _ := newTestCoordinator("AAAA")
	require.NoError(t, c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, ""))

	c.HandleRemoteStream("BBBB", "stream-1")
	c.HandleNetworkStats("BBBB", domain.NetworkStats{FractionLost: 0.1})

	list := c.Participants()
	require.Len(t, list, 2)
	assert.Equal(t, domain.QualityPoor, list[1].Quality)

	require.NoError(t, c.Leave(context.Background()))
}

func TestBlurToggleBroadcastsState(t *testing.T) {
	c, provider, _ := newTestCoordinator("AAAA")
	require.NoError(t, c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, ""))

	require.NoError(t, c.SetBlurred(context.Background(), true))
	assert.True(t, provider.blurred)

	for _, p := range c.Participants() {
		if p.IsLocal {
			assert.True(t, p.Blurred)
		}
	}

	require.NoError(t, c.Leave(context.Background()))
}

func TestEnsurePreviewIsIdempotent(t *testing.T) {
	c, provider, _ := newTestCoordinator("AAAA")

	require.NoError(t, c.EnsurePreview(context.Background()))
	assert.True(t, provider.Acquired())
	require.NoError(t, c.EnsurePreview(context.Background()))

	provider.Release()
	provider.failNext = domain.ErrMediaUnavailable
	assert.ErrorIs(t, c.EnsurePreview(context.Background()), domain.ErrMediaUnavailable)
}

func TestSendChatBroadcastsAndLogs(t *testing.T) {
	c, _, _ := newTestCoordinator("AAAA")
	require.NoError(t, c.Join(context.Background(), domain.Identity{DisplayName: "Me"}, ""))

	msg := c.SendChat("hello world")
	assert.Equal(t, "hello world", msg.Text)
	assert.Equal(t, domain.PeerID("AAAA"), msg.SenderID)
	assert.Equal(t, domain.OriginUser, msg.Origin)

	logged := c.chat.Messages()
	require.Len(t, logged, 1)
	assert.Equal(t, msg.ID, logged[0].ID)

	require.NoError(t, c.Leave(context.Background()))
}
