package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
	"meshcall/pkg/utils"

	"go.uber.org/zap"
)

// TransportFactory builds a fresh peer transport wired to the given event
// sink. One transport lives per session, constructed at Joining and
// closed at Left.
type TransportFactory func(events ports.TransportEvents) ports.PeerTransport

// Coordinator drives the meeting lifecycle and owns every session-scoped
// component: registry, membership, presence, transport. All mutation of
// shared session state funnels through its dispatch methods.
type Coordinator struct {
	media        ports.CapabilityProvider
	chat         *ChatService
	quality      *QualityService
	newTransport TransportFactory
	logger       *zap.SugaredLogger

	mu         sync.Mutex
	state      domain.MeetingState
	identity   domain.Identity
	roster     *Roster
	registry   *Registry
	membership *Membership
	presence   *Presence
	transport  ports.PeerTransport

	reactionTTL   time.Duration
	sweepInterval time.Duration

	notices chan string
}

func NewCoordinator(
	media ports.CapabilityProvider,
	chat *ChatService,
	quality *QualityService,
	newTransport TransportFactory,
	logger *zap.SugaredLogger,
) *Coordinator {
	c := &Coordinator{
		media:        media,
		chat:         chat,
		quality:      quality,
		newTransport: newTransport,
		logger:       logger,
		state:        domain.StateLobby,
		notices:      make(chan string, 16),
	}
	c.buildSession()
	return c
}

// buildSession constructs fresh session-scoped components. Caller holds
// no lock during NewCoordinator; Join calls it under c.mu.
func (c *Coordinator) buildSession() {
	c.roster = NewRoster()
	c.registry = NewRegistry(c.logger)
	c.presence = NewPresence(c.registry, c.roster, c.logger)
	c.presence.SetTimings(c.reactionTTL, c.sweepInterval)
	c.membership = NewMembership(c.registry, c.roster, c.chat, c.localInfo, c.connectAsync, c.logger)
}

// SetReactionTimings overrides reaction expiry timings for this
// coordinator and every session it builds. Zero values keep defaults.
func (c *Coordinator) SetReactionTimings(ttl, sweep time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactionTTL = ttl
	c.sweepInterval = sweep
	c.presence.SetTimings(ttl, sweep)
}

func (c *Coordinator) State() domain.MeetingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notices delivers at most one lightweight, auto-dismissing message per
// absorbed failure. The channel never blocks a sender.
func (c *Coordinator) Notices() <-chan string { return c.notices }

func (c *Coordinator) notify(msg string) {
	select {
	case c.notices <- msg:
	default:
	}
}

func (c *Coordinator) setState(to domain.MeetingState) error {
	if !domain.CanTransition(c.state, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.state, to)
	}
	c.logger.Infow("meeting state changed", "from", c.state, "to", to)
	c.state = to
	return nil
}

// EnsurePreview lazily acquires local media for the lobby preview.
// Idempotent; deliberately not coupled to the leave transition so the
// camera is not reopened before the user asks for it.
func (c *Coordinator) EnsurePreview(ctx context.Context) error {
	if c.media.Acquired() {
		return nil
	}
	if err := c.media.Acquire(ctx); err != nil {
		return fmt.Errorf("lobby preview: %w", err)
	}
	return nil
}

// Join runs Lobby -> Joining -> InMeeting. host is the originator's
// rendezvous id from the join link; empty means this peer originates the
// session. InMeeting fires once the local peer id is assigned, whether or
// not any remote has connected.
func (c *Coordinator) Join(ctx context.Context, identity domain.Identity, host domain.PeerID) error {
	c.mu.Lock()
	if identity.DisplayName == "" {
		c.mu.Unlock()
		return domain.ErrDisplayNameRequired
	}
	if err := c.setState(domain.StateJoining); err != nil {
		c.mu.Unlock()
		return err
	}
	identity.IsOriginator = host == ""
	identity.PeerID = ""
	c.identity = identity
	c.buildSession()
	c.roster.PutLocal(identity)
	c.media.OnVideoSelected(c.registry.ReplaceOutboundTrack)
	transport := c.newTransport(c)
	c.transport = transport
	c.mu.Unlock()

	if err := c.media.Acquire(ctx); err != nil {
		c.abortJoin()
		return fmt.Errorf("acquire local media: %w", err)
	}

	assigned, err := transport.Open(ctx, identity)
	if err != nil {
		c.abortJoin()
		return fmt.Errorf("open rendezvous identity: %w", err)
	}

	c.mu.Lock()
	c.identity.PeerID = assigned
	c.registry.SetLocalID(assigned)
	c.roster.Rekey(domain.PlaceholderPeerID, assigned)
	if err := c.setState(domain.StateInMeeting); err != nil {
		c.mu.Unlock()
		c.abortJoin()
		return err
	}
	presence := c.presence
	c.mu.Unlock()

	presence.StartSweep(context.Background())

	if host != "" {
		if err := transport.Connect(ctx, host); err != nil {
			// Terminal for this attempt only; the user stays in the
			// meeting with an empty roster and can retry from a new link.
			c.logger.Warnw("host unreachable", "host", host, "error", err)
			c.notify(fmt.Sprintf("could not reach meeting %s", host))
		}
	}
	return nil
}

// abortJoin releases everything a failed Join touched and returns to
// Lobby through the terminal Left state.
func (c *Coordinator) abortJoin() {
	c.mu.Lock()
	transport := c.transport
	c.transport = nil
	registry := c.registry
	presence := c.presence
	_ = c.setState(domain.StateLeft)
	c.mu.Unlock()

	presence.StopSweep()
	registry.CloseAll()
	if transport != nil {
		transport.Close()
	}

	c.mu.Lock()
	c.roster.Clear()
	_ = c.setState(domain.StateLobby)
	c.mu.Unlock()
}

// Leave runs InMeeting -> Left -> Lobby: every pair closed, local tracks
// stopped, chat and roster cleared, rendezvous identity released. Local
// media is reacquired lazily on the next preview, not here.
func (c *Coordinator) Leave(ctx context.Context) error {
	c.mu.Lock()
	if err := c.setState(domain.StateLeft); err != nil {
		c.mu.Unlock()
		return err
	}
	transport := c.transport
	c.transport = nil
	registry := c.registry
	presence := c.presence
	c.mu.Unlock()

	presence.StopSweep()
	registry.CloseAll()
	c.media.Release()
	c.chat.Clear()

	if transport != nil {
		transport.Close()
	}

	c.mu.Lock()
	c.roster.Clear()
	c.identity.PeerID = ""
	err := c.setState(domain.StateLobby)
	c.mu.Unlock()
	return err
}

// Participants exposes the roster snapshot to the rendering layer.
func (c *Coordinator) Participants() []domain.Participant {
	c.mu.Lock()
	roster := c.roster
	c.mu.Unlock()
	return roster.Participants()
}

func (c *Coordinator) LocalID() domain.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity.PeerID
}

// localInfo snapshots the USER_INFO payload for introductions and toggles.
func (c *Coordinator) localInfo() domain.UserInfoPayload {
	c.mu.Lock()
	identity := c.identity
	roster := c.roster
	c.mu.Unlock()

	info := domain.UserInfoPayload{
		PeerID:    identity.PeerID,
		Name:      identity.DisplayName,
		AvatarRef: identity.AvatarRef,
	}
	for _, p := range roster.Participants() {
		if p.IsLocal {
			info.Muted = p.Muted
			info.CameraOff = p.CameraOff
			break
		}
	}
	return info
}

func (c *Coordinator) localState() domain.UpdateStatePayload {
	c.mu.Lock()
	identity := c.identity
	roster := c.roster
	c.mu.Unlock()

	state := domain.UpdateStatePayload{PeerID: identity.PeerID}
	for _, p := range roster.Participants() {
		if p.IsLocal {
			state.Muted = p.Muted
			state.CameraOff = p.CameraOff
			state.Blurred = p.Blurred
			break
		}
	}
	return state
}

// session snapshots the session-scoped components under the lock. They
// are replaced only on the Lobby -> Joining transition.
func (c *Coordinator) session() (*Registry, *Roster, *Membership, *Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry, c.roster, c.membership, c.presence
}

// SetMuted toggles the microphone. Audio enablement changes in place; no
// connection is renegotiated.
func (c *Coordinator) SetMuted(muted bool) {
	_, roster, _, presence := c.session()
	c.media.SetMuted(muted)
	roster.PatchLocal(func(p *domain.Participant) { p.Muted = muted })
	presence.BroadcastState(c.localState())
}

// SetCameraOff toggles the camera without touching the audio track.
func (c *Coordinator) SetCameraOff(off bool) {
	_, roster, _, presence := c.session()
	c.media.SetCameraOff(off)
	roster.PatchLocal(func(p *domain.Participant) { p.CameraOff = off })
	presence.BroadcastState(c.localState())
}

// SetBlurred swaps the raw camera track for the transformed one (or
// back). The capability provider fires exactly one track replacement.
func (c *Coordinator) SetBlurred(ctx context.Context, blurred bool) error {
	if err := c.media.SetBlurred(ctx, blurred); err != nil {
		return err
	}
	_, roster, _, presence := c.session()
	roster.PatchLocal(func(p *domain.Participant) { p.Blurred = blurred })
	presence.BroadcastState(c.localState())
	return nil
}

// SendReaction appends the reaction locally and fans it out; the sweep
// expires it everywhere after the TTL.
func (c *Coordinator) SendReaction(emoji string) {
	_, _, _, presence := c.session()
	presence.SendReaction(c.LocalID(), emoji)
}

// SendChat appends a user message to the local log and fans it out.
func (c *Coordinator) SendChat(text string) domain.ChatMessage {
	c.mu.Lock()
	identity := c.identity
	registry := c.registry
	c.mu.Unlock()

	msg := domain.ChatMessage{
		ID:         utils.GenerateMessageID(),
		SenderID:   identity.PeerID,
		SenderName: identity.DisplayName,
		Text:       text,
		Timestamp:  time.Now(),
		Origin:     domain.OriginUser,
	}
	c.chat.Append(msg)

	payload := domain.ChatPayload{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		Timestamp:  msg.Timestamp,
	}
	if data, err := domain.EncodeMessage(domain.MsgChat, payload); err == nil {
		registry.Broadcast(data)
	}
	return msg
}

// SummarizeChat asks the assistant collaborator for a summary and fans
// the reply out as an assistant chat message.
func (c *Coordinator) SummarizeChat(ctx context.Context) domain.ChatMessage {
	msg := c.chat.Summarize(ctx)
	c.fanOutAssistant(msg)
	return msg
}

// AskAssistant forwards a question with chat history as context.
func (c *Coordinator) AskAssistant(ctx context.Context, query string) domain.ChatMessage {
	msg := c.chat.Ask(ctx, query)
	c.fanOutAssistant(msg)
	return msg
}

func (c *Coordinator) fanOutAssistant(msg domain.ChatMessage) {
	payload := domain.ChatPayload{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		Timestamp:  msg.Timestamp,
		IsAi:       true,
	}
	c.mu.Lock()
	registry := c.registry
	c.mu.Unlock()
	if data, err := domain.EncodeMessage(domain.MsgChat, payload); err == nil {
		registry.Broadcast(data)
	}
}

// RetrySignaling forces a reconnect attempt outside the automatic
// backoff schedule.
func (c *Coordinator) RetrySignaling(ctx context.Context) error {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return domain.ErrSignalingUnavailable
	}
	return transport.Retry(ctx)
}

// connectAsync dials a peer discovered through PEER_LIST without
// blocking the message handler.
func (c *Coordinator) connectAsync(remote domain.PeerID) {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := transport.Connect(ctx, remote); err != nil {
			c.logger.Warnw("mesh connect failed", "remote", remote, "error", err)
		}
	}()
}

// --- ports.TransportEvents ---

// HandlePairEstablishing hands the new channel pair to the registry,
// which resolves duplicates so exactly one pair survives per peer.
func (c *Coordinator) HandlePairEstablishing(remote domain.PeerID, data ports.DataChannel, media ports.MediaSender, inbound bool) {
	registry, _, _, _ := c.session()
	registry.Upsert(remote, data, media, inbound)
}

func (c *Coordinator) HandleChannelOpen(remote domain.PeerID) {
	_, _, membership, _ := c.session()
	membership.HandleChannelOpen(remote)
}

func (c *Coordinator) HandleChannelData(remote domain.PeerID, payload []byte) {
	_, _, membership, _ := c.session()
	membership.HandleData(remote, payload)
}

// HandleChannelClosed removes the pair and its participant. A remote
// leaving is not a user-visible error.
func (c *Coordinator) HandleChannelClosed(remote domain.PeerID) {
	registry, roster, _, _ := c.session()
	registry.Close(remote)
	roster.Remove(remote)
	c.logger.Infow("peer left", "remote", remote)
}

func (c *Coordinator) HandleRemoteStream(remote domain.PeerID, streamID string) {
	_, roster, _, _ := c.session()
	roster.MergeStream(remote, streamID)
}

func (c *Coordinator) HandleNetworkStats(remote domain.PeerID, stats domain.NetworkStats) {
	_, roster, _, _ := c.session()
	roster.SetQuality(remote, c.quality.Classify(stats))
}

func (c *Coordinator) HandleSignalingStatus(status ports.TransportStatus) {
	if status == ports.TransportDisconnected {
		c.notify("signaling connection lost, reconnecting")
	}
}
