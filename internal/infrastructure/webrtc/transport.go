package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
	"meshcall/internal/infrastructure/media"
	"meshcall/internal/infrastructure/signal"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const answerTimeout = 15 * time.Second

// Transport turns rendezvous peer ids into direct peer sessions: one
// pion peer connection per remote carrying the "mesh" data channel plus
// the selected outbound tracks.
type Transport struct {
	signaling *signal.Client
	events    ports.TransportEvents
	provider  ports.CapabilityProvider
	iceConfig webrtc.Configuration
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	localID domain.PeerID
	conns   map[domain.PeerID]*peerConn
	pending map[domain.PeerID]chan error
	closed  bool
}

type peerConn struct {
	pc   *webrtc.PeerConnection
	data *dataChannelAdapter
}

func NewTransport(
	signaling *signal.Client,
	provider ports.CapabilityProvider,
	iceServers []webrtc.ICEServer,
	events ports.TransportEvents,
	logger *zap.SugaredLogger,
) *Transport {
	t := &Transport{
		signaling: signaling,
		events:    events,
		provider:  provider,
		iceConfig: webrtc.Configuration{ICEServers: iceServers},
		logger:    logger,
		conns:     make(map[domain.PeerID]*peerConn),
		pending:   make(map[domain.PeerID]chan error),
	}
	signaling.SetHandler(t.handleSignal)
	signaling.OnStatus(events.HandleSignalingStatus)
	return t
}

// Open registers with the rendezvous service and records the assigned id.
func (t *Transport) Open(ctx context.Context, identity domain.Identity) (domain.PeerID, error) {
	id, err := t.signaling.Open(ctx, identity)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.localID = id
	t.mu.Unlock()
	return id, nil
}

func (t *Transport) Status() ports.TransportStatus { return t.signaling.Status() }

func (t *Transport) Retry(ctx context.Context) error { return t.signaling.Retry(ctx) }

// Connect dials remote: data channel plus the currently selected tracks,
// offer relayed through the rendezvous service. Any setup failure tears
// the half-open pair down completely.
func (t *Transport) Connect(ctx context.Context, remote domain.PeerID) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrSignalingUnavailable
	}
	if _, exists := t.conns[remote]; exists {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	pc, sender, err := t.newPeerConnection(remote)
	if err != nil {
		return err
	}

	dc, err := pc.CreateDataChannel("mesh", nil) // reliable ordered by default
	if err != nil {
		pc.Close()
		return fmt.Errorf("create data channel: %w", err)
	}
	data := newDataChannelAdapter(dc)
	t.wireDataChannel(remote, data, dc, pc)

	wait := make(chan error, 1)
	conn := &peerConn{pc: pc, data: data}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		pc.Close()
		return domain.ErrSignalingUnavailable
	}
	if _, exists := t.conns[remote]; exists {
		// An inbound offer was answered while we were setting up; that
		// pair carries the edge, so this dial yields.
		t.mu.Unlock()
		pc.Close()
		return nil
	}
	t.conns[remote] = conn
	t.pending[remote] = wait
	t.mu.Unlock()

	t.events.HandlePairEstablishing(remote, data, newMediaSenderAdapter(pc, sender), false)

	if err := t.sendOffer(remote, pc); err != nil {
		// A crossed inbound offer may have claimed the pair and closed
		// this pc mid-offer; the edge still comes up, through that pair.
		if t.yieldedTo(remote, conn) {
			return nil
		}
		t.teardown(remote, conn)
		return err
	}

	select {
	case <-ctx.Done():
		t.teardown(remote, conn)
		return fmt.Errorf("%w: %v", domain.ErrPeerUnreachable, ctx.Err())
	case <-time.After(answerTimeout):
		if t.yieldedTo(remote, conn) {
			return nil
		}
		t.teardown(remote, conn)
		return fmt.Errorf("%w: no answer from %s", domain.ErrPeerUnreachable, remote)
	case err := <-wait:
		if err != nil {
			t.teardown(remote, conn)
			return err
		}
	}
	return nil
}

func (t *Transport) sendOffer(remote domain.PeerID, pc *webrtc.PeerConnection) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	msg, err := signal.NewMessage(signal.TypeOffer, remote, signal.SDPPayload{SDP: offer.SDP})
	if err != nil {
		return err
	}
	return t.signaling.Send(msg)
}

// newPeerConnection builds a connection carrying audio plus the selected
// video track, or a placeholder when local media never initialized.
func (t *Transport) newPeerConnection(remote domain.PeerID) (*webrtc.PeerConnection, *webrtc.RTPSender, error) {
	pc, err := webrtc.NewPeerConnection(t.iceConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("new peer connection: %w", err)
	}

	if audio := t.provider.AudioTrack(); audio != nil {
		if local, ok := media.LocalTrackOf(audio); ok {
			if _, err := pc.AddTrack(local); err != nil {
				pc.Close()
				return nil, nil, fmt.Errorf("add audio track: %w", err)
			}
		}
	}

	video := t.provider.SelectedVideo()
	if video == nil {
		placeholder, perr := media.NewPlaceholderTrack("placeholder-" + string(remote))
		if perr != nil {
			pc.Close()
			return nil, nil, fmt.Errorf("placeholder track: %w", perr)
		}
		video = placeholder
	}
	local, ok := media.LocalTrackOf(video)
	if !ok {
		pc.Close()
		return nil, nil, fmt.Errorf("selected video is not a local track")
	}
	sender, err := pc.AddTrack(local)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("add video track: %w", err)
	}
	go t.readSenderReports(remote, sender)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		msg, err := signal.NewMessage(signal.TypeICECandidate, remote, signal.CandidatePayload{Candidate: raw})
		if err != nil {
			return
		}
		if err := t.signaling.Send(msg); err != nil {
			t.logger.Debugw("candidate relay failed", "remote", remote, "error", err)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		t.events.HandleRemoteStream(remote, track.StreamID())
		go t.drainRemoteTrack(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			t.closePeer(remote, pc)
		}
	})

	return pc, sender, nil
}

// drainRemoteTrack keeps the receiver's RTP queue empty; the rendering
// layer taps the decoded stream elsewhere.
func (t *Transport) drainRemoteTrack(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

// readSenderReports turns inbound RTCP receiver reports into the
// connection quality shown on the roster.
func (t *Transport) readSenderReports(remote domain.PeerID, sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range packets {
			rr, ok := pkt.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			for _, report := range rr.Reports {
				t.events.HandleNetworkStats(remote, domain.NetworkStats{
					FractionLost: float64(report.FractionLost) / 256.0,
					RTTMillis:    roundTripMillis(report, time.Now()),
					Jitter:       report.Jitter,
				})
			}
		}
	}
}

// roundTripMillis computes the round trip from a receiver report: the
// current NTP timestamp minus the last-sender-report mark minus the
// remote's holding delay, all in 1/65536 second units per RFC 3550.
func roundTripMillis(report rtcp.ReceptionReport, now time.Time) int64 {
	if report.LastSenderReport == 0 {
		return 0
	}
	arrival := ntpMiddle32(now)
	rtt := arrival - report.LastSenderReport - report.Delay
	// A wrapped or skewed clock shows up as an implausibly huge value.
	if rtt > 1<<31 {
		return 0
	}
	return int64(rtt) * 1000 >> 16
}

// ntpMiddle32 is the middle 32 bits of the 64-bit NTP timestamp: low 16
// bits of the seconds, high 16 bits of the fraction.
func ntpMiddle32(t time.Time) uint32 {
	const ntpEpochOffset = 2208988800
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / 1000000000
	return uint32(secs<<16 | frac>>16)
}

func (t *Transport) wireDataChannel(remote domain.PeerID, adapter *dataChannelAdapter, dc *webrtc.DataChannel, pc *webrtc.PeerConnection) {
	adapter.set(dc)
	dc.OnOpen(func() {
		t.events.HandleChannelOpen(remote)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.events.HandleChannelData(remote, msg.Data)
	})
	dc.OnClose(func() {
		t.closePeer(remote, pc)
	})
}

// handleSignal is the single entry point for relayed rendezvous traffic.
func (t *Transport) handleSignal(msg signal.Message) {
	switch msg.Type {
	case signal.TypeOffer:
		t.handleOffer(msg)
	case signal.TypeAnswer:
		t.handleAnswer(msg)
	case signal.TypeICECandidate:
		t.handleCandidate(msg)
	case signal.TypeError:
		t.handleError(msg)
	default:
		t.logger.Debugw("unknown signal message", "type", msg.Type)
	}
}

// handleOffer answers an incoming call, always: with the selected track,
// or a placeholder when local media never initialized. When the offer
// crosses an in-flight dial to the same peer, exactly one of the two
// attempts survives on both ends.
func (t *Transport) handleOffer(msg signal.Message) {
	remote := msg.FromPeer
	var payload signal.SDPPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.logger.Warnw("bad offer payload", "remote", remote, "error", err)
		return
	}
	if !t.shouldAnswer(remote) {
		return
	}

	pc, sender, err := t.newPeerConnection(remote)
	if err != nil {
		t.logger.Errorw("answering peer connection failed", "remote", remote, "error", err)
		return
	}

	data := newDataChannelAdapter(nil)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		t.wireDataChannel(remote, data, dc, pc)
	})

	conn := &peerConn{pc: pc, data: data}
	if !t.claimInbound(remote, conn) {
		pc.Close()
		return
	}

	t.events.HandlePairEstablishing(remote, data, newMediaSenderAdapter(pc, sender), true)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: payload.SDP}); err != nil {
		t.logger.Warnw("set remote offer failed", "remote", remote, "error", err)
		t.teardown(remote, conn)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		t.teardown(remote, conn)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		t.teardown(remote, conn)
		return
	}
	reply, err := signal.NewMessage(signal.TypeAnswer, remote, signal.SDPPayload{SDP: answer.SDP})
	if err != nil {
		t.teardown(remote, conn)
		return
	}
	if err := t.signaling.Send(reply); err != nil {
		t.teardown(remote, conn)
	}
}

// shouldAnswer pre-screens an inbound offer: a duplicate for an
// established pair is dropped, and so is a glare offer our own dial
// outranks. The binding decision happens later in claimInbound.
func (t *Transport) shouldAnswer(remote domain.PeerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.conns[remote]; !exists {
		return true
	}
	_, dialing := t.pending[remote]
	return dialing && t.localID > remote
}

// claimInbound installs conn as the pair for remote. A crossed dial is
// resolved by the glare rule shared with the registry: the offer from
// the lexically smaller peer id wins on both ends. When the inbound
// offer wins, the local dial is cancelled quietly; its waiter resolves
// nil because the edge still comes up, through this pair.
func (t *Transport) claimInbound(remote domain.PeerID, conn *peerConn) bool {
	t.mu.Lock()
	existing, exists := t.conns[remote]
	if !exists {
		t.conns[remote] = conn
		t.mu.Unlock()
		return true
	}

	wait, dialing := t.pending[remote]
	if !dialing || t.localID < remote {
		t.mu.Unlock()
		return false
	}
	delete(t.pending, remote)
	t.conns[remote] = conn
	t.mu.Unlock()

	existing.pc.Close()
	wait <- nil
	return true
}

// yieldedTo reports whether an answered inbound offer replaced conn as
// the pair for remote.
func (t *Transport) yieldedTo(remote domain.PeerID, conn *peerConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.conns[remote]
	return ok && existing != conn
}

func (t *Transport) handleAnswer(msg signal.Message) {
	remote := msg.FromPeer
	var payload signal.SDPPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return
	}

	t.mu.Lock()
	conn := t.conns[remote]
	wait := t.pending[remote]
	delete(t.pending, remote)
	t.mu.Unlock()

	// An answer only ever resolves a pending dial; anything else is a
	// stray from an attempt that has since been replaced.
	if conn == nil || wait == nil {
		return
	}
	wait <- conn.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: payload.SDP})
}

func (t *Transport) handleCandidate(msg signal.Message) {
	var payload signal.CandidatePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return
	}
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload.Candidate, &candidate); err != nil {
		return
	}

	t.mu.Lock()
	conn := t.conns[msg.FromPeer]
	t.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.pc.AddICECandidate(candidate); err != nil {
		t.logger.Debugw("add ice candidate failed", "remote", msg.FromPeer, "error", err)
	}
}

// handleError resolves a pending connect whose target the rendezvous
// could not reach.
func (t *Transport) handleError(msg signal.Message) {
	var payload signal.ErrorPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return
	}
	if payload.TargetPeer == "" {
		t.logger.Warnw("signaling error", "message", payload.Message)
		return
	}

	t.mu.Lock()
	wait := t.pending[payload.TargetPeer]
	delete(t.pending, payload.TargetPeer)
	t.mu.Unlock()

	if wait != nil {
		wait <- fmt.Errorf("%w: %s", domain.ErrPeerUnreachable, payload.Message)
	}
}

// closePeer drops local transport state and notifies the coordinator,
// which removes the pair and its participant. Scoped to pc so the death
// of a replaced connection never touches the pair that superseded it.
func (t *Transport) closePeer(remote domain.PeerID, pc *webrtc.PeerConnection) {
	t.mu.Lock()
	conn, ok := t.conns[remote]
	if !ok || conn.pc != pc {
		t.mu.Unlock()
		return
	}
	delete(t.conns, remote)
	wait := t.pending[remote]
	delete(t.pending, remote)
	t.mu.Unlock()

	conn.pc.Close()
	if wait != nil {
		wait <- fmt.Errorf("%w: connection lost during setup", domain.ErrPeerUnreachable)
	}
	t.events.HandleChannelClosed(remote)
}

// teardown removes conn after a setup failure and notifies the
// coordinator, which drops the announced pair. A no-op close when a
// newer pair already owns the slot.
func (t *Transport) teardown(remote domain.PeerID, conn *peerConn) {
	t.mu.Lock()
	owned := t.conns[remote] == conn
	if owned {
		delete(t.conns, remote)
		delete(t.pending, remote)
	}
	t.mu.Unlock()

	conn.pc.Close()
	if owned {
		t.events.HandleChannelClosed(remote)
	}
}

// Close releases the rendezvous identity and every peer connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := make([]*peerConn, 0, len(t.conns))
	for _, conn := range t.conns {
		conns = append(conns, conn)
	}
	t.conns = make(map[domain.PeerID]*peerConn)
	t.pending = make(map[domain.PeerID]chan error)
	t.mu.Unlock()

	for _, conn := range conns {
		conn.pc.Close()
	}
	return t.signaling.Close()
}
