package ports

import (
	"context"

	"meshcall/internal/core/domain"
)

// MediaTrack is one replaceable audio or video source. Enablement gates
// frame delivery without renegotiating any connection.
type MediaTrack interface {
	ID() string
	Kind() domain.TrackKind
	SetEnabled(enabled bool)
	Enabled() bool
}

// DataChannel is the reliable ordered message channel to one remote peer.
type DataChannel interface {
	Send(payload []byte) error
	IsOpen() bool
	Close() error
}

// MediaSender pushes the currently selected outbound track to one remote
// peer without renegotiation.
type MediaSender interface {
	ReplaceTrack(track MediaTrack) error
	Close() error
}

type TransportStatus string

const (
	TransportConnected    TransportStatus = "connected"
	TransportDisconnected TransportStatus = "disconnected"
	TransportClosed       TransportStatus = "closed"
)

// TransportEvents is the single dispatch point the transport drives. The
// coordinator implements it; all roster and registry mutation funnels
// through these callbacks.
type TransportEvents interface {
	// HandlePairEstablishing hands ownership of a new channel pair to the
	// registry. inbound marks pairs answered rather than initiated.
	HandlePairEstablishing(remote domain.PeerID, data DataChannel, media MediaSender, inbound bool)
	HandleChannelOpen(remote domain.PeerID)
	HandleChannelData(remote domain.PeerID, payload []byte)
	HandleChannelClosed(remote domain.PeerID)
	HandleRemoteStream(remote domain.PeerID, streamID string)
	HandleNetworkStats(remote domain.PeerID, stats domain.NetworkStats)
	HandleSignalingStatus(status TransportStatus)
}

// PeerTransport opens one identity on the rendezvous service and turns
// peer ids into direct sessions.
type PeerTransport interface {
	// Open registers with the rendezvous service and returns the assigned
	// peer id. Fails with domain.ErrSignalingUnavailable when the service
	// is unreachable.
	Open(ctx context.Context, identity domain.Identity) (domain.PeerID, error)
	// Connect dials a remote peer, requesting a data channel plus a media
	// channel carrying the selected track.
	Connect(ctx context.Context, remote domain.PeerID) error
	Status() TransportStatus
	// Retry forces a signaling reconnect attempt outside the automatic
	// backoff schedule.
	Retry(ctx context.Context) error
	Close() error
}
