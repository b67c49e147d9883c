package domain

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// NetworkStats is what the transport learns from RTCP receiver reports
// for one peer pair.
type NetworkStats struct {
	FractionLost float64
	RTTMillis    int64
	Jitter       uint32
}
