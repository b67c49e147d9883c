package services

import (
	"time"

	"meshcall/internal/core/domain"
)

// QualityService maps RTCP-derived network stats onto the three-level
// quality shown per participant.
type QualityService struct {
	goodLoss float64
	poorLoss float64
	goodRTT  time.Duration
	poorRTT  time.Duration
}

func NewQualityService() *QualityService {
	return &QualityService{
		goodLoss: 0.02,
		poorLoss: 0.08,
		goodRTT:  150 * time.Millisecond,
		poorRTT:  400 * time.Millisecond,
	}
}

// Classify rates one pair's stats. Loss dominates RTT: a lossy link is
// poor even when round trips are fast.
func (q *QualityService) Classify(stats domain.NetworkStats) domain.ConnectionQuality {
	rtt := time.Duration(stats.RTTMillis) * time.Millisecond

	if stats.FractionLost >= q.poorLoss || rtt >= q.poorRTT {
		return domain.QualityPoor
	}
	if stats.FractionLost >= q.goodLoss || rtt >= q.goodRTT {
		return domain.QualityGood
	}
	return domain.QualityExcellent
}
