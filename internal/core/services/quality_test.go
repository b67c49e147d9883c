package services

import (
	"testing"

	"meshcall/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestClassifyQuality(t *testing.T) {
	q := NewQualityService()

	tests := []struct {
		name  string
		stats domain.NetworkStats
		want  domain.ConnectionQuality
	}{
		{"clean link", domain.NetworkStats{FractionLost: 0.001, RTTMillis: 20}, domain.QualityExcellent},
		{"zero stats", domain.NetworkStats{}, domain.QualityExcellent},
		{"mild loss", domain.NetworkStats{FractionLost: 0.03, RTTMillis: 40}, domain.QualityGood},
		{"slow round trip", domain.NetworkStats{FractionLost: 0.0, RTTMillis: 200}, domain.QualityGood},
		{"heavy loss", domain.NetworkStats{FractionLost: 0.1, RTTMillis: 30}, domain.QualityPoor},
		{"dead slow", domain.NetworkStats{FractionLost: 0.0, RTTMillis: 500}, domain.QualityPoor},
		{"loss dominates fast rtt", domain.NetworkStats{FractionLost: 0.09, RTTMillis: 10}, domain.QualityPoor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, q.Classify(tt.stats))
		})
	}
}
