package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exports rendezvous-side metrics.
type Collector struct {
	peersConnected  prometheus.Gauge
	meetingsActive  prometheus.Gauge
	meetingsCreated prometheus.Counter
	messagesRelayed *prometheus.CounterVec
}

func NewCollector() *Collector {
	return &Collector{
		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "meshcall_peers_connected",
			Help: "Peers currently registered with the rendezvous service",
		}),

		meetingsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "meshcall_meetings_active",
			Help: "Meetings with a live join code",
		}),

		meetingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meshcall_meetings_created_total",
			Help: "Total meetings created",
		}),

		messagesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcall_signal_messages_relayed_total",
			Help: "Signal messages relayed between peers",
		}, []string{"type"}),
	}
}

func (c *Collector) PeerRegistered() { c.peersConnected.Inc() }
func (c *Collector) PeerDropped()    { c.peersConnected.Dec() }

func (c *Collector) MeetingCreated() {
	c.meetingsCreated.Inc()
	c.meetingsActive.Inc()
}

func (c *Collector) MeetingEnded() { c.meetingsActive.Dec() }

func (c *Collector) MessageRelayed(msgType string) {
	c.messagesRelayed.WithLabelValues(msgType).Inc()
}
