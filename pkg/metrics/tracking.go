package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Tracking gathers gateway counters so operators can watch connection churn,
// ping throughput, and fan-out volume.
type Tracking struct {
	ActiveConnections prometheus.Gauge
	PingsTotal        *prometheus.CounterVec
	FanoutTotal       prometheus.Counter
	Subscriptions     prometheus.Gauge
}

// Ping result label values.
const (
	PingResultAccepted    = "accepted"
	PingResultRateLimited = "rate_limited"
	PingResultRejected    = "rejected"
	PingResultFlagged     = "flagged"
)

// NewTracking registers the tracking gateway metrics on the given registerer.
func NewTracking(reg prometheus.Registerer) *Tracking {
	m := &Tracking{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sealtrack",
			Subsystem: "tracking",
			Name:      "active_connections",
			Help:      "Number of live websocket connections on the tracking gateway.",
		}),
		PingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sealtrack",
			Subsystem: "tracking",
			Name:      "location_pings_total",
			Help:      "Location pings processed by the gateway, by result.",
		}, []string{"result"}),
		FanoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sealtrack",
			Subsystem: "tracking",
			Name:      "fanout_messages_total",
			Help:      "Location updates delivered to subscribed admin connections.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sealtrack",
			Subsystem: "tracking",
			Name:      "room_subscriptions",
			Help:      "Current number of admin subscriptions across task rooms.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.ActiveConnections, m.PingsTotal, m.FanoutTotal, m.Subscriptions)
	}
	return m
}
