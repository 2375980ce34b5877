package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the hub's prometheus collectors.
type Metrics struct {
	// Sessions is the number of registered usernames.
	Sessions prometheus.Gauge
	// Connections counts accepted connections, including ones that never joined.
	Connections prometheus.Counter
	// JoinsRejected counts joins refused because the username was taken.
	JoinsRejected prometheus.Counter
	// Relayed counts messages taken off the relay channel and fanned out.
	Relayed prometheus.Counter
	// Malformed counts relayed frames that could not be decoded.
	Malformed prometheus.Counter
	// DeliveryFailures counts recipients that could not be offered a message.
	DeliveryFailures prometheus.Counter
	// StorageFailures counts durable log errors by operation.
	StorageFailures *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "roost_sessions",
			Help: "Number of joined sessions",
		}),
		Connections: f.NewCounter(prometheus.CounterOpts{
			Name: "roost_connections_total",
			Help: "Total number of accepted connections",
		}),
		JoinsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "roost_joins_rejected_total",
			Help: "Total number of joins rejected because the username was taken",
		}),
		Relayed: f.NewCounter(prometheus.CounterOpts{
			Name: "roost_messages_relayed_total",
			Help: "Total number of messages relayed",
		}),
		Malformed: f.NewCounter(prometheus.CounterOpts{
			Name: "roost_messages_malformed_total",
			Help: "Total number of relayed frames that could not be decoded",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "roost_delivery_failures_total",
			Help: "Total number of failed deliveries to a single recipient",
		}),
		StorageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "roost_storage_failures_total",
			Help: "Total number of durable log failures",
		}, []string{"op"}),
	}
}
