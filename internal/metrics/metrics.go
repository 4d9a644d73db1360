// ABOUTME: Prometheus collectors shared by the handoff pipeline and transport
// ABOUTME: Counts routed, dropped, and fanned-out messages plus queue depth

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for the gateway.
type Metrics struct {
	// Inbound counts messages entering the pipeline, labeled by origin
	// (customer, agent, bot).
	Inbound *prometheus.CounterVec

	// Forwards counts messages forwarded by the router, labeled by
	// destination (bot, agent, customer).
	Forwards *prometheus.CounterVec

	// Dropped counts messages the router intentionally did not forward,
	// labeled by reason (waiting, unattached_agent, missing_agent_address).
	Dropped *prometheus.CounterVec

	// Handoffs counts lifecycle transitions, labeled by kind (waiting,
	// connected, watching, disconnected, expired).
	Handoffs *prometheus.CounterVec

	// Sessions tracks currently connected transport sessions by role.
	Sessions *prometheus.GaugeVec
}

// New registers and returns the collector bundle. waitingDepth, when
// non-nil, is polled for the number of customers currently waiting for an
// agent.
func New(reg prometheus.Registerer, waitingDepth func() float64) *Metrics {
	m := &Metrics{
		Inbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handoff_inbound_messages_total",
				Help: "Total messages entering the pipeline, by origin.",
			},
			[]string{"origin"},
		),
		Forwards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handoff_forwards_total",
				Help: "Messages forwarded by the router, by destination.",
			},
			[]string{"destination"},
		),
		Dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handoff_dropped_messages_total",
				Help: "Messages intentionally not forwarded, by reason.",
			},
			[]string{"reason"},
		),
		Handoffs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handoff_transitions_total",
				Help: "Conversation lifecycle transitions, by kind.",
			},
			[]string{"kind"},
		),
		Sessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "handoff_transport_sessions",
				Help: "Currently connected transport sessions, by role.",
			},
			[]string{"role"},
		),
	}

	reg.MustRegister(m.Inbound, m.Forwards, m.Dropped, m.Handoffs, m.Sessions)

	if waitingDepth != nil {
		depth := prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "handoff_waiting_customers",
				Help: "Customers currently waiting for an agent.",
			},
			waitingDepth,
		)
		reg.MustRegister(depth)
	}

	return m
}
