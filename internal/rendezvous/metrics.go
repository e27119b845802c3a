package rendezvous

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================================
//                              Prometheus 指标
// ============================================================================

var (
	metricRegistersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rendezvous_registers_received_total",
		Help: "Total number of REGISTER requests received.",
	})

	metricUnregistersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rendezvous_unregisters_received_total",
		Help: "Total number of UNREGISTER requests received.",
	})

	metricDiscoversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rendezvous_discovers_received_total",
		Help: "Total number of DISCOVER requests received.",
	})

	metricErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rendezvous_request_errors_total",
		Help: "Total number of requests answered with a non-OK status.",
	}, []string{"status"})

	metricDroppedAddrsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rendezvous_register_addrs_dropped_total",
		Help: "Total number of self-reported addresses dropped as unparseable.",
	})

	metricExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rendezvous_registrations_expired_total",
		Help: "Total number of registrations reclaimed after TTL expiry.",
	})

	metricRegistrations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rendezvous_registrations",
		Help: "Current number of live registrations.",
	})

	metricNamespaces = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rendezvous_namespaces",
		Help: "Current number of namespaces with at least one registration.",
	})

	metricActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rendezvous_active_streams",
		Help: "Current number of open protocol streams.",
	})
)
