package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hamhibokka",
			Subsystem: "notify",
			Name:      "activations_total",
			Help:      "Dispatcher activation attempts by result.",
		},
		[]string{"result"},
	)

	envelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hamhibokka",
			Subsystem: "notify",
			Name:      "envelopes_total",
			Help:      "Envelopes routed by type and source.",
		},
		[]string{"type", "source"},
	)

	envelopesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hamhibokka",
			Subsystem: "notify",
			Name:      "envelopes_dropped_total",
			Help:      "Envelopes not routed by reason.",
		},
		[]string{"reason"},
	)

	dispatcherActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hamhibokka",
			Subsystem: "notify",
			Name:      "dispatcher_active",
			Help:      "1 while the dispatcher is subscribed to the provider.",
		},
	)
)
