package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fragmentWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hamhibokka",
			Subsystem: "cache",
			Name:      "fragment_writes_total",
			Help:      "Fragment and replace writes by entity typename.",
		},
		[]string{"typename"},
	)

	evictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hamhibokka",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entities evicted by typename.",
		},
		[]string{"typename"},
	)

	tagInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hamhibokka",
			Subsystem: "cache",
			Name:      "tag_invalidations_total",
			Help:      "Query tag invalidations.",
		},
		[]string{"tag"},
	)
)
