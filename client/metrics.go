package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hamhibokka",
		Subsystem: "client",
		Name:      "operations_total",
		Help:      "Session operations run through the client by result.",
	},
	[]string{"op", "result"},
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(op, result).Inc()
}
