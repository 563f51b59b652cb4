package rdp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vmhostd",
		Subsystem: "rdp",
		Name:      "connect_attempts_total",
		Help:      "rdp connect attempts by result",
	},
	[]string{"result"},
)

var connectedGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "vmhostd",
		Subsystem: "rdp",
		Name:      "connected",
		Help:      "number of connected rdp clients",
	},
)
