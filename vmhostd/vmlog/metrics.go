package vmlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	logLinesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vmhostd",
		Subsystem: "vmlog",
		Name:      "lines_total",
		Help:      "Number of VM log lines appended",
	}, []string{"vm"})

	logWriteErrorsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vmhostd",
		Subsystem: "vmlog",
		Name:      "write_errors_total",
		Help:      "Number of VM log lines that could not be written to disk",
	})
)
