package main

import (
	"net/http"
	"sync"
	"time"

	metrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
)

// the recorder registers collectors globally, so only one may exist
var httpMetrics = sync.OnceValue(func() *middleware.Middleware {
	mdlw := middleware.New(middleware.Config{
		Recorder: metrics.NewRecorder(metrics.Config{}),
	})

	return &mdlw
})

func newMetricsServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		Addr:              addr,
		Handler:           handler,
	}
}

// newAPIServer allows writes to run as long as the slowest stop.
func newAPIServer(addr string, handler http.Handler, maxWait time.Duration) *http.Server {
	return &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      maxWait + time.Minute,
		IdleTimeout:       60 * time.Second,
		Addr:              addr,
		Handler:           handler,
	}
}
