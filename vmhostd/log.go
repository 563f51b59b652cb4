package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

var errNoHijack = errors.New("response writer does not support hijacking")

var _ http.ResponseWriter = &loggingResponseWriter{}

type loggingResponseWriter struct {
	http.ResponseWriter
	HTTPStatus   int
	ResponseSize int
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.HTTPStatus = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Flush() {
	z := w.ResponseWriter
	if f, ok := z.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the log stream upgrade to a websocket through the logger.
func (w *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errNoHijack
	}

	w.HTTPStatus = http.StatusSwitchingProtocols

	conn, buf, err := hijacker.Hijack()
	if err != nil {
		return nil, nil, fmt.Errorf("error hijacking connection: %w", err)
	}

	return conn, buf, nil
}

func (w *loggingResponseWriter) Write(bytes []byte) (int, error) {
	if w.HTTPStatus == 0 {
		w.HTTPStatus = http.StatusOK
	}

	w.ResponseSize += len(bytes)

	n, err := w.ResponseWriter.Write(bytes)
	if err != nil {
		return n, fmt.Errorf("error writing response: %w", err)
	}

	return n, nil
}

func HTTPLogger(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		interceptWriter := loggingResponseWriter{writer, 0, 0}
		host, _, _ := net.SplitHostPort(request.RemoteAddr)
		start := time.Now()

		handler.ServeHTTP(&interceptWriter, request)

		slog.Info("http request",
			"remote", host,
			"method", request.Method,
			"path", request.URL.Path,
			"proto", request.Proto,
			"status", interceptWriter.HTTPStatus,
			"size", interceptWriter.ResponseSize,
			"duration", time.Since(start),
			"agent", request.UserAgent(),
		)
	})
}
