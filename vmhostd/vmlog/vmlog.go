// Package vmlog keeps the recent output of each VM in memory and appends it to a log file.
package vmlog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vmhost/vmhostd/util"
)

const (
	MaxLines   = 1000
	TimeFormat = "2006-01-02 15:04:05"
)

type buffer struct {
	mu    sync.Mutex
	lines *ring
}

// Sink holds one bounded buffer per VM name. The sink lock only guards the map, each
// buffer has its own lock so writers for different VMs don't contend.
type Sink struct {
	dir      string
	capacity int

	mu      sync.Mutex
	buffers map[string]*buffer

	now func() time.Time
}

func New(dir string) *Sink {
	return &Sink{
		dir:      dir,
		capacity: MaxLines,
		buffers:  make(map[string]*buffer),
		now:      time.Now,
	}
}

// Path returns the log file path for the named VM.
func (s *Sink) Path(name string) string {
	return filepath.Join(s.dir, "VM-"+name+".log")
}

func (s *Sink) get(name string) *buffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[name]
	if !ok {
		buf = &buffer{lines: newRing(s.capacity)}
		s.buffers[name] = buf
	}

	return buf
}

// Format prefixes message with a local timestamp.
func Format(at time.Time, message string) string {
	return "[" + at.Format(TimeFormat) + "] " + message
}

// Append formats message and stores it. File errors are logged and otherwise ignored.
func (s *Sink) Append(name string, message string) {
	line := Format(s.now(), message)

	buf := s.get(name)

	buf.mu.Lock()
	buf.lines.push(line)
	s.writeFile(name, line)
	buf.mu.Unlock()

	logLinesCounter.WithLabelValues(name).Inc()
}

func (s *Sink) writeFile(name string, line string) {
	if s.dir == "" {
		return
	}

	logPath := s.Path(name)

	err := util.EnsureParentDir(logPath)
	if err != nil {
		logWriteErrorsCounter.Inc()
		slog.Debug("failed creating vm log dir", "vm", name, "err", err)

		return
	}

	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logWriteErrorsCounter.Inc()
		slog.Debug("failed opening vm log", "vm", name, "err", err)

		return
	}

	_, err = logFile.WriteString(line + "\n")
	if err != nil {
		logWriteErrorsCounter.Inc()
		slog.Debug("failed writing vm log", "vm", name, "err", err)
	}

	_ = logFile.Close()
}

// Read returns every buffered line at or after from. A negative from returns the whole buffer.
func (s *Sink) Read(name string, from int) []string {
	s.mu.Lock()
	buf, ok := s.buffers[name]
	s.mu.Unlock()

	if !ok {
		return []string{}
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	return buf.lines.from(from)
}

// Len returns the number of buffered lines for name.
func (s *Sink) Len(name string) int {
	s.mu.Lock()
	buf, ok := s.buffers[name]
	s.mu.Unlock()

	if !ok {
		return 0
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	return buf.lines.count
}

// Clear drops the buffered lines for name and truncates its log file.
func (s *Sink) Clear(name string) error {
	s.mu.Lock()
	buf, ok := s.buffers[name]
	s.mu.Unlock()

	if ok {
		buf.mu.Lock()
		defer buf.mu.Unlock()

		buf.lines.reset()
	}

	if s.dir == "" {
		return nil
	}

	err := os.Truncate(s.Path(name), 0)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error clearing log file: %w", err)
	}

	return nil
}

// Forget removes the buffer for name, the log file is kept.
func (s *Sink) Forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buffers, name)
}
