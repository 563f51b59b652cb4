package vm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kontera-technologies/go-supervisor/v2"
	"golang.org/x/sys/unix"
)

type ProcessState int

const (
	ProcSpawned ProcessState = iota
	ProcRunning
	ProcStopped
	ProcError
)

func (s ProcessState) String() string {
	switch s {
	case ProcSpawned:
		return "spawned"
	case ProcRunning:
		return "running"
	case ProcStopped:
		return "stopped"
	case ProcError:
		return "error"
	default:
		return "unknown"
	}
}

type StopRequest int

const (
	// StopGraceful asks the guest to quit, over QMP when possible, otherwise with an interrupt.
	StopGraceful StopRequest = iota
	// StopForced kills the process outright.
	StopForced
)

// process is the handle to one backing process. Only the owning monitor reads its channels.
type process struct {
	proc      *supervisor.Process
	events    chan supervisor.Event
	qmpSocket string

	mu         sync.Mutex
	state      ProcessState
	pid        int
	exitStatus int
	exitMsg    string
	exited     bool

	// closed once the supervisor reports the pid
	startedC chan struct{}
}

func newProcess(id string, name string, args []string, dir string, qmpSocket string, grace time.Duration) *process {
	events := make(chan supervisor.Event, 16)

	proc := supervisor.NewProcess(supervisor.ProcessOptions{
		Name:                    name,
		Args:                    args,
		Dir:                     dir,
		Id:                      id,
		EventNotifier:           events,
		OutputParser:            supervisor.MakeBytesParser,
		ErrorParser:             supervisor.MakeBytesParser,
		MaxSpawns:               1,
		MaxSpawnAttempts:        1,
		MaxRespawnBackOff:       time.Second,
		MaxSpawnBackOff:         time.Second,
		MaxInterruptAttempts:    1,
		MaxTerminateAttempts:    1,
		IdleTimeout:             -1,
		TerminationGraceTimeout: grace,
	})

	return &process{
		proc:      proc,
		events:    events,
		qmpSocket: qmpSocket,
		state:     ProcSpawned,
		startedC:  make(chan struct{}),
	}
}

func (p *process) start() error {
	err := p.proc.Start()
	if err != nil {
		p.setState(ProcError)

		return fmt.Errorf("failed to start process: %w", err)
	}

	return nil
}

func (p *process) setState(state ProcessState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = state
}

func (p *process) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.pid
}

// started records the pid reported by the supervisor.
func (p *process) started(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == ProcSpawned {
		close(p.startedC)
	}

	p.pid = pid
	p.state = ProcRunning
}

// waitStarted waits for the pid, the exit of the owning instance, or the timeout. It reports
// whether a pid is known.
func (p *process) waitStarted(exited <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.startedC:
	case <-exited:
	case <-timer.C:
	}

	return p.Pid() > 0
}

// done records the exit. A zero exit status means a clean stop.
func (p *process) done(message string) int {
	exitStatus := parseStopMessage(message)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pid = 0
	p.exitStatus = exitStatus
	p.exitMsg = message
	p.exited = true

	if exitStatus == 0 {
		p.state = ProcStopped
	} else {
		p.state = ProcError
	}

	return exitStatus
}

// exit returns the recorded exit, if the supervisor reported one.
func (p *process) exit() (int, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exitStatus, p.exitMsg, p.exited
}

func (p *process) signal(sig unix.Signal) error {
	pid := p.Pid()
	if pid <= 0 {
		return fmt.Errorf("%w: process not running", ErrInvalidStateTransition)
	}

	err := unix.Kill(pid, sig)
	if err != nil {
		return fmt.Errorf("error sending %s to %d: %w", unix.SignalName(sig), pid, err)
	}

	return nil
}

func (p *process) suspend() error {
	return p.signal(unix.SIGSTOP)
}

func (p *process) resume() error {
	return p.signal(unix.SIGCONT)
}

// stop issues the request and returns without waiting for the exit.
func (p *process) stop(ctx context.Context, req StopRequest) error {
	switch req {
	case StopForced:
		return p.signal(unix.SIGKILL)
	case StopGraceful:
		// a stopped process can't handle anything but SIGCONT
		_ = p.resume()

		if p.qmpSocket != "" {
			err := qmpExecute(ctx, p.qmpSocket, "quit")
			if err == nil {
				return nil
			}
		}

		// interrupt, escalating to terminate after the grace timeout
		go func() {
			_ = p.proc.Stop()
		}()

		return nil
	default:
		return fmt.Errorf("%w: unknown stop request %d", ErrInvalidStateTransition, req)
	}
}

// parseStopMessage extracts the exit code from messages like "exit status 3". Anything else,
// such as a signal exit, is reported as -1.
func parseStopMessage(message string) int {
	words := strings.Fields(message)
	for idx := 0; idx+2 < len(words); idx++ {
		if words[idx] == "exit" && words[idx+1] == "status" {
			exitStatus, err := strconv.Atoi(words[idx+2])
			if err != nil {
				return -1
			}

			return exitStatus
		}
	}

	if len(words) > 2 {
		exitStatus, err := strconv.Atoi(strings.TrimSuffix(words[2], "."))
		if err == nil {
			return exitStatus
		}
	}

	return -1
}
