package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kontera-technologies/go-supervisor/v2"
)

// outputLine converts one parsed output message to a log line. The parser has already split
// on newlines and dropped them.
func outputLine(msg *interface{}) string {
	if msg == nil {
		return ""
	}

	switch value := (*msg).(type) {
	case []byte:
		return strings.TrimRight(string(value), "\r")
	case string:
		return strings.TrimRight(value, "\r")
	default:
		return strings.TrimRight(fmt.Sprint(value), "\r")
	}
}

// monitor owns proc for its whole life: it pumps output into the log sink and records the
// exit. It returns once the supervisor library reports the process is done.
func (s *Supervisor) monitor(inst *Instance, proc *process) {
	defer s.monitors.Done()
	defer close(inst.monitorDone)

	name := inst.Config.Name
	stdout := proc.proc.Stdout()
	stderr := proc.proc.Stderr()
	done := proc.proc.DoneNotifier()

	for {
		select {
		case msg, ok := <-stdout:
			if !ok {
				stdout = nil

				continue
			}

			if line := outputLine(msg); line != "" {
				s.logs.Append(name, line)
			}
		case msg, ok := <-stderr:
			if !ok {
				stderr = nil

				continue
			}

			if line := outputLine(msg); line != "" {
				s.logs.Append(name, "stderr: "+line)
			}
		case event := <-proc.events:
			s.processEvent(inst, proc, event)
		case <-done:
			s.drainEvents(inst, proc)

			exitStatus, message, ok := proc.exit()
			if !ok {
				exitStatus, message = -1, "process supervision ended"
			}

			s.processDone(inst, exitStatus, message)
			inst.log.Debug("monitor done")

			return
		case <-inst.abandon:
			return
		}
	}
}

func (s *Supervisor) processEvent(inst *Instance, proc *process, event supervisor.Event) {
	switch event.Code {
	case "ProcessStart":
		pid := proc.proc.Pid()
		proc.started(pid)
		s.processStarted(inst, pid)
	case "ProcessDone", "ProcessCrashed":
		exitStatus := proc.done(event.Message)
		s.processDone(inst, exitStatus, event.Message)
	default:
		inst.log.Debug("process event", "code", event.Code, "message", event.Message)
	}
}

// drainEvents handles events still buffered when the done notification wins the select.
func (s *Supervisor) drainEvents(inst *Instance, proc *process) {
	for {
		select {
		case event := <-proc.events:
			s.processEvent(inst, proc, event)
		default:
			return
		}
	}
}

func (s *Supervisor) processStarted(inst *Instance, pid int) {
	inst.mu.Lock()

	if inst.status != RUNNING && inst.status != PREPARING {
		inst.mu.Unlock()

		return
	}

	inst.pid = pid
	inst.mu.Unlock()

	inst.log.Info("vm process started", "pid", pid)
	s.logs.Append(inst.Config.Name, "VM running, pid "+strconv.Itoa(pid))
	s.afterTransition(inst)
}

// processDone classifies the exit. A zero exit status ends STOPPED, as does a signal exit
// after a requested stop. Any other exit status is an error, requested or not.
func (s *Supervisor) processDone(inst *Instance, exitStatus int, message string) {
	inst.mu.Lock()
	requested := inst.shouldStop
	finished := inst.finished
	inst.mu.Unlock()

	if finished {
		return
	}

	if exitStatus == 0 || (requested && exitStatus == -1) {
		inst.log.Info("vm stopped", "exitStatus", exitStatus, "message", message)
		s.logs.Append(inst.Config.Name, "VM stopped")
		s.finishWith(inst, STOPPED, "")

		return
	}

	if requested {
		inst.log.Error("vm exited with error while stopping", "exitStatus", exitStatus, "message", message)
		s.logs.Append(inst.Config.Name, "VM exited with error while stopping: "+message)
	} else {
		inst.log.Error("vm exited unexpectedly", "exitStatus", exitStatus, "message", message)
		s.logs.Append(inst.Config.Name, "VM exited unexpectedly: "+message)
	}

	s.finishWith(inst, ERROR, "process exited: "+message)
}
