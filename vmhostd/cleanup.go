package main

import (
	"log/slog"
	"syscall"
	"time"

	"vmhost/vmhostd/store"
	"vmhost/vmhostd/util"
)

type recordCleaner interface {
	List() ([]*store.VMRecord, error)
	SetStatus(id string, status string, pid int) error
}

var (
	cleanupPoll = 10 * time.Millisecond
	killFunc    = syscall.Kill
)

// cleanupRecords deals with VMs a previous daemon run left behind. A record that does not say
// stopped or error gets its process, if still alive, terminated and is then marked stopped.
func cleanupRecords(records recordCleaner, maxWait time.Duration) {
	recs, err := records.List()
	if err != nil {
		slog.Error("error listing vm records", "err", err)

		return
	}

	for _, rec := range recs {
		if rec.Status == "stopped" || rec.Status == "error" {
			continue
		}

		slog.Debug("checking leftover VM", "name", rec.Name, "status", rec.Status, "pid", rec.Pid)

		if rec.Pid > 0 {
			alive, err := util.PidExists(rec.Pid)
			if err != nil {
				slog.Error("error checking VM", "name", rec.Name, "err", err)
			}

			if alive {
				slog.Warn("leftover VM process exists", "name", rec.Name, "pid", rec.Pid, "maxWait", maxWait)
				killLeftoverVM(rec.Pid, maxWait)
			}
		}

		err = records.SetStatus(rec.ID, "stopped", 0)
		if err != nil {
			slog.Error("error updating vm record", "name", rec.Name, "err", err)
		}
	}
}

func killLeftoverVM(pid int, maxWait time.Duration) {
	_ = killFunc(pid, syscall.SIGTERM)

	deadline := time.Now().Add(maxWait)

	for time.Now().Before(deadline) {
		alive, err := util.PidExists(pid)
		if err != nil {
			slog.Error("error checking VM", "pid", pid, "err", err)

			return
		}

		if !alive {
			return
		}

		time.Sleep(cleanupPoll)
	}

	slog.Error("leftover VM refused to die, killing", "pid", pid)

	_ = killFunc(pid, syscall.SIGKILL)
}
