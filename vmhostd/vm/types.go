package vm

import (
	"log/slog"
	"sync"
	"time"
)

type StatusType string

const (
	CREATED   StatusType = "created"
	PREPARING StatusType = "preparing"
	RUNNING   StatusType = "running"
	PAUSED    StatusType = "paused"
	STOPPING  StatusType = "stopping"
	STOPPED   StatusType = "stopped"
	ERROR     StatusType = "error"
)

// Live reports whether a VM in this state still owns a backing process.
func (s StatusType) Live() bool {
	switch s {
	case PREPARING, RUNNING, PAUSED, STOPPING:
		return true
	default:
		return false
	}
}

// Config describes one VM. It is fixed once an Instance is created from it.
type Config struct {
	Name        string
	IsoPath     string
	DiskSize    uint64 // bytes
	DiskFormat  string
	Mem         uint32 // MB
	CPU         uint16
	Arch        string
	Accel       string
	EfiFirmware string
	SharedDir   string
	RDPPort     uint16
}

// Paths are derived from the VM name, never supplied by callers.
type Paths struct {
	Dir     string
	Disk    string
	Config  string
	Status  string
	Log     string
	QMP     string
	QemuLog string
}

type Instance struct {
	ID      string
	Config  Config
	Paths   Paths
	Created time.Time

	mu         sync.Mutex
	status     StatusType
	pid        int
	lastError  string
	shouldStop bool
	finished   bool
	proc       *process
	recordID   string

	// serializes status file and record writes
	statusMu sync.Mutex

	// closed by the monitor once the backing process is gone
	exited chan struct{}
	// closed when the monitor goroutine returns
	monitorDone chan struct{}
	// closed to make the monitor give up on a process that never started
	abandon chan struct{}

	log *slog.Logger
}

// Info is a point in time copy of an instance's state.
type Info struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    StatusType `json:"status"`
	Pid       int        `json:"pid,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	CPU       uint16     `json:"cpu"`
	Mem       uint32     `json:"mem"`
	DiskPath  string     `json:"diskPath"`
	LogPath   string     `json:"logPath"`
	QMPPath   string     `json:"qmpPath"`
}

func (i *Instance) Status() StatusType {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.status
}

func (i *Instance) Pid() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.pid
}

func (i *Instance) LastError() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.lastError
}

func (i *Instance) Info() Info {
	i.mu.Lock()
	defer i.mu.Unlock()

	return Info{
		ID:        i.ID,
		Name:      i.Config.Name,
		Status:    i.status,
		Pid:       i.pid,
		LastError: i.lastError,
		CPU:       i.Config.CPU,
		Mem:       i.Config.Mem,
		DiskPath:  i.Paths.Disk,
		LogPath:   i.Paths.Log,
		QMPPath:   i.Paths.QMP,
	}
}

// ownsPid reports whether the instance pid is meaningful in this state. Paused counts as running.
func (s StatusType) ownsPid() bool {
	return s == PREPARING || s == RUNNING || s == PAUSED
}

// setStatus must be called with i.mu held.
func (i *Instance) setStatus(status StatusType) {
	i.status = status
	if !status.ownsPid() {
		i.pid = 0
	}
}
