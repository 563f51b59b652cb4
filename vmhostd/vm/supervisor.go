package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	exec "golang.org/x/sys/execabs"
	"golang.org/x/sync/errgroup"

	"vmhost/vmhostd/disk"
	"vmhost/vmhostd/store"
	"vmhost/vmhostd/util"
	"vmhost/vmhostd/vmlog"
)

const (
	defaultMaxWait = 120 * time.Second
	forcedWait     = 10 * time.Second
	monitorWait    = 5 * time.Second
	startWait      = 2 * time.Second
	startMarker    = "VM启动"
)

// Recorder persists an informational copy of VM state. It is never read back to decide what runs.
type Recorder interface {
	Save(rec *store.VMRecord) error
	SetStatus(id string, status string, pid int) error
	Delete(name string) error
}

type Settings struct {
	StateDir string
	Logs     *vmlog.Sink
	Images   *disk.ImageService
	Records  Recorder
	// how long a graceful stop may take before the process is killed
	MaxWait time.Duration
	Logger  *slog.Logger
}

// Supervisor owns the registry of VM instances. The registry lock is only held while the map is
// read or changed, each instance has its own lock for state.
type Supervisor struct {
	stateDir string
	logs     *vmlog.Sink
	images   disk.ImageService
	records  Recorder
	maxWait  time.Duration
	logger   *slog.Logger

	mu  sync.Mutex
	vms map[string]*Instance

	monitors sync.WaitGroup
}

func New(settings Settings) *Supervisor {
	newSupervisor := &Supervisor{
		stateDir: settings.StateDir,
		logs:     settings.Logs,
		records:  settings.Records,
		maxWait:  settings.MaxWait,
		logger:   settings.Logger,
		vms:      make(map[string]*Instance),
	}

	if settings.Images != nil {
		newSupervisor.images = *settings.Images
	} else {
		newSupervisor.images = disk.NewImageService(nil)
	}

	if newSupervisor.logs == nil {
		newSupervisor.logs = vmlog.New("")
	}

	if newSupervisor.maxWait <= 0 {
		newSupervisor.maxWait = defaultMaxWait
	}

	if newSupervisor.logger == nil {
		newSupervisor.logger = slog.Default()
	}

	return newSupervisor
}

func (s *Supervisor) lookup(name string) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.vms[name]

	return inst, ok
}

// register adds a new instance for config in the PREPARING state, replacing any instance of the
// same name that has stopped. A live instance is left alone.
func (s *Supervisor) register(vmConfig Config) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.vms[vmConfig.Name]
	if ok && existing.Status().Live() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, vmConfig.Name)
	}

	inst := &Instance{
		ID:          uuid.NewString(),
		Config:      vmConfig,
		Paths:       PathsFor(s.stateDir, s.logs.Path(vmConfig.Name), vmConfig.Name),
		Created:     nowFunc(),
		status:      PREPARING,
		exited:      make(chan struct{}),
		monitorDone: make(chan struct{}),
		abandon:     make(chan struct{}),
		log:         s.logger.With("vm", vmConfig.Name),
	}

	s.vms[vmConfig.Name] = inst

	return inst, nil
}

// Start registers the VM, prepares its disk and launches the backing process. It returns
// once the monitor is running, not when the guest has booted.
func (s *Supervisor) Start(vmConfig Config) error {
	err := vmConfig.Validate()
	if err != nil {
		return err
	}

	inst, err := s.register(vmConfig)
	if err != nil {
		return err
	}

	inst.log.Info("starting vm", "id", inst.ID)

	err = util.EnsureDir(inst.Paths.Dir)
	if err == nil {
		err = util.EnsureParentDir(inst.Paths.Log)
	}

	if err != nil {
		return s.failStart(inst, fmt.Errorf("%w: %w", ErrIOFailure, err))
	}

	err = inst.writeConfigFile(CREATED)
	if err != nil {
		inst.log.Warn("failed writing config snapshot", "err", err)
	}

	s.saveRecord(inst)

	inst.mu.Lock()
	stopping := inst.shouldStop
	inst.mu.Unlock()

	if stopping {
		return s.abortStart(inst)
	}

	s.afterTransition(inst)

	s.logs.Append(inst.Config.Name, fmt.Sprintf("%s: %s (cpu=%d mem=%dMB arch=%s)",
		startMarker, inst.Config.Name, inst.Config.CPU, inst.Config.Mem, inst.Config.Arch))

	created, err := s.images.Ensure(inst.Paths.Disk, inst.Config.DiskSize, inst.Config.DiskFormat)
	if err != nil {
		return s.failStart(inst, fmt.Errorf("%w: %w", ErrIOFailure, err))
	}

	if created {
		s.logs.Append(inst.Config.Name, "created disk image "+inst.Paths.Disk)
	}

	cmdName, cmdArgs := inst.generateCommandLine()

	cmdPath, err := exec.LookPath(cmdName)
	if err != nil {
		return s.failStart(inst, fmt.Errorf("%w: %w: %s", ErrIOFailure, errVMBinaryNotFound, cmdName))
	}

	inst.log.Debug("vm command line", "cmd", cmdPath, "args", cmdArgs)
	s.logs.Append(inst.Config.Name, "Args: "+cmdPath+" "+strings.Join(cmdArgs, " "))

	// a stale socket from an earlier run would make qemu refuse to start
	_ = os.Remove(inst.Paths.QMP)

	proc := newProcess(inst.ID, cmdPath, cmdArgs, inst.Paths.Dir, inst.Paths.QMP, s.maxWait)

	inst.mu.Lock()
	if inst.shouldStop {
		inst.mu.Unlock()

		return s.abortStart(inst)
	}

	inst.proc = proc
	inst.setStatus(RUNNING)
	inst.mu.Unlock()
	s.afterTransition(inst)

	s.monitors.Add(1)

	go s.monitor(inst, proc)

	err = proc.start()
	if err != nil {
		close(inst.abandon)
		s.finishWith(inst, ERROR, err.Error())

		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return nil
}

func (s *Supervisor) failStart(inst *Instance, err error) error {
	inst.log.Error("failed starting vm", "err", err)
	s.logs.Append(inst.Config.Name, "start failed: "+err.Error())
	s.finishWith(inst, ERROR, err.Error())

	return err
}

func (s *Supervisor) abortStart(inst *Instance) error {
	s.finishWith(inst, STOPPED, "")

	return fmt.Errorf("%w: %s stopped while starting", ErrInvalidStateTransition, inst.Config.Name)
}

// finishWith sets the terminal state exactly once and releases anyone waiting for the exit.
func (s *Supervisor) finishWith(inst *Instance, status StatusType, lastError string) {
	inst.mu.Lock()
	if inst.finished {
		inst.mu.Unlock()

		return
	}

	inst.finished = true
	inst.setStatus(status)

	if lastError != "" {
		inst.lastError = lastError
	}

	inst.mu.Unlock()

	close(inst.exited)

	if inst.Paths.QMP != "" {
		_ = os.Remove(inst.Paths.QMP)
	}

	vmExitsCounter.WithLabelValues(string(status)).Inc()
	s.afterTransition(inst)
}

// afterTransition persists the state the instance holds now. Writers are serialized and read
// the state under the lock, so the last write always reflects the latest transition.
func (s *Supervisor) afterTransition(inst *Instance) {
	inst.statusMu.Lock()
	defer inst.statusMu.Unlock()

	inst.mu.Lock()
	status := inst.status
	pid := inst.pid
	inst.mu.Unlock()

	inst.writeStatusFile(status, pid)

	if s.records != nil && inst.recordID != "" {
		err := s.records.SetStatus(inst.recordID, string(status), pid)
		if err != nil {
			inst.log.Debug("failed recording status", "err", err)
		}
	}

	s.refreshMetrics()
}

func (s *Supervisor) saveRecord(inst *Instance) {
	if s.records == nil {
		return
	}

	rec := &store.VMRecord{
		Name:     inst.Config.Name,
		IsoPath:  inst.Config.IsoPath,
		DiskPath: inst.Paths.Disk,
		LogPath:  inst.Paths.Log,
		DiskSize: inst.Config.DiskSize,
		Mem:      inst.Config.Mem,
		CPU:      inst.Config.CPU,
		Status:   string(CREATED),
	}

	err := s.records.Save(rec)
	if err != nil {
		inst.log.Warn("failed saving vm record", "err", err)

		return
	}

	inst.recordID = rec.ID
}

// Stop asks the VM to shut down and waits for its process to exit. Unknown or already stopped
// VMs are a no-op. If the process outlives the supervisor's max wait it is killed.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	inst, ok := s.lookup(name)
	if !ok {
		return nil
	}

	inst.mu.Lock()

	switch inst.status {
	case CREATED, STOPPED, ERROR:
		inst.mu.Unlock()

		return nil
	case STOPPING:
		inst.mu.Unlock()

		return s.join(ctx, inst)
	case PREPARING, RUNNING, PAUSED:
	}

	inst.shouldStop = true
	inst.setStatus(STOPPING)
	proc := inst.proc
	inst.mu.Unlock()

	s.afterTransition(inst)
	inst.log.Info("stopping vm")
	s.logs.Append(name, "VM stopping")

	if proc == nil {
		// still preparing, Start will notice shouldStop
		return s.join(ctx, inst)
	}

	err := proc.stop(ctx, StopGraceful)
	if err != nil {
		inst.log.Warn("graceful stop request failed", "err", err)
	}

	select {
	case <-inst.exited:
		return s.join(ctx, inst)
	case <-time.After(s.maxWait):
		inst.log.Warn("vm did not stop in time, killing", "maxWait", s.maxWait)
		s.logs.Append(name, "VM did not stop in time, killing")
	case <-ctx.Done():
		return fmt.Errorf("error waiting for vm to stop: %w", ctx.Err())
	}

	err = proc.stop(ctx, StopForced)
	if err != nil {
		inst.log.Warn("forced stop failed", "err", err)
	}

	select {
	case <-inst.exited:
		return s.join(ctx, inst)
	case <-time.After(forcedWait):
		s.finishWith(inst, ERROR, errVMStopTimeout.Error())

		return errVMStopTimeout
	}
}

// join waits for the monitor to observe the exit and return.
func (s *Supervisor) join(ctx context.Context, inst *Instance) error {
	select {
	case <-inst.exited:
	case <-ctx.Done():
		return fmt.Errorf("error waiting for vm to stop: %w", ctx.Err())
	}

	inst.mu.Lock()
	proc := inst.proc
	inst.mu.Unlock()

	if proc == nil {
		return nil
	}

	select {
	case <-inst.monitorDone:
	case <-time.After(monitorWait):
		inst.log.Debug("monitor still draining after exit")
	}

	return nil
}

// Pause freezes the backing process. The guest is not told.
func (s *Supervisor) Pause(name string) error {
	return s.suspendResume(name, RUNNING, PAUSED, (*process).suspend)
}

func (s *Supervisor) Resume(name string) error {
	return s.suspendResume(name, PAUSED, RUNNING, (*process).resume)
}

func (s *Supervisor) suspendResume(name string, from StatusType, to StatusType, action func(*process) error) error {
	inst, ok := s.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	inst.mu.Lock()
	current := inst.status
	proc := inst.proc
	inst.mu.Unlock()

	if current != from || proc == nil {
		return fmt.Errorf("%w: %s is %s, want %s", ErrInvalidStateTransition, name, current, from)
	}

	// right after Start the process may not have reported its pid yet
	if !proc.waitStarted(inst.exited, startWait) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidStateTransition, name, errVMNotStarted)
	}

	inst.mu.Lock()

	if inst.status != from || inst.proc != proc {
		current = inst.status
		inst.mu.Unlock()

		return fmt.Errorf("%w: %s is %s, want %s", ErrInvalidStateTransition, name, current, from)
	}

	err := action(proc)
	if err != nil {
		inst.mu.Unlock()

		return fmt.Errorf("%w: %w", ErrInvalidStateTransition, err)
	}

	inst.setStatus(to)
	inst.mu.Unlock()

	s.afterTransition(inst)
	s.logs.Append(name, "VM "+string(to))

	return nil
}

// GetState returns ERROR and ErrNotFound for unknown names.
func (s *Supervisor) GetState(name string) (StatusType, error) {
	inst, ok := s.lookup(name)
	if !ok {
		return ERROR, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return inst.Status(), nil
}

func (s *Supervisor) Get(name string) (Info, error) {
	inst, ok := s.lookup(name)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return inst.Info(), nil
}

// GetLogs returns buffered output lines starting at index from.
func (s *Supervisor) GetLogs(name string, from int) []string {
	return s.logs.Read(name, from)
}

func (s *Supervisor) ClearLogs(name string) error {
	err := s.logs.Clear(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return nil
}

func (s *Supervisor) List() []Info {
	s.mu.Lock()
	instances := make([]*Instance, 0, len(s.vms))

	for _, inst := range s.vms {
		instances = append(instances, inst)
	}
	s.mu.Unlock()

	infos := make([]Info, 0, len(instances))
	for _, inst := range instances {
		infos = append(infos, inst.Info())
	}

	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })

	return infos
}

// Destroy stops the VM if needed and drops it from the registry. Its disk is kept.
func (s *Supervisor) Destroy(ctx context.Context, name string) error {
	err := s.Stop(ctx, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	inst, ok := s.vms[name]

	if ok && !inst.Status().Live() {
		delete(s.vms, name)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	s.logs.Forget(name)

	if s.records != nil {
		err = s.records.Delete(name)
		if err != nil {
			inst.log.Debug("failed deleting vm record", "err", err)
		}
	}

	s.refreshMetrics()

	return nil
}

// Shutdown stops every live VM in parallel and waits for all monitors to return.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	var names []string

	s.mu.Lock()
	for name, inst := range s.vms {
		if inst.Status().Live() {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	var group errgroup.Group

	for _, name := range names {
		group.Go(func() error {
			return s.Stop(ctx, name)
		})
	}

	err := group.Wait()

	done := make(chan struct{})

	go func() {
		s.monitors.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = fmt.Errorf("error waiting for monitors: %w", ctx.Err())
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("error shutting down vms", "err", err)
	}

	return err
}
