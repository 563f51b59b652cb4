package vm

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"

	"vmhost/vmhostd/config"
	"vmhost/vmhostd/store"
	"vmhost/vmhostd/vmhostdtest"
	"vmhost/vmhostd/vmlog"
)

func TestParseStopMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    int
	}{
		{name: "clean", message: "exit status 0", want: 0},
		{name: "failed", message: "exit status 3", want: 3},
		{name: "prefixed", message: "process exited: exit status 1", want: 1},
		{name: "signal", message: "signal: killed", want: -1},
		{name: "empty", message: "", want: -1},
		{name: "garbage", message: "exit status nope", want: -1},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			got := parseStopMessage(testCase.message)
			if got != testCase.want {
				t.Errorf("parseStopMessage(%q) = %d, want %d", testCase.message, got, testCase.want)
			}
		})
	}
}

func TestOutputLine(t *testing.T) {
	tests := []struct {
		name string
		msg  interface{}
		want string
	}{
		{name: "bytes", msg: []byte("fake qemu booting"), want: "fake qemu booting"},
		{name: "carriageReturn", msg: []byte("line one\r"), want: "line one"},
		{name: "string", msg: "from string", want: "from string"},
		{name: "empty", msg: []byte(""), want: ""},
		{name: "other", msg: 42, want: "42"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			msg := testCase.msg

			got := outputLine(&msg)
			if got != testCase.want {
				t.Errorf("outputLine() = %q, want %q", got, testCase.want)
			}
		})
	}

	if got := outputLine(nil); got != "" {
		t.Errorf("outputLine(nil) = %q", got)
	}
}

func TestProcessStateString(t *testing.T) {
	states := map[ProcessState]string{
		ProcSpawned:     "spawned",
		ProcRunning:     "running",
		ProcStopped:     "stopped",
		ProcError:       "error",
		ProcessState(9): "unknown",
	}

	for state, want := range states {
		if state.String() != want {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), want)
		}
	}
}

func TestProcessDoneState(t *testing.T) {
	proc := &process{startedC: make(chan struct{})}

	if _, _, ok := proc.exit(); ok {
		t.Fatalf("exit() reported before done")
	}

	if proc.waitStarted(nil, 10*time.Millisecond) {
		t.Fatalf("waitStarted() true before started")
	}

	proc.started(1234)

	if !proc.waitStarted(nil, time.Second) {
		t.Fatalf("waitStarted() false after started")
	}

	if proc.State() != ProcRunning || proc.Pid() != 1234 {
		t.Fatalf("after started state = %s pid = %d", proc.State(), proc.Pid())
	}

	if status := proc.done("exit status 0"); status != 0 || proc.State() != ProcStopped || proc.Pid() != 0 {
		t.Errorf("clean exit: status %d state %s pid %d", status, proc.State(), proc.Pid())
	}

	proc.started(1235)

	if status := proc.done("signal: killed"); status != -1 || proc.State() != ProcError {
		t.Errorf("signal exit: status %d state %s", status, proc.State())
	}

	if status, message, ok := proc.exit(); status != -1 || message != "signal: killed" || !ok {
		t.Errorf("exit() = %d %q %v", status, message, ok)
	}

	err := proc.suspend()
	if err == nil {
		t.Errorf("suspend() on exited process should fail")
	}
}

// fakeQMPServer answers the greeting, capabilities and one command on a unix socket.
func fakeQMPServer(t *testing.T, reply string) (string, <-chan string) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "qmp.sock")

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	commands := make(chan string, 4)

	go func() {
		defer listener.Close()

		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		_, _ = conn.Write([]byte(`{"QMP": {"version": {}, "capabilities": []}}` + "\n"))

		reader := bufio.NewReader(conn)

		for i := 0; i < 2; i++ {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}

			var cmd qmpCommand

			_ = json.Unmarshal(line, &cmd)
			commands <- cmd.Execute

			if cmd.Execute == "qmp_capabilities" {
				_, _ = conn.Write([]byte(`{"return": {}}` + "\n"))

				continue
			}

			_, _ = conn.Write([]byte(`{"event": "SHUTDOWN", "data": {}}` + "\n"))
			_, _ = conn.Write([]byte(reply + "\n"))
		}
	}()

	return socketPath, commands
}

func TestQMPExecute(t *testing.T) {
	socketPath, commands := fakeQMPServer(t, `{"return": {}}`)

	err := qmpExecute(context.Background(), socketPath, "quit")
	if err != nil {
		t.Fatalf("qmpExecute() error = %v", err)
	}

	got := []string{<-commands, <-commands}

	diff := deep.Equal(got, []string{"qmp_capabilities", "quit"})
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}
}

func TestQMPExecuteError(t *testing.T) {
	socketPath, _ := fakeQMPServer(t, `{"error": {"class": "GenericError", "desc": "nope"}}`)

	err := qmpExecute(context.Background(), socketPath, "quit")
	if err == nil {
		t.Fatal("qmpExecute() expected error")
	}
}

func TestQMPExecuteNoSocket(t *testing.T) {
	err := qmpExecute(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), "quit")
	if err == nil {
		t.Fatal("qmpExecute() expected error for missing socket")
	}
}

func TestParseQemuVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{name: "full", output: "QEMU emulator version 8.2.1 (Debian 1:8.2.1+ds-1)\nCopyright", want: "8.2.1"},
		{name: "short", output: "QEMU emulator version 7.2", want: "7.2.0"},
		{name: "garbage", output: "hello", wantErr: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			got, err := parseQemuVersion(testCase.output)
			if (err != nil) != testCase.wantErr {
				t.Fatalf("parseQemuVersion() error = %v, wantErr %v", err, testCase.wantErr)
			}

			if err == nil && got.String() != testCase.want {
				t.Errorf("parseQemuVersion() = %s, want %s", got, testCase.want)
			}
		})
	}
}

func TestGetVersion(t *testing.T) {
	setTestConfigDefaults(t)
	config.Config.Qemu.Binary = vmhostdtest.WriteFakeQemu(t, vmhostdtest.FakeQemuScript)

	got := GetVersion()
	if got != MainVersion+" (qemu 8.2.1)" {
		t.Errorf("GetVersion() = %q", got)
	}

	config.Config.Qemu.Binary = filepath.Join(t.TempDir(), "missing")

	if got := GetVersion(); got != MainVersion {
		t.Errorf("GetVersion() without binary = %q", got)
	}
}

func TestHostProbes(t *testing.T) {
	// results depend on the host, they only must not panic
	_ = IsKvmSupported()
	_ = IsJitSupported()
}

type fakeRecorder struct {
	mu       sync.Mutex
	saved    []string
	statuses []string
	deleted  []string
}

func (f *fakeRecorder) Save(rec *store.VMRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec.ID = "rec-" + rec.Name
	f.saved = append(f.saved, rec.Name)

	return nil
}

func (f *fakeRecorder) SetStatus(_ string, status string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.statuses) == 0 || f.statuses[len(f.statuses)-1] != status {
		f.statuses = append(f.statuses, status)
	}

	return nil
}

func (f *fakeRecorder) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, name)

	return nil
}

func TestSupervisorRecords(t *testing.T) {
	setTestConfigDefaults(t)
	config.Config.Qemu.Binary = vmhostdtest.WriteFakeQemu(t, vmhostdtest.FakeQemuScript)

	records := &fakeRecorder{}
	supervisor := New(Settings{
		StateDir: filepath.Join(t.TempDir(), "state"),
		Logs:     vmlog.New(""),
		Records:  records,
		MaxWait:  10 * time.Second,
	})

	cfg := scenarioConfig("vmrec")
	cfg.DiskSize = 1024 * 1024

	err := supervisor.Start(cfg)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "pid", 10*time.Second, func() bool {
		i, _ := supervisor.Get("vmrec")

		return i.Pid > 0
	})

	err = supervisor.Destroy(context.Background(), "vmrec")
	if err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	records.mu.Lock()
	defer records.mu.Unlock()

	diff := deep.Equal(records.statuses, []string{"preparing", "running", "stopping", "stopped"})
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}

	diff = deep.Equal(records.deleted, []string{"vmrec"})
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}
}
