package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/go-test/deep"
	"github.com/spf13/cobra"

	"vmhost/vmhostctl/client"
)

func TestMain(m *testing.M) {
	color.NoColor = true

	os.Exit(m.Run())
}

// withDaemon points newClient at a server answering every request with reply.
func withDaemon(t *testing.T, status int, replies map[string]string) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		reply, ok := replies[request.Method+" "+request.URL.Path]
		if !ok {
			writer.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(writer, `{"ok":false,"error":"not found"}`)

			return
		}

		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(status)
		_, _ = io.WriteString(writer, reply)
	}))

	saved := newClient
	newClient = func() *client.Client {
		return client.NewWithURL(srv.URL, srv.Client())
	}

	t.Cleanup(func() {
		newClient = saved

		srv.Close()
	})
}

func testCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	savedFormat := outputFormatString
	savedName := VMName
	savedID := RdpID

	t.Cleanup(func() {
		outputFormatString = savedFormat
		VMName = savedName
		RdpID = savedID
	})

	return cmd, &out
}

func TestParseOutputFormat(t *testing.T) {
	type testCase struct {
		name    string
		format  string
		want    outputFormat
		wantErr bool
	}

	tests := []testCase{
		{name: "txt", format: "txt", want: TXT},
		{name: "empty", format: "", want: TXT},
		{name: "json", format: "JSON", want: JSON},
		{name: "yaml", format: "yaml", want: YAML},
		{name: "yml", format: "yml", want: YAML},
		{name: "unknown", format: "xml", want: TXT, wantErr: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			got, err := parseOutputFormat(testCase.format)
			if (err != nil) != testCase.wantErr {
				t.Errorf("parseOutputFormat() error = %v, wantErr %v", err, testCase.wantErr)
			}

			if err != nil && !errors.Is(err, errVMUnknownFormat) {
				t.Errorf("unexpected error %v", err)
			}

			if got != testCase.want {
				t.Errorf("parseOutputFormat() got = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestColorVMStatus(t *testing.T) {
	for _, status := range []string{"preparing", "running", "paused", "stopping", "stopped", "error"} {
		got := colorVMStatus(status)
		if got != strings.ToUpper(status) {
			t.Errorf("colorVMStatus(%q) = %q", status, got)
		}
	}
}

const twoVMs = `{"ok":true,"vms":[` +
	`{"id":"1","name":"alpha","status":"running","pid":100,"cpu":2,"mem":2048},` +
	`{"id":"2","name":"beta","status":"stopped","cpu":1,"mem":512}]}`

func TestVMListTable(t *testing.T) {
	withDaemon(t, http.StatusOK, map[string]string{"GET /v1/vms": twoVMs})

	cmd, out := testCommand(t)
	outputFormatString = "txt"

	err := vmList(cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", out.String())
	}

	for _, want := range []string{"NAME", "STATUS", "PID"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("header %q missing %s", lines[0], want)
		}
	}

	if !strings.Contains(lines[1], "alpha") || !strings.Contains(lines[1], "RUNNING") ||
		!strings.Contains(lines[1], "2.0 GiB") {
		t.Errorf("unexpected row %q", lines[1])
	}

	if !strings.Contains(lines[2], "beta") || !strings.Contains(lines[2], "STOPPED") {
		t.Errorf("unexpected row %q", lines[2])
	}
}

func TestVMListJSON(t *testing.T) {
	withDaemon(t, http.StatusOK, map[string]string{"GET /v1/vms": twoVMs})

	cmd, out := testCommand(t)
	outputFormatString = "json"

	err := vmList(cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []client.VMInfo

	err = json.Unmarshal(out.Bytes(), &got)
	if err != nil {
		t.Fatalf("output is not json: %v", err)
	}

	want := []client.VMInfo{
		{ID: "1", Name: "alpha", Status: "running", Pid: 100, CPU: 2, Mem: 2048},
		{ID: "2", Name: "beta", Status: "stopped", CPU: 1, Mem: 512},
	}

	diff := deep.Equal(got, want)
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}
}

func TestVMGetYAML(t *testing.T) {
	withDaemon(t, http.StatusOK, map[string]string{
		"GET /v1/vms/alpha": `{"ok":true,"vm":{"id":"1","name":"alpha","status":"paused","pid":100}}`,
	})

	cmd, out := testCommand(t)
	outputFormatString = "yaml"
	VMName = "alpha"

	err := vmGet(cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"name: alpha", "status: paused", "pid: 100"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("yaml output missing %q:\n%s", want, out.String())
		}
	}
}

func TestVMCommandsNeedName(t *testing.T) {
	cmd, _ := testCommand(t)
	VMName = ""

	for _, run := range []func(*cobra.Command, []string) error{vmStart, vmGet, vmState, vmLogs} {
		err := run(cmd, nil)
		if !errors.Is(err, errVMEmptyName) {
			t.Errorf("expected empty name error, got %v", err)
		}
	}
}

func TestVMStop(t *testing.T) {
	withDaemon(t, http.StatusOK, map[string]string{"POST /v1/vms/alpha/stop": `{"ok":true}`})

	cmd, out := testCommand(t)
	VMName = "alpha"

	err := VMStopCmd.RunE(cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.String() != "VM alpha stopped\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestVMStopNotRunning(t *testing.T) {
	withDaemon(t, http.StatusConflict, map[string]string{
		"POST /v1/vms/alpha/stop": `{"ok":false,"error":"VM not running"}`,
	})

	cmd, _ := testCommand(t)
	VMName = "alpha"

	err := VMStopCmd.RunE(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "VM not running") {
		t.Errorf("expected daemon error, got %v", err)
	}
}

func TestStartOptions(t *testing.T) {
	cmd, _ := testCommand(t)
	cmd.Flags().Uint32Var(&MemoryMB, "mem", 0, "")
	cmd.Flags().StringVar(&DiskSize, "disk-size", "", "")
	cmd.Flags().StringVar(&Arch, "arch", "", "")

	savedIso := IsoPath

	t.Cleanup(func() {
		IsoPath = savedIso
		MemoryMB = 0
		DiskSize = ""
	})

	VMName = "alpha"
	IsoPath = "/isos/a.iso"

	err := cmd.Flags().Set("mem", "512")
	if err != nil {
		t.Fatal(err)
	}

	err = cmd.Flags().Set("disk-size", "8G")
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]interface{}{
		"name":       "alpha",
		"isoPath":    "/isos/a.iso",
		"memoryMB":   uint32(512),
		"diskSizeGB": "8G",
	}

	diff := deep.Equal(startOptions(cmd), want)
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}
}

func TestVMLogs(t *testing.T) {
	withDaemon(t, http.StatusOK, map[string]string{
		"GET /v1/vms/alpha/logs": `{"ok":true,"lines":["one","two"],"next":2}`,
	})

	cmd, out := testCommand(t)
	VMName = "alpha"

	err := vmLogs(cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.String() != "one\ntwo\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRdpConnectFailureShowsClient(t *testing.T) {
	withDaemon(t, http.StatusBadGateway, map[string]string{
		"POST /v1/rdp": `{"ok":false,"error":"connection refused by server",` +
			`"client":{"id":"c1","state":"error","lastError":"connection refused by server",` +
			`"config":{"host":"h","port":3389},"audioVolume":50}}`,
	})

	cmd, out := testCommand(t)

	saved := RdpConfig
	RdpConfig.Host = "h"

	t.Cleanup(func() {
		RdpConfig = saved
	})

	err := rdpConnect(cmd, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	for _, want := range []string{"c1", "ERROR", "connection refused by server"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRdpCommandsNeedInput(t *testing.T) {
	cmd, _ := testCommand(t)
	RdpID = ""

	err := rdpGet(cmd, nil)
	if !errors.Is(err, errRdpEmptyID) {
		t.Errorf("expected empty id error, got %v", err)
	}

	saved := RdpConfig
	RdpConfig.Host = ""

	t.Cleanup(func() {
		RdpConfig = saved
	})

	err = rdpConnect(cmd, nil)
	if !errors.Is(err, errRdpEmptyHost) {
		t.Errorf("expected empty host error, got %v", err)
	}
}

func TestRdpList(t *testing.T) {
	withDaemon(t, http.StatusOK, map[string]string{
		"GET /v1/rdp": `{"ok":true,"clients":[{"id":"c1","state":"connected","config":{"host":"h","port":3389}}]}`,
	})

	cmd, out := testCommand(t)
	outputFormatString = "txt"

	err := rdpList(cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out.String(), "CONNECTED") || !strings.Contains(out.String(), "3389") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestHostInfo(t *testing.T) {
	withDaemon(t, http.StatusOK, map[string]string{
		"GET /v1/host/version": `{"ok":true,"version":"v1 (qemu 8.2.1)"}`,
		"GET /v1/host/kvm":     `{"ok":true,"supported":true}`,
		"GET /v1/host/jit":     `{"ok":true,"supported":false}`,
	})

	cmd, out := testCommand(t)

	err := hostInfo(cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := map[string]string{}

	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		key, value, _ := strings.Cut(line, " ")
		rows[key] = strings.TrimSpace(value)
	}

	diff := deep.Equal(rows, map[string]string{"VERSION": "v1 (qemu 8.2.1)", "KVM": "yes", "JIT": "no"})
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}
}
