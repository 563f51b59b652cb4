package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/gorilla/websocket"
)

type seenRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type recorder struct {
	mu   sync.Mutex
	seen []seenRequest
}

func (r *recorder) requests() []seenRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.seen)
}

func testServer(t *testing.T, status int, reply string, rec *recorder) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		body, _ := io.ReadAll(request.Body)

		rec.mu.Lock()
		rec.seen = append(rec.seen, seenRequest{request.Method, request.URL.Path, request.URL.RawQuery, string(body)})
		rec.mu.Unlock()

		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(status)
		_, _ = io.WriteString(writer, reply)
	}))
	t.Cleanup(srv.Close)

	return NewWithURL(srv.URL, srv.Client())
}

func TestClientRequests(t *testing.T) {
	type testCase struct {
		name     string
		call     func(ctx context.Context, c *Client) error
		wantSeen seenRequest
	}

	tests := []testCase{
		{
			name: "stop",
			call: func(ctx context.Context, c *Client) error {
				return c.StopVM(ctx, "vm1")
			},
			wantSeen: seenRequest{Method: http.MethodPost, Path: "/v1/vms/vm1/stop"},
		},
		{
			name: "pause",
			call: func(ctx context.Context, c *Client) error {
				return c.PauseVM(ctx, "vm1")
			},
			wantSeen: seenRequest{Method: http.MethodPost, Path: "/v1/vms/vm1/pause"},
		},
		{
			name: "resume",
			call: func(ctx context.Context, c *Client) error {
				return c.ResumeVM(ctx, "vm1")
			},
			wantSeen: seenRequest{Method: http.MethodPost, Path: "/v1/vms/vm1/resume"},
		},
		{
			name: "destroy",
			call: func(ctx context.Context, c *Client) error {
				return c.DestroyVM(ctx, "vm1")
			},
			wantSeen: seenRequest{Method: http.MethodDelete, Path: "/v1/vms/vm1"},
		},
		{
			name: "clearLogs",
			call: func(ctx context.Context, c *Client) error {
				return c.ClearLogs(ctx, "vm1")
			},
			wantSeen: seenRequest{Method: http.MethodDelete, Path: "/v1/vms/vm1/logs"},
		},
		{
			name: "logs",
			call: func(ctx context.Context, c *Client) error {
				_, _, err := c.GetLogs(ctx, "vm1", 7)

				return err
			},
			wantSeen: seenRequest{Method: http.MethodGet, Path: "/v1/vms/vm1/logs", Query: "from=7"},
		},
		{
			name: "rdpDisconnect",
			call: func(ctx context.Context, c *Client) error {
				return c.RdpDisconnect(ctx, "abc")
			},
			wantSeen: seenRequest{Method: http.MethodPost, Path: "/v1/rdp/abc/disconnect"},
		},
		{
			name: "rdpCloseAll",
			call: func(ctx context.Context, c *Client) error {
				return c.RdpCloseAll(ctx)
			},
			wantSeen: seenRequest{Method: http.MethodPost, Path: "/v1/rdp/close"},
		},
		{
			name: "rdpSetConfig",
			call: func(ctx context.Context, c *Client) error {
				return c.RdpSetConfig(ctx, RdpConfig{Host: "h", Port: 3389})
			},
			wantSeen: seenRequest{
				Method: http.MethodPut,
				Path:   "/v1/rdp/config",
				Body: `{"host":"h","port":3389,"enableAudio":false,"enableClipboard":false,` +
					`"enableFileSharing":false}`,
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			var rec recorder

			c := testServer(t, http.StatusOK, `{"ok":true}`, &rec)

			err := testCase.call(context.Background(), c)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			seen := rec.requests()
			if len(seen) != 1 {
				t.Fatalf("expected one request, got %d", len(seen))
			}

			diff := deep.Equal(seen[0], testCase.wantSeen)
			if diff != nil {
				t.Errorf("compare failed: %v", diff)
			}
		})
	}
}

func TestStartVM(t *testing.T) {
	var rec recorder

	c := testServer(t, http.StatusCreated,
		`{"ok":true,"vm":{"id":"x","name":"vm1","status":"running","pid":42,"cpu":2,"mem":1024}}`, &rec)

	info, err := c.StartVM(context.Background(), map[string]interface{}{"name": "vm1", "isoPath": "/a.iso"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := VMInfo{ID: "x", Name: "vm1", Status: "running", Pid: 42, CPU: 2, Mem: 1024}

	diff := deep.Equal(info, want)
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}

	var sent map[string]interface{}

	err = json.Unmarshal([]byte(rec.requests()[0].Body), &sent)
	if err != nil {
		t.Fatalf("bad request body: %v", err)
	}

	diff = deep.Equal(sent, map[string]interface{}{"name": "vm1", "isoPath": "/a.iso"})
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}
}

func TestErrorReply(t *testing.T) {
	var rec recorder

	c := testServer(t, http.StatusConflict,
		`{"ok":false,"error":"VM already running","vm":{"name":"vm1","status":"running"}}`, &rec)

	info, err := c.StartVM(context.Background(), map[string]interface{}{"name": "vm1"})
	if !errors.Is(err, errRequestFailed) {
		t.Fatalf("expected request failure, got %v", err)
	}

	if err.Error() != "request failed: VM already running" {
		t.Errorf("unexpected message %q", err.Error())
	}

	if info.Status != "running" {
		t.Errorf("expected vm info to be decoded on failure, got %+v", info)
	}
}

func TestInvalidReply(t *testing.T) {
	var rec recorder

	c := testServer(t, http.StatusBadGateway, `<html>bad gateway</html>`, &rec)

	_, err := c.ListVMs(context.Background())
	if !errors.Is(err, errRequestFailed) {
		t.Fatalf("expected request failure, got %v", err)
	}
}

func TestHostQueries(t *testing.T) {
	var rec recorder

	c := testServer(t, http.StatusOK, `{"ok":true,"version":"v1 (qemu 8.2.1)","supported":true}`, &rec)

	version, err := c.Version(context.Background())
	if err != nil || version != "v1 (qemu 8.2.1)" {
		t.Errorf("unexpected version %q, %v", version, err)
	}

	kvm, err := c.KvmSupported(context.Background())
	if err != nil || !kvm {
		t.Errorf("unexpected kvm %v, %v", kvm, err)
	}

	jit, err := c.JitSupported(context.Background())
	if err != nil || !jit {
		t.Errorf("unexpected jit %v, %v", jit, err)
	}

	seen := rec.requests()
	paths := make([]string, 0, len(seen))

	for _, s := range seen {
		paths = append(paths, s.Path)
	}

	diff := deep.Equal(paths, []string{"/v1/host/version", "/v1/host/kvm", "/v1/host/jit"})
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}
}

func TestUnreachable(t *testing.T) {
	c := New("127.0.0.1", 1, time.Second)

	_, err := c.ListVMs(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFollowLogs(t *testing.T) {
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/v1/vms/vm1/logs/stream" || request.URL.Query().Get("from") != "2" {
			http.NotFound(writer, request)

			return
		}

		wsConn, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			return
		}
		defer wsConn.Close()

		_ = wsConn.WriteJSON(streamMessage{Lines: []string{"a", "b"}, Next: 4})
		_ = wsConn.WriteJSON(streamMessage{Lines: []string{"c"}, Next: 5})
		_ = wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	c := NewWithURL(srv.URL, nil)

	var got []string

	err := c.FollowLogs(context.Background(), "vm1", 2, func(line string) {
		got = append(got, line)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	diff := deep.Equal(got, []string{"a", "b", "c"})
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}
}
