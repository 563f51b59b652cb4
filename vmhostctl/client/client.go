package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var errRequestFailed = errors.New("request failed")

// Client talks to the vmhostd boundary API.
type Client struct {
	base       string
	httpClient *http.Client
}

func New(server string, port uint16, timeout time.Duration) *Client {
	return &Client{
		base:       "http://" + net.JoinHostPort(server, strconv.FormatUint(uint64(port), 10)),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewWithURL is for tests and proxies where the daemon is not on a plain host and port.
func NewWithURL(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{base: base, httpClient: httpClient}
}

type Result struct {
	OK    bool   `json:"ok"    yaml:"ok"`
	Error string `json:"error" yaml:"error,omitempty"`
}

type VMInfo struct {
	ID        string `json:"id"        yaml:"id"`
	Name      string `json:"name"      yaml:"name"`
	Status    string `json:"status"    yaml:"status"`
	Pid       int    `json:"pid"       yaml:"pid,omitempty"`
	LastError string `json:"lastError" yaml:"lastError,omitempty"`
	CPU       uint16 `json:"cpu"       yaml:"cpu"`
	Mem       uint32 `json:"mem"       yaml:"mem"`
	DiskPath  string `json:"diskPath"  yaml:"diskPath"`
	LogPath   string `json:"logPath"   yaml:"logPath"`
	QMPPath   string `json:"qmpPath"   yaml:"qmpPath"`
}

type Record struct {
	ID        string    `json:"ID"        yaml:"ID"`
	Name      string    `json:"Name"      yaml:"Name"`
	IsoPath   string    `json:"IsoPath"   yaml:"IsoPath"`
	DiskPath  string    `json:"DiskPath"  yaml:"DiskPath"`
	DiskSize  uint64    `json:"DiskSize"  yaml:"DiskSize"`
	Mem       uint32    `json:"Mem"       yaml:"Mem"`
	CPU       uint16    `json:"CPU"       yaml:"CPU"`
	Status    string    `json:"Status"    yaml:"Status"`
	Pid       int       `json:"Pid"       yaml:"Pid"`
	UpdatedAt time.Time `json:"UpdatedAt" yaml:"UpdatedAt"`
}

type RdpConfig struct {
	Host              string `json:"host"                   yaml:"host"`
	Port              int    `json:"port"                   yaml:"port"`
	Username          string `json:"username,omitempty"     yaml:"username,omitempty"`
	Password          string `json:"password,omitempty"     yaml:"password,omitempty"` //nolint:gosec
	Domain            string `json:"domain,omitempty"       yaml:"domain,omitempty"`
	Width             int    `json:"width,omitempty"        yaml:"width,omitempty"`
	Height            int    `json:"height,omitempty"       yaml:"height,omitempty"`
	ColorDepth        int    `json:"colorDepth,omitempty"   yaml:"colorDepth,omitempty"`
	EnableAudio       bool   `json:"enableAudio"            yaml:"enableAudio"`
	EnableClipboard   bool   `json:"enableClipboard"        yaml:"enableClipboard"`
	EnableFileSharing bool   `json:"enableFileSharing"      yaml:"enableFileSharing"`
	SharedFolder      string `json:"sharedFolder,omitempty" yaml:"sharedFolder,omitempty"`
}

type RdpClient struct {
	ID          string    `json:"id"          yaml:"id"`
	State       string    `json:"state"       yaml:"state"`
	LastError   string    `json:"lastError"   yaml:"lastError,omitempty"`
	Config      RdpConfig `json:"config"      yaml:"config"`
	AudioVolume int       `json:"audioVolume" yaml:"audioVolume"`
}

// do sends body as JSON and decodes the reply into out. A reply with ok false is returned as
// an error carrying the daemon's message, after out has been filled in.
func (c *Client) do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("error contacting daemon: %w", err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	var result Result

	err = json.Unmarshal(data, &result)
	if err != nil {
		return fmt.Errorf("%w: %s: invalid response: %w", errRequestFailed, response.Status, err)
	}

	if out != nil {
		err = json.Unmarshal(data, out)
		if err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}

	if !result.OK {
		return fmt.Errorf("%w: %s", errRequestFailed, result.Error)
	}

	return nil
}

func vmPath(name string, rest string) string {
	return "/v1/vms/" + url.PathEscape(name) + rest
}

// StartVM sends options as the start request. Keys follow the daemon's start options.
func (c *Client) StartVM(ctx context.Context, options map[string]interface{}) (VMInfo, error) {
	var reply struct {
		VM VMInfo `json:"vm"`
	}

	err := c.do(ctx, http.MethodPost, "/v1/vms", options, &reply)

	return reply.VM, err
}

func (c *Client) ListVMs(ctx context.Context) ([]VMInfo, error) {
	var reply struct {
		VMs []VMInfo `json:"vms"`
	}

	err := c.do(ctx, http.MethodGet, "/v1/vms", nil, &reply)

	return reply.VMs, err
}

func (c *Client) GetVM(ctx context.Context, name string) (VMInfo, error) {
	var reply struct {
		VM VMInfo `json:"vm"`
	}

	err := c.do(ctx, http.MethodGet, vmPath(name, ""), nil, &reply)

	return reply.VM, err
}

func (c *Client) StopVM(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, vmPath(name, "/stop"), nil, nil)
}

func (c *Client) PauseVM(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, vmPath(name, "/pause"), nil, nil)
}

func (c *Client) ResumeVM(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, vmPath(name, "/resume"), nil, nil)
}

func (c *Client) DestroyVM(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, vmPath(name, ""), nil, nil)
}

// GetLogs returns the buffered lines from index from and the index to ask for next.
func (c *Client) GetLogs(ctx context.Context, name string, from int) ([]string, int, error) {
	var reply struct {
		Lines []string `json:"lines"`
		Next  int      `json:"next"`
	}

	err := c.do(ctx, http.MethodGet, vmPath(name, "/logs?from="+strconv.Itoa(from)), nil, &reply)

	return reply.Lines, reply.Next, err
}

func (c *Client) ClearLogs(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, vmPath(name, "/logs"), nil, nil)
}

func (c *Client) Records(ctx context.Context) ([]Record, error) {
	var reply struct {
		Records []Record `json:"records"`
	}

	err := c.do(ctx, http.MethodGet, "/v1/records", nil, &reply)

	return reply.Records, err
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var reply struct {
		Version string `json:"version"`
	}

	err := c.do(ctx, http.MethodGet, "/v1/host/version", nil, &reply)

	return reply.Version, err
}

func (c *Client) supported(ctx context.Context, path string) (bool, error) {
	var reply struct {
		Supported bool `json:"supported"`
	}

	err := c.do(ctx, http.MethodGet, path, nil, &reply)

	return reply.Supported, err
}

func (c *Client) KvmSupported(ctx context.Context) (bool, error) {
	return c.supported(ctx, "/v1/host/kvm")
}

func (c *Client) JitSupported(ctx context.Context) (bool, error) {
	return c.supported(ctx, "/v1/host/jit")
}

// RdpConnect returns the client state even when the connect failed.
func (c *Client) RdpConnect(ctx context.Context, cfg RdpConfig) (RdpClient, error) {
	var reply struct {
		Client RdpClient `json:"client"`
	}

	err := c.do(ctx, http.MethodPost, "/v1/rdp", cfg, &reply)

	return reply.Client, err
}

func (c *Client) RdpList(ctx context.Context) ([]RdpClient, error) {
	var reply struct {
		Clients []RdpClient `json:"clients"`
	}

	err := c.do(ctx, http.MethodGet, "/v1/rdp", nil, &reply)

	return reply.Clients, err
}

func (c *Client) RdpGet(ctx context.Context, id string) (RdpClient, error) {
	var reply struct {
		Client RdpClient `json:"client"`
	}

	err := c.do(ctx, http.MethodGet, "/v1/rdp/"+url.PathEscape(id), nil, &reply)

	return reply.Client, err
}

func (c *Client) RdpDisconnect(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/rdp/"+url.PathEscape(id)+"/disconnect", nil, nil)
}

func (c *Client) RdpCloseAll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/rdp/close", nil, nil)
}

func (c *Client) RdpSetConfig(ctx context.Context, cfg RdpConfig) error {
	return c.do(ctx, http.MethodPut, "/v1/rdp/config", cfg, nil)
}

func (c *Client) RdpGetConfig(ctx context.Context) (RdpConfig, error) {
	var reply struct {
		Config RdpConfig `json:"config"`
	}

	err := c.do(ctx, http.MethodGet, "/v1/rdp/config", nil, &reply)

	return reply.Config, err
}
