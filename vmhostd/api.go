package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/slok/go-http-metrics/middleware"
	middlewarestd "github.com/slok/go-http-metrics/middleware/std"
	"github.com/spf13/cast"

	"vmhost/vmhostd/rdp"
	"vmhost/vmhostd/store"
	"vmhost/vmhostd/vm"
	"vmhost/vmhostd/vmlog"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type recordLister interface {
	List() ([]*store.VMRecord, error)
}

// api is the daemon's boundary: every operation answers with a plain JSON result.
type api struct {
	vms            *vm.Supervisor
	rdp            *rdp.Manager
	records        recordLister
	logs           *vmlog.Sink
	streamInterval time.Duration
}

type result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type vmResult struct {
	result
	VM *vm.Info `json:"vm,omitempty"`
}

type logsResult struct {
	result
	Lines []string `json:"lines"`
	Next  int      `json:"next"`
}

type rdpResult struct {
	result
	Client *rdp.Snapshot `json:"client,omitempty"`
}

// routes builds the API mux. With mdlw set every route but the log stream is instrumented.
func (a *api) routes(mdlw *middleware.Middleware) http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, handlerID string, handler http.HandlerFunc) {
		var wrapped http.Handler = handler
		if mdlw != nil {
			wrapped = middlewarestd.Handler(handlerID, *mdlw, handler)
		}

		mux.Handle(pattern, HTTPLogger(wrapped))
	}

	mux.HandleFunc("GET /healthz", healthCheck)

	handle("POST /v1/vms", "/v1/vms", a.startVM)
	handle("GET /v1/vms", "/v1/vms", a.listVMs)
	handle("GET /v1/vms/{name}", "/v1/vms/:name", a.getVM)
	handle("DELETE /v1/vms/{name}", "/v1/vms/:name", a.destroyVM)
	handle("POST /v1/vms/{name}/stop", "/v1/vms/:name/stop", a.stopVM)
	handle("POST /v1/vms/{name}/pause", "/v1/vms/:name/pause", a.pauseVM)
	handle("POST /v1/vms/{name}/resume", "/v1/vms/:name/resume", a.resumeVM)
	handle("GET /v1/vms/{name}/logs", "/v1/vms/:name/logs", a.getLogs)
	handle("DELETE /v1/vms/{name}/logs", "/v1/vms/:name/logs", a.clearLogs)
	mux.Handle("GET /v1/vms/{name}/logs/stream", HTTPLogger(http.HandlerFunc(a.streamLogs)))

	handle("GET /v1/records", "/v1/records", a.listRecords)

	handle("GET /v1/host/version", "/v1/host/version", a.hostVersion)
	handle("GET /v1/host/kvm", "/v1/host/kvm", a.hostKvm)
	handle("GET /v1/host/jit", "/v1/host/jit", a.hostJit)

	handle("POST /v1/rdp", "/v1/rdp", a.rdpConnect)
	handle("GET /v1/rdp", "/v1/rdp", a.rdpList)
	handle("GET /v1/rdp/config", "/v1/rdp/config", a.rdpGetConfig)
	handle("PUT /v1/rdp/config", "/v1/rdp/config", a.rdpSetConfig)
	handle("POST /v1/rdp/close", "/v1/rdp/close", a.rdpCloseAll)
	handle("GET /v1/rdp/{id}", "/v1/rdp/:id", a.rdpGet)
	handle("DELETE /v1/rdp/{id}", "/v1/rdp/:id", a.rdpRemove)
	handle("POST /v1/rdp/{id}/disconnect", "/v1/rdp/:id/disconnect", a.rdpDisconnect)
	handle("PUT /v1/rdp/{id}/resolution", "/v1/rdp/:id/resolution", a.rdpResolution)
	handle("PUT /v1/rdp/{id}/audio", "/v1/rdp/:id/audio", a.rdpAudio)
	handle("GET /v1/rdp/{id}/clipboard", "/v1/rdp/:id/clipboard", a.rdpGetClipboard)
	handle("PUT /v1/rdp/{id}/clipboard", "/v1/rdp/:id/clipboard", a.rdpSetClipboard)

	return mux
}

func healthCheck(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusNoContent)
}

func writeJSON(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)

	err := json.NewEncoder(writer).Encode(body)
	if err != nil {
		slog.Debug("error writing response", "err", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, vm.ErrInvalidConfig),
		errors.Is(err, rdp.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, vm.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vm.ErrAlreadyRunning),
		errors.Is(err, vm.ErrInvalidStateTransition),
		errors.Is(err, rdp.ErrAlreadyConnected),
		errors.Is(err, rdp.ErrConnectInProgress),
		errors.Is(err, rdp.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, rdp.ErrResolutionFailure),
		errors.Is(err, rdp.ErrConnectFailure),
		errors.Is(err, rdp.ErrNegotiationFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newResult(err error) result {
	if err != nil {
		return result{OK: false, Error: err.Error()}
	}

	return result{OK: true}
}

func writeResult(writer http.ResponseWriter, err error) {
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}

	writeJSON(writer, status, newResult(err))
}

func decodeBody(writer http.ResponseWriter, request *http.Request, into interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(writer, request.Body, maxBodyBytes))

	err := decoder.Decode(into)
	if err != nil {
		return fmt.Errorf("%w: invalid json: %w", errBadRequest, err)
	}

	return nil
}

func (a *api) startVM(writer http.ResponseWriter, request *http.Request) {
	var options map[string]interface{}

	err := decodeBody(writer, request, &options)
	if err == nil {
		var vmConfig vm.Config

		vmConfig, err = vm.DecodeOptions(options)
		if err == nil {
			err = a.vms.Start(vmConfig)
		}

		if err == nil || errors.Is(err, vm.ErrIOFailure) {
			// failed starts stay registered with their last error
			info, getErr := a.vms.Get(vmConfig.Name)
			if getErr == nil {
				status := http.StatusCreated
				if err != nil {
					status = statusFor(err)
				}

				writeJSON(writer, status, vmResult{result: newResult(err), VM: &info})

				return
			}
		}
	}

	writeResult(writer, err)
}

func (a *api) listVMs(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, struct {
		result
		VMs []vm.Info `json:"vms"`
	}{result{OK: true}, a.vms.List()})
}

func (a *api) getVM(writer http.ResponseWriter, request *http.Request) {
	info, err := a.vms.Get(request.PathValue("name"))
	if err != nil {
		writeResult(writer, err)

		return
	}

	writeJSON(writer, http.StatusOK, vmResult{result: result{OK: true}, VM: &info})
}

func (a *api) destroyVM(writer http.ResponseWriter, request *http.Request) {
	writeResult(writer, a.vms.Destroy(request.Context(), request.PathValue("name")))
}

func (a *api) stopVM(writer http.ResponseWriter, request *http.Request) {
	writeResult(writer, a.vms.Stop(request.Context(), request.PathValue("name")))
}

func (a *api) pauseVM(writer http.ResponseWriter, request *http.Request) {
	writeResult(writer, a.vms.Pause(request.PathValue("name")))
}

func (a *api) resumeVM(writer http.ResponseWriter, request *http.Request) {
	writeResult(writer, a.vms.Resume(request.PathValue("name")))
}

func fromParam(request *http.Request) (int, error) {
	raw := request.URL.Query().Get("from")
	if raw == "" {
		return 0, nil
	}

	from, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid from %q", errBadRequest, raw)
	}

	return from, nil
}

func (a *api) getLogs(writer http.ResponseWriter, request *http.Request) {
	from, err := fromParam(request)
	if err != nil {
		writeResult(writer, err)

		return
	}

	lines := a.vms.GetLogs(request.PathValue("name"), from)

	writeJSON(writer, http.StatusOK, logsResult{
		result: result{OK: true},
		Lines:  lines,
		Next:   max(from, 0) + len(lines),
	})
}

func (a *api) clearLogs(writer http.ResponseWriter, request *http.Request) {
	writeResult(writer, a.vms.ClearLogs(request.PathValue("name")))
}

func (a *api) listRecords(writer http.ResponseWriter, _ *http.Request) {
	records, err := a.records.List()
	if err != nil {
		writeResult(writer, err)

		return
	}

	writeJSON(writer, http.StatusOK, struct {
		result
		Records []*store.VMRecord `json:"records"`
	}{result{OK: true}, records})
}

func (a *api) hostVersion(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, struct {
		result
		Version string `json:"version"`
	}{result{OK: true}, vm.GetVersion()})
}

type supportedResult struct {
	result
	Supported bool `json:"supported"`
}

func (a *api) hostKvm(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, supportedResult{result{OK: true}, vm.IsKvmSupported()})
}

func (a *api) hostJit(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, supportedResult{result{OK: true}, vm.IsJitSupported()})
}

// rdpConnect creates a client and runs the connect to completion. Fields missing from the
// body come from the global config.
func (a *api) rdpConnect(writer http.ResponseWriter, request *http.Request) {
	cfg := a.rdp.GlobalConfig()

	err := decodeBody(writer, request, &cfg)
	if err != nil {
		writeResult(writer, err)

		return
	}

	client := a.rdp.Create()

	err = client.Connect(request.Context(), cfg)

	status := http.StatusCreated
	if err != nil {
		status = statusFor(err)
	}

	snapshot := client.Snapshot()
	writeJSON(writer, status, rdpResult{result: newResult(err), Client: &snapshot})
}

func (a *api) rdpList(writer http.ResponseWriter, _ *http.Request) {
	clients := a.rdp.Clients()
	snapshots := make([]rdp.Snapshot, 0, len(clients))

	for _, client := range clients {
		snapshots = append(snapshots, client.Snapshot())
	}

	writeJSON(writer, http.StatusOK, struct {
		result
		Clients []rdp.Snapshot `json:"clients"`
	}{result{OK: true}, snapshots})
}

func (a *api) rdpClient(writer http.ResponseWriter, request *http.Request) (*rdp.Client, bool) {
	client, err := a.rdp.Get(request.PathValue("id"))
	if err != nil {
		writeJSON(writer, http.StatusNotFound, newResult(err))

		return nil, false
	}

	return client, true
}

func (a *api) rdpGet(writer http.ResponseWriter, request *http.Request) {
	client, ok := a.rdpClient(writer, request)
	if !ok {
		return
	}

	snapshot := client.Snapshot()
	writeJSON(writer, http.StatusOK, rdpResult{result: result{OK: true}, Client: &snapshot})
}

func (a *api) rdpDisconnect(writer http.ResponseWriter, request *http.Request) {
	client, ok := a.rdpClient(writer, request)
	if !ok {
		return
	}

	writeResult(writer, client.Disconnect())
}

func (a *api) rdpRemove(writer http.ResponseWriter, request *http.Request) {
	_, ok := a.rdpClient(writer, request)
	if !ok {
		return
	}

	writeResult(writer, a.rdp.Remove(request.PathValue("id")))
}

func (a *api) rdpCloseAll(writer http.ResponseWriter, _ *http.Request) {
	writeResult(writer, a.rdp.CloseAll())
}

func (a *api) rdpGetConfig(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, struct {
		result
		Config rdp.Config `json:"config"`
	}{result{OK: true}, a.rdp.GlobalConfig().Redacted()})
}

func (a *api) rdpSetConfig(writer http.ResponseWriter, request *http.Request) {
	var cfg rdp.Config

	err := decodeBody(writer, request, &cfg)
	if err == nil {
		a.rdp.SetGlobalConfig(cfg)
	}

	writeResult(writer, err)
}

func (a *api) rdpResolution(writer http.ResponseWriter, request *http.Request) {
	client, ok := a.rdpClient(writer, request)
	if !ok {
		return
	}

	var body struct {
		Width      int `json:"width"`
		Height     int `json:"height"`
		ColorDepth int `json:"colorDepth"`
	}

	err := decodeBody(writer, request, &body)
	if err == nil {
		err = client.SetResolution(body.Width, body.Height)
	}

	if err == nil && body.ColorDepth != 0 {
		err = client.SetColorDepth(body.ColorDepth)
	}

	writeResult(writer, err)
}

func (a *api) rdpAudio(writer http.ResponseWriter, request *http.Request) {
	client, ok := a.rdpClient(writer, request)
	if !ok {
		return
	}

	var body struct {
		Enabled bool `json:"enabled"`
		Volume  *int `json:"volume"`
	}

	err := decodeBody(writer, request, &body)
	if err == nil {
		err = client.EnableAudio(body.Enabled)
	}

	if err == nil && body.Volume != nil {
		err = client.SetAudioVolume(*body.Volume)
	}

	writeResult(writer, err)
}

func (a *api) rdpGetClipboard(writer http.ResponseWriter, request *http.Request) {
	client, ok := a.rdpClient(writer, request)
	if !ok {
		return
	}

	writeJSON(writer, http.StatusOK, struct {
		result
		Text string `json:"text"`
	}{result{OK: true}, client.ClipboardText()})
}

func (a *api) rdpSetClipboard(writer http.ResponseWriter, request *http.Request) {
	client, ok := a.rdpClient(writer, request)
	if !ok {
		return
	}

	var body struct {
		Text string `json:"text"`
	}

	err := decodeBody(writer, request, &body)
	if err == nil {
		err = client.SetClipboardText(body.Text)
	}

	writeResult(writer, err)
}
