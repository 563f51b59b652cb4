package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slok/go-http-metrics/middleware"
	"golang.org/x/sync/errgroup"

	"vmhost/vmhostd/config"
	"vmhost/vmhostd/rdp"
	"vmhost/vmhostd/store"
	"vmhost/vmhostd/util"
	"vmhost/vmhostd/vm"
	"vmhost/vmhostd/vmlog"
)

const shutdownGrace = 10 * time.Second

func writePidFile(path string) error {
	if path == "" {
		return nil
	}

	err := util.EnsureParentDir(path)
	if err != nil {
		return fmt.Errorf("error creating pid file dir: %w", err)
	}

	err = os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("error writing pid file: %w", err)
	}

	return nil
}

func serve(srv *http.Server) error {
	slog.Debug("serving", "addr", srv.Addr)

	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error serving %s: %w", srv.Addr, err)
	}

	return nil
}

// runDaemon wires the supervisor, rdp manager and API together and blocks until ctx is done,
// then stops every VM and session before returning.
func runDaemon(ctx context.Context) error {
	err := util.EnsureParentDir(config.Config.Log.Path)
	if err != nil {
		return fmt.Errorf("error creating log dir: %w", err)
	}

	logFile, err := setupLogging(config.Config.Log.Path, config.Config.Log.Level)
	if err != nil {
		return err
	}
	defer logFile.Close()

	vm.MainVersion = mainVersion

	slog.Info("starting daemon", "version", vm.GetVersion())
	vm.CheckBackingVersion()

	err = writePidFile(config.Config.Sys.PidFilePath)
	if err != nil {
		slog.Warn("failed writing pid file", "err", err)
	} else if config.Config.Sys.PidFilePath != "" {
		defer os.Remove(config.Config.Sys.PidFilePath)
	}

	records, err := store.Open(config.Config.DB.Path)
	if err != nil {
		slog.Error("failed opening db", "err", err)

		return err
	}
	defer records.Close()

	err = util.EnsureDir(config.Config.Disk.VM.Path.Log)
	if err != nil {
		return fmt.Errorf("error creating vm log dir: %w", err)
	}

	sink := vmlog.New(config.Config.Disk.VM.Path.Log)
	maxWait := time.Duration(config.Config.Qemu.MaxWait) * time.Second

	cleanupRecords(records, maxWait)

	supervisor := vm.New(vm.Settings{
		StateDir: config.Config.Disk.VM.Path.State,
		Logs:     sink,
		Records:  records,
		MaxWait:  maxWait,
	})

	rdpManager := rdp.NewManager(rdp.Options{Timeouts: rdp.TimeoutsFromConfig()})

	boundary := &api{vms: supervisor, rdp: rdpManager, records: records, logs: sink}

	var mdlw *middleware.Middleware
	if config.Config.Metrics.Enabled {
		mdlw = httpMetrics()
	}

	servers := []*http.Server{
		newAPIServer(
			net.JoinHostPort(config.Config.Network.API.IP, strconv.FormatUint(uint64(config.Config.Network.API.Port), 10)),
			boundary.routes(mdlw),
			maxWait,
		),
	}

	if config.Config.Metrics.Enabled {
		metricsAddr := net.JoinHostPort(config.Config.Metrics.Host, strconv.FormatUint(uint64(config.Config.Metrics.Port), 10))
		servers = append(servers, newMetricsServer(metricsAddr, promhttp.Handler()))
	}

	infoSignals := make(chan os.Signal, 1)
	signal.Notify(infoSignals, syscall.SIGUSR1)

	defer signal.Stop(infoSignals)

	group, groupCtx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		group.Go(func() error { return serve(srv) })
	}

	group.Go(func() error {
		for {
			select {
			case <-infoSignals:
				handleSigInfo(supervisor)
			case <-groupCtx.Done():
				return shutdown(supervisor, rdpManager, servers)
			}
		}
	})

	slog.Info("daemon started")

	err = group.Wait()
	if err != nil {
		slog.Error("daemon exiting with error", "err", err)

		return err
	}

	slog.Info("exiting normally")

	return nil
}

func shutdown(supervisor *vm.Supervisor, rdpManager *rdp.Manager, servers []*http.Server) error {
	slog.Info("shutting down")

	httpCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	for _, srv := range servers {
		err := srv.Shutdown(httpCtx)
		if err != nil {
			slog.Warn("error shutting down server", "addr", srv.Addr, "err", err)
		}
	}

	var errs []error

	err := rdpManager.CloseAll()
	if err != nil {
		errs = append(errs, err)
	}

	err = supervisor.Shutdown(context.Background())
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
