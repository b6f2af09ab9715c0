package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"grimm.is/repeater/internal/brand"
	"grimm.is/repeater/internal/config"
	"grimm.is/repeater/internal/ctlplane"
	"grimm.is/repeater/internal/health"
	"grimm.is/repeater/internal/i18n"
	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/metrics"
	"grimm.is/repeater/internal/network"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

const (
	shutdownTimeout = 30 * time.Second
	collectInterval = 15 * time.Second
)

// RunCtl runs the extender daemon with automatic restart on panic.
func RunCtl(configFile string) error {
	// Loop to restart on panic
	for {
		err := runCtlOnce(configFile)
		if err != nil && strings.HasPrefix(err.Error(), "PANIC:") {
			logging.Error("daemon crashed with panic", "error", err)
			logging.Info("restarting daemon in 1 second")
			time.Sleep(1 * time.Second)
			continue
		}
		return err
	}
}

// runCtlOnce contains the actual execution logic
func runCtlOnce(configFile string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PANIC: %v", r)
			logging.Error("panic in daemon", "panic", r)
		}
	}()

	cfg, err := config.LoadAndValidate(configFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := newDaemonLogger(cfg)
	logging.SetDefault(logger)

	if err := os.MkdirAll(brand.GetStateDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidCleanup, err := setupPIDFile()
	if err != nil {
		return err
	}
	defer pidCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Crash loop protection: a daemon that keeps dying comes up with the
	// extender held down until an operator runs `up`.
	tracker := health.NewCrashTracker(brand.GetStateDir(), nil)
	heldDown, err := tracker.CheckCrashLoop()
	if err != nil {
		logger.Warn("crash tracker unavailable", "error", err)
	}
	tracker.StartStabilityTimer(ctx)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	d, err := newDaemon(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	if err := d.orch.CleanupStale(ctx); err != nil {
		logger.Warn("stale cleanup finished with errors", "error", err)
	}

	// Control plane
	server := ctlplane.NewServer(cfg, configFile, d.orch, logger)
	server.SetStateStore(store)
	server.SetMetrics(metrics.Get())
	server.SetConfigLoader(func() (*config.Config, error) {
		return config.LoadAndValidate(configFile)
	})
	if d.link != nil {
		server.SetScanner(d.link)
	}
	if d.ap != nil {
		server.SetClientLister(d.ap)
	}
	server.SetHeldDown(heldDown)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Close()

	// Metrics and health
	collector := metrics.NewCollector(logger, collectInterval, d.interfaces)
	go collector.Start()
	defer collector.Stop()

	checker := d.healthChecker()
	var httpServer *http.Server
	if cfg.Metrics.Listen != "" {
		httpServer = startHTTP(cfg.Metrics.Listen, checker, logger)
	}

	// Link events on watched interfaces trigger an early reconcile pass.
	monitor := network.NewInterfaceMonitor(logger)
	monitor.SetInterfaces(d.watched()...)
	monitor.OnChange(func(ch network.InterfaceChange) {
		switch ch.Type {
		case network.ChangeLinkDown, network.ChangeLinkDel, network.ChangeAddrDel:
			logger.Info("watched interface changed", "iface", ch.Interface, "change", ch.Type)
			go d.orch.Tick(ctx)
		}
	})
	if err := monitor.Start(ctx); err != nil {
		logger.Warn("interface monitor unavailable", "error", err)
	}
	defer monitor.Stop()

	if heldDown {
		logger.Error("crash loop detected, extender held down",
			"crashes", tracker.Crashes(),
			"hint", "run '"+brand.BinaryName+" up' to start it")
	} else {
		go d.start(ctx)
	}
	go d.orch.Run(ctx)

	logger.Info("daemon ready", "version", brand.Version, "radio", d.radio, "socket", brand.GetSocketPath())
	d.waitForShutdown(configFile, server, collector)

	// Shutdown
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if _, err := d.orch.Stop(stopCtx); err != nil {
		logger.Warn("extender stopped with errors", "error", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(stopCtx); err != nil {
			logger.Warn("metrics listener shutdown failed", "error", err)
		}
	}
	if err := tracker.Reset(); err != nil {
		logger.Warn("failed to clear crash state", "error", err)
	}
	logger.Info("daemon stopped")
	return nil
}

// waitForShutdown handles SIGHUP reloads until SIGTERM or SIGINT.
func (d *daemon) waitForShutdown(configFile string, server *ctlplane.Server, collector *metrics.Collector) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			d.logger.Info("received signal, shutting down", "signal", sig)
			return
		}
		d.logger.Info("received SIGHUP, reloading configuration")
		cfg, err := config.LoadAndValidate(configFile)
		if err != nil {
			d.logger.Error("failed to reload configuration", "error", err)
			collector.IncrementConfigReload(false)
			continue
		}
		applyLogLevel(d.logger, cfg)
		rep, err := server.ReloadConfig(cfg)
		if err != nil {
			d.logger.Error("failed to apply reloaded configuration", "error", err)
			collector.IncrementConfigReload(false)
			continue
		}
		collector.IncrementConfigReload(true)
		d.logger.Info("reload applied", "state", rep.To, "noop", rep.Noop)
	}
}

// startHTTP serves metrics and health probes on listen.
func startHTTP(listen string, checker *health.Checker, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", checker.Handler())
	mux.Handle("/readyz", checker.ReadinessHandler())
	mux.Handle("/livez", health.LivenessHandler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
		}
	}()
	return srv
}
