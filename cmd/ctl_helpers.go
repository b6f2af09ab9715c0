package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"grimm.is/repeater/internal/brand"
	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/config"
	"grimm.is/repeater/internal/extender"
	"grimm.is/repeater/internal/health"
	"grimm.is/repeater/internal/hotspot"
	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/metrics"
	"grimm.is/repeater/internal/network"
	"grimm.is/repeater/internal/radio"
	"grimm.is/repeater/internal/state"
	"grimm.is/repeater/internal/upstream"
)

// minMemoryKB is the MemAvailable floor below which the health report
// degrades.
const minMemoryKB = 16 * 1024

// daemon holds the collaborators built for one daemon run.
type daemon struct {
	cfg    *config.Config
	logger *logging.Logger
	store  state.Store

	radio      string
	apIf       string
	bridgeName string
	table      string

	orch *extender.Orchestrator
	link *upstream.Link
	ap   *hotspot.Controller
}

// newDaemon selects the radio and builds the orchestrator with real
// collaborators.
func newDaemon(ctx context.Context, cfg *config.Config, store *state.SQLiteStore, logger *logging.Logger) (*daemon, error) {
	radioName, err := selectRadio(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	d := &daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		radio:      radioName,
		apIf:       radio.InterfaceName(radioName, cfg.APSuffix()),
		bridgeName: cfg.Bridge.Name,
		table:      cfg.Bridge.Table,
	}

	vif := radio.NewVirtualizer(nil, nil, logger)

	linkCfg := upstream.Config{
		Interface:    radioName,
		RunDir:       brand.GetRunDir(),
		ProbeTimeout: cfg.Reconcile.ProbeTimeoutDuration(),
	}
	if u := cfg.Upstream; u != nil {
		linkCfg.VerifyTimeout = u.VerifyTimeoutDuration()
		linkCfg.ProbeTarget = u.ProbeTarget
		linkCfg.DHCP = u.DHCPClient
	}
	link, err := upstream.NewLink(linkCfg, nil, nil, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	d.link = link

	d.ap = hotspot.NewController(filepath.Join(brand.GetRunDir(), "hotspot"), nil, nil, nil, logger)

	nft, err := bridge.NewNFTConn()
	if err != nil {
		return nil, fmt.Errorf("nftables: %w", err)
	}
	br := bridge.NewRouter(d.bridgeName, d.table, network.DefaultNetlinker, network.DefaultSystemController, nft, logger)

	d.orch = extender.New(extender.Options{
		Radio:          radioName,
		APSuffix:       cfg.APSuffix(),
		BridgeName:     d.bridgeName,
		Interval:       cfg.Reconcile.IntervalDuration(),
		ProbeTimeout:   cfg.Reconcile.ProbeTimeoutDuration(),
		MaxAttempts:    cfg.Reconcile.MaxAttempts,
		BackoffInitial: cfg.Reconcile.BackoffInitialDuration(),
		BackoffMax:     cfg.Reconcile.BackoffMaxDuration(),
		Metrics:        metrics.Get(),
		Store:          store,
		Logger:         logger,
	}, vif, link, d.ap, br)
	return d, nil
}

// selectRadio returns the configured radio or the first detected one that
// can run managed and AP modes together.
func selectRadio(ctx context.Context, cfg *config.Config, logger *logging.Logger) (string, error) {
	if name := cfg.RadioInterface(); name != "" {
		return name, nil
	}
	radios, err := radio.NewDetector(nil, nil).Detect(ctx)
	if err != nil {
		return "", fmt.Errorf("detect radios: %w", err)
	}
	suitable := radio.Suitable(radios)
	if len(suitable) == 0 {
		return "", fmt.Errorf("no radio supports managed and AP mode (found %d wireless interfaces)", len(radios))
	}
	for _, r := range suitable {
		if r.Concurrent {
			logger.Info("radio detected", "iface", r.Name, "phy", r.Phy, "driver", r.Driver)
			return r.Name, nil
		}
	}
	r := suitable[0]
	logger.Warn("radio does not advertise concurrent managed and AP mode", "iface", r.Name, "phy", r.Phy)
	return r.Name, nil
}

// start brings the extender up with the configuration the daemon loaded.
func (d *daemon) start(ctx context.Context) {
	lc, err := d.cfg.Lifecycle()
	if err != nil {
		d.logger.Error("invalid lifecycle configuration", "error", err)
		return
	}
	rep, err := d.orch.Start(ctx, lc)
	if err != nil {
		d.logger.Error("initial start failed", "error", err, "hint", "run '"+brand.BinaryName+" up' to retry")
		return
	}
	d.logger.Info("extender up", "state", rep.To, "duration", rep.Duration)
}

// interfaces maps the interfaces of the active run to their role.
func (d *daemon) interfaces() map[string]string {
	if !d.orch.State().Active() {
		return nil
	}
	lc, ok := d.orch.Config()
	if !ok {
		return nil
	}
	out := make(map[string]string, 3)
	if lc.Upstream != nil {
		out[d.radio] = "upstream"
	}
	if lc.AP != nil {
		out[d.apIf] = "ap"
	}
	if lc.Bridged() {
		out[d.bridgeName] = "bridge"
	}
	return out
}

func (d *daemon) interfaceNames() []string {
	return slices.Sorted(maps.Keys(d.interfaces()))
}

// watched lists every interface the extender may own.
func (d *daemon) watched() []string {
	return []string{d.radio, d.apIf, d.bridgeName}
}

func (d *daemon) bridged() bool {
	if !d.orch.State().Active() {
		return false
	}
	lc, ok := d.orch.Config()
	return ok && lc.Bridged()
}

// healthChecker registers the extender and host checks.
func (d *daemon) healthChecker() *health.Checker {
	checker := health.NewChecker(nil)
	health.RegisterExtender(checker, d.orch)
	checker.Register("interfaces", health.CheckInterfaces(network.DefaultNetlinker, d.interfaceNames))
	if conn, err := bridge.NewNFTConn(); err == nil {
		checker.Register("nftables", health.CheckNftables(conn, d.table, d.bridged))
	}
	checker.Register("conntrack", health.CheckConntrack)
	checker.Register("memory", health.CheckMemory(minMemoryKB))
	checker.Register("state", health.CheckStore(d.store))
	checker.Register("disk", health.CheckDisk(brand.GetStateDir()))
	return checker
}

// openStore opens the state database, creating its directory.
func openStore(cfg *config.Config) (*state.SQLiteStore, error) {
	path := cfg.State.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	store, err := state.NewSQLiteStore(state.DefaultOptions(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

func newDaemonLogger(cfg *config.Config) *logging.Logger {
	lc := logging.DefaultConfig()
	lc.JSON = cfg.Log.JSON
	if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		lc.Level = level
	}
	return logging.New(lc)
}

func applyLogLevel(logger *logging.Logger, cfg *config.Config) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warn("ignoring log level", "error", err)
		return
	}
	logger.SetLevel(level)
}

// setupPIDFile writes the PID file, refusing to run beside a live daemon.
func setupPIDFile() (cleanup func(), err error) {
	if err := os.MkdirAll(brand.GetRunDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	pidFile := brand.GetPIDPath()
	self := os.Getpid()

	if pid, err := readPID(pidFile); err == nil && pid != self && processAlive(pid) {
		return nil, fmt.Errorf("process already running (PID: %d)", pid)
	}
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(self)), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	cleanup = func() {
		if pid, err := readPID(pidFile); err == nil && pid == self {
			os.Remove(pidFile)
		}
	}
	return cleanup, nil
}

// readPID parses the PID stored in path.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}
	return pid, nil
}

// processAlive checks whether pid exists by sending signal 0.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
