package ctlplane

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"sync"
	"time"

	"grimm.is/repeater/internal/brand"
	"grimm.is/repeater/internal/clock"
	"grimm.is/repeater/internal/config"
	"grimm.is/repeater/internal/extender"
	"grimm.is/repeater/internal/hotspot"
	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/metrics"
	"grimm.is/repeater/internal/state"
	"grimm.is/repeater/internal/upstream"
)

// ClientRetention is how long a departed hotspot client stays listed.
const ClientRetention = 24 * time.Hour

// opTimeout bounds Up, Down and Reload. Stop always completes regardless.
const opTimeout = 2 * time.Minute

// Lifecycle is the orchestrator surface the server drives.
type Lifecycle interface {
	Start(ctx context.Context, cfg extender.LifecycleConfig) (extender.Report, error)
	Stop(ctx context.Context) (extender.Report, error)
	Status(ctx context.Context) extender.StatusReport
}

// Scanner lists upstream networks in range.
type Scanner interface {
	Scan(ctx context.Context) ([]upstream.Network, error)
}

// ClientLister lists stations associated with the hotspot.
type ClientLister interface {
	Clients(ctx context.Context) ([]hotspot.Client, error)
}

// ConfigLoader reads the configuration file again.
type ConfigLoader func() (*config.Config, error)

// Server is the control plane RPC server.
type Server struct {
	mu         sync.RWMutex
	config     *config.Config
	configFile string
	orch       Lifecycle
	store      state.Store
	scanner    Scanner
	clients    ClientLister
	loader     ConfigLoader
	heldDown   bool

	logger    *logging.Logger
	metrics   *metrics.Registry
	clock     clock.Clock
	startedAt time.Time

	rpc      *rpc.Server
	listener net.Listener
}

// NewServer creates a control plane server for orch.
func NewServer(cfg *config.Config, configFile string, orch Lifecycle, logger *logging.Logger) *Server {
	s := &Server{
		config:     cfg,
		configFile: configFile,
		orch:       orch,
		logger:     logging.OrDefault(logger).WithComponent("ctlplane"),
		clock:      &clock.RealClock{},
		rpc:        rpc.NewServer(),
	}
	s.startedAt = s.clock.Now()
	return s
}

// SetStateStore sets the store used for history and client records.
func (s *Server) SetStateStore(store state.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
}

// SetScanner sets the upstream scanner.
func (s *Server) SetScanner(sc Scanner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanner = sc
}

// SetClientLister sets the hotspot client source.
func (s *Server) SetClientLister(cl ClientLister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = cl
}

// SetConfigLoader sets the loader used by Reload.
func (s *Server) SetConfigLoader(l ConfigLoader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loader = l
}

// SetMetrics sets the registry request counts are recorded in.
func (s *Server) SetMetrics(m *metrics.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// SetClock replaces the time source.
func (s *Server) SetClock(clk clock.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clk
	s.startedAt = clk.Now()
}

// SetHeldDown marks that crash-loop protection kept the extender stopped.
func (s *Server) SetHeldDown(held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heldDown = held
}

// Config returns the active configuration.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *Server) observe(method string) {
	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()
	m.ObserveControlRequest(method)
}

// lifecycleReply fills reply from an orchestrator result.
func lifecycleReply(reply *LifecycleReply, rep extender.Report, err error) {
	reply.Report = rep
	if err != nil {
		reply.Error = err.Error()
	}
}

// GetStatus returns the daemon and extender status.
func (s *Server) GetStatus(args *Empty, reply *GetStatusReply) error {
	s.observe("GetStatus")
	s.mu.RLock()
	reply.Daemon = DaemonInfo{
		Version:    brand.Version,
		PID:        os.Getpid(),
		ConfigFile: s.configFile,
		StartedAt:  s.startedAt,
		HeldDown:   s.heldDown,
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reply.Status = s.orch.Status(ctx)
	return nil
}

// Up starts the extender with the active configuration. Starting an
// extender that is already running is reported as a no-op. A failed
// extender is torn down first.
func (s *Server) Up(args *Empty, reply *LifecycleReply) error {
	s.observe("Up")
	cfg := s.Config()
	if cfg == nil {
		return errors.New("no configuration loaded")
	}
	lc, err := cfg.Lifecycle()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if s.orch.Status(ctx).State == extender.StateFailed {
		if _, err := s.orch.Stop(ctx); err != nil {
			s.logger.Warn("teardown of failed extender finished with errors", "error", err)
		}
	}
	rep, err := s.orch.Start(ctx, lc)
	lifecycleReply(reply, rep, err)
	if err == nil {
		s.SetHeldDown(false)
		s.logger.Info("extender started by request", "state", rep.To, "duration", rep.Duration)
	} else if !rep.Noop {
		s.logger.Warn("requested start failed", "error", err)
	}
	return nil
}

// Down stops the extender.
func (s *Server) Down(args *Empty, reply *LifecycleReply) error {
	s.observe("Down")
	rep, err := s.orch.Stop(context.Background())
	lifecycleReply(reply, rep, err)
	if err != nil {
		s.logger.Warn("requested stop finished with errors", "error", err)
	}
	return nil
}

// Reload reads the configuration file again and applies it.
func (s *Server) Reload(args *Empty, reply *LifecycleReply) error {
	s.observe("Reload")
	s.mu.RLock()
	loader := s.loader
	s.mu.RUnlock()
	if loader == nil {
		return errors.New("reload not supported")
	}
	cfg, err := loader()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rep, err := s.ReloadConfig(cfg)
	lifecycleReply(reply, rep, err)
	return nil
}

// ReloadConfig replaces the active configuration. A running extender is
// stopped and started again with it; a stopped one stays stopped.
// Radio, bridge and reconcile settings take effect on daemon restart.
func (s *Server) ReloadConfig(cfg *config.Config) (extender.Report, error) {
	lc, err := cfg.Lifecycle()
	if err != nil {
		return extender.Report{}, fmt.Errorf("invalid configuration: %w", err)
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	st := s.orch.Status(ctx).State
	if st == extender.StateStopped {
		s.logger.Info("configuration reloaded, extender stopped")
		return extender.Report{From: st, To: st, Noop: true}, nil
	}

	if _, err := s.orch.Stop(ctx); err != nil {
		s.logger.Warn("stop before reload finished with errors", "error", err)
	}
	rep, err := s.orch.Start(ctx, lc)
	if err != nil {
		return rep, fmt.Errorf("restart with new configuration: %w", err)
	}
	s.logger.Info("configuration reloaded", "state", rep.To)
	return rep, nil
}

// Scan lists upstream networks in range.
func (s *Server) Scan(args *Empty, reply *ScanReply) error {
	s.observe("Scan")
	s.mu.RLock()
	sc := s.scanner
	s.mu.RUnlock()
	if sc == nil {
		return errors.New("no upstream interface configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	nets, err := sc.Scan(ctx)
	if err != nil {
		return err
	}
	reply.Networks = nets
	return nil
}

// Clients lists connected hotspot stations and records them so stations
// that leave stay visible for ClientRetention.
func (s *Server) Clients(args *Empty, reply *ClientsReply) error {
	s.observe("Clients")
	s.mu.RLock()
	cl, store, clk := s.clients, s.store, s.clock
	s.mu.RUnlock()
	if cl == nil {
		return errors.New("no hotspot configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	connected, err := cl.Clients(ctx)
	switch {
	case errors.Is(err, hotspot.ErrStationsUnavailable):
		reply.Warning = err.Error()
	case err != nil && !errors.Is(err, hotspot.ErrNotRunning):
		return err
	}
	reply.Connected = connected
	if store == nil {
		return nil
	}

	now := clk.Now()
	current := make(map[string]bool, len(connected))
	for _, c := range connected {
		current[c.MAC] = true
		if err := store.SetJSONWithTTL(state.BucketClients, c.MAC, SeenClient{Client: c, LastSeen: now}, ClientRetention); err != nil {
			s.logger.Warn("failed to record client", "mac", c.MAC, "error", err)
		}
	}

	seen, err := state.Recent[SeenClient](store, state.BucketClients, 0)
	if err != nil {
		s.logger.Warn("failed to list recent clients", "error", err)
		return nil
	}
	for _, c := range seen {
		if !current[c.MAC] {
			reply.Recent = append(reply.Recent, c)
		}
	}
	return nil
}

// History returns recorded lifecycle transitions, oldest first.
func (s *Server) History(args *HistoryArgs, reply *HistoryReply) error {
	s.observe("History")
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return errors.New("no state store")
	}
	ts, err := state.Recent[extender.Transition](store, state.BucketHistory, args.Limit)
	if err != nil {
		return err
	}
	reply.Transitions = ts
	return nil
}

// Start listens on the control socket.
func (s *Server) Start() error {
	path := brand.GetSocketPath()
	if err := os.MkdirAll(brand.GetRunDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create run dir: %w", err)
	}
	// Remove existing socket if present
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	// Only root drives the extender.
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return s.StartWithListener(listener)
}

// StartWithListener starts the RPC server with an existing listener.
func (s *Server) StartWithListener(listener net.Listener) error {
	if err := s.rpc.RegisterName("Server", s); err != nil {
		return fmt.Errorf("failed to register RPC service: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("control plane listening", "addr", listener.Addr())

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Error("accept failed", "error", err)
				}
				return
			}
			go func() {
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("RPC connection handler panicked", "panic", r)
					}
				}()
				s.rpc.ServeConn(conn)
			}()
		}
	}()

	return nil
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	l := s.listener
	s.listener = nil
	s.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Close()
}
