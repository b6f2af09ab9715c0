// Package upstream joins the physical radio to the upstream WiFi network
// with wpa_supplicant and obtains an IPv4 lease on it.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/repeater/internal/clock"
	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/network"
)

// ErrConnectVerifyFailed means the association could not be confirmed
// against the requested SSID after connecting.
var ErrConnectVerifyFailed = errors.New("upstream connection could not be verified")

// Status is a point-in-time view of the upstream link. Optional fields are
// nil when the value could not be observed.
type Status struct {
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid,omitempty"`
	BSSID     string `json:"bssid,omitempty"`
	IP        string `json:"ip,omitempty"`
	SignalDBm *int   `json:"signal_dbm,omitempty"`
	BitRate   string `json:"bit_rate,omitempty"`
	Reachable *bool  `json:"reachable,omitempty"`
}

// Config configures a Link.
type Config struct {
	Interface string
	RunDir    string
	// VerifyTimeout bounds association and lease acquisition.
	VerifyTimeout time.Duration
	PollInterval  time.Duration
	// ProbeTarget, when set, is pinged by Status to report reachability.
	ProbeTarget  string
	ProbeTimeout time.Duration
	DHCP         string
	// Clock paces association polling. Defaults to clock.Real.
	Clock clock.Clock
}

// Link manages the upstream association on one interface.
type Link struct {
	cfg        Config
	nl         network.Netlinker
	cmd        network.CommandExecutor
	dhcp       DHCPClient
	supplicant *network.Process
	ping       pingFunc
	logger     *logging.Logger

	mu    sync.Mutex
	lease *Lease
}

// NewLink creates a Link. Nil dependencies select the real implementations.
func NewLink(cfg Config, nl network.Netlinker, cmd network.CommandExecutor, sys network.SystemController, logger *logging.Logger) (*Link, error) {
	if cfg.Interface == "" {
		return nil, fmt.Errorf("upstream interface is required")
	}
	if nl == nil {
		nl = network.DefaultNetlinker
	}
	if cmd == nil {
		cmd = network.DefaultCommandExecutor
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 20 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real
	}

	dhcp, err := NewDHCPClient(cfg.DHCP, cfg.RunDir, cmd)
	if err != nil {
		return nil, err
	}

	pidFile := filepath.Join(cfg.RunDir, "wpa_supplicant-"+cfg.Interface+".pid")
	return &Link{
		cfg:        cfg,
		nl:         nl,
		cmd:        cmd,
		dhcp:       dhcp,
		supplicant: network.NewProcess("wpa_supplicant", pidFile, cmd, sys),
		ping:       ping,
		logger:     logging.OrDefault(logger).WithComponent("upstream"),
	}, nil
}

// SetDHCPClient replaces the lease client.
func (l *Link) SetDHCPClient(c DHCPClient) {
	l.dhcp = c
}

// Interface returns the managed interface name.
func (l *Link) Interface() string {
	return l.cfg.Interface
}

func (l *Link) confPath() string {
	return filepath.Join(l.cfg.RunDir, "wpa_supplicant-"+l.cfg.Interface+".conf")
}

// Connect joins ssid. Any existing association is torn down first. Success
// is only reported once Status confirms the SSID and an address.
func (l *Link) Connect(ctx context.Context, ssid, password string) error {
	if ssid == "" {
		return fmt.Errorf("ssid is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.teardown(ctx); err != nil {
		l.logger.Warn("cleanup before connect incomplete", "error", err)
	}

	if err := l.connect(ctx, ssid, password); err != nil {
		if terr := l.teardown(ctx); terr != nil {
			l.logger.Warn("cleanup after failed connect incomplete", "error", terr)
		}
		return err
	}

	l.logger.Info("upstream connected", "ssid", ssid, "iface", l.cfg.Interface)
	return nil
}

func (l *Link) connect(ctx context.Context, ssid, password string) error {
	iface := l.cfg.Interface

	if err := os.MkdirAll(l.cfg.RunDir, 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	conf := renderSupplicantConfig(filepath.Join(l.cfg.RunDir, "wpa_supplicant"), ssid, password)
	if err := os.WriteFile(l.confPath(), []byte(conf), 0600); err != nil {
		return fmt.Errorf("write supplicant config: %w", err)
	}

	link, err := l.nl.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("upstream interface %s: %w", iface, err)
	}
	if err := l.nl.LinkSetUp(link); err != nil {
		return fmt.Errorf("bring up %s: %w", iface, err)
	}

	if err := l.supplicant.Start(ctx, "-B", "-i", iface, "-c", l.confPath(), "-P", l.supplicant.PIDFile); err != nil {
		return fmt.Errorf("start wpa_supplicant: %w", err)
	}

	assoc, err := l.waitAssociated(ctx, ssid)
	if err != nil {
		return err
	}
	l.logger.Info("associated", "ssid", assoc.SSID, "bssid", assoc.BSSID)

	leaseCtx, cancel := context.WithTimeout(ctx, l.cfg.VerifyTimeout)
	defer cancel()
	lease, err := l.dhcp.Acquire(leaseCtx, iface)
	if err != nil {
		return fmt.Errorf("dhcp on %s: %w", iface, err)
	}
	if lease != nil {
		l.lease = lease
		if err := l.applyLease(link, lease); err != nil {
			return err
		}
	}

	st, err := l.Status(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectVerifyFailed, err)
	}
	if !st.Connected || st.SSID != ssid {
		return fmt.Errorf("%w: want %q, have ssid=%q ip=%q", ErrConnectVerifyFailed, ssid, st.SSID, st.IP)
	}
	return nil
}

// waitAssociated polls `iw dev <if> link` until the requested SSID shows up.
func (l *Link) waitAssociated(ctx context.Context, ssid string) (Association, error) {
	clk := l.cfg.Clock
	deadline := clk.Now().Add(l.cfg.VerifyTimeout)
	var last Association
	for {
		out, err := l.cmd.RunCommand(ctx, "iw", "dev", l.cfg.Interface, "link")
		if err == nil {
			last = ParseLink(out)
			if last.Associated && last.SSID == ssid {
				return last, nil
			}
		}
		if clk.Now().After(deadline) {
			return last, fmt.Errorf("%w: not associated with %q (current %q)", ErrConnectVerifyFailed, ssid, last.SSID)
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-clk.After(l.cfg.PollInterval):
		}
	}
}

func (l *Link) applyLease(link netlink.Link, lease *Lease) error {
	addrs, err := l.nl.AddrList(link, unix.AF_INET)
	if err != nil {
		return fmt.Errorf("list addresses: %w", err)
	}
	present := false
	for _, a := range addrs {
		if a.IPNet != nil && a.IPNet.String() == lease.Address.String() {
			present = true
			break
		}
	}
	if !present {
		if err := l.nl.AddrAdd(link, &netlink.Addr{IPNet: lease.Address}); err != nil {
			return fmt.Errorf("failed to add address %s: %w", lease.Address, err)
		}
	}

	if lease.Router != nil {
		route := &netlink.Route{Gw: lease.Router, LinkIndex: link.Attrs().Index}
		if err := l.nl.RouteAdd(route); err != nil && !errors.Is(err, syscall.EEXIST) {
			return fmt.Errorf("add default route via %s: %w", lease.Router, err)
		}
	}
	l.logger.Info("lease applied", "ip", lease.Address, "router", lease.Router, "dns", lease.DNS, "duration", lease.Duration)
	return nil
}

// Disconnect releases the lease and stops wpa_supplicant. It is safe to
// call when not connected.
func (l *Link) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.teardown(ctx)
}

func (l *Link) teardown(ctx context.Context) error {
	var errs []error

	if err := l.dhcp.Release(ctx, l.cfg.Interface, l.lease); err != nil {
		errs = append(errs, fmt.Errorf("release lease: %w", err))
	}
	l.lease = nil

	if err := l.supplicant.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop wpa_supplicant: %w", err))
	}
	if err := os.Remove(l.confPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}

	if err := l.flushAddresses(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *Link) flushAddresses() error {
	link, err := l.nl.LinkByName(l.cfg.Interface)
	if err != nil {
		if network.IsLinkNotFound(err) {
			return nil
		}
		return err
	}
	addrs, err := l.nl.AddrList(link, unix.AF_INET)
	if err != nil {
		return fmt.Errorf("list addresses: %w", err)
	}
	var errs []error
	for i := range addrs {
		if err := l.nl.AddrDel(link, &addrs[i]); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", addrs[i].IPNet, err))
		}
	}
	return errors.Join(errs...)
}

// Status reads the association and address state. It never mutates the link.
func (l *Link) Status(ctx context.Context) (Status, error) {
	out, err := l.cmd.RunCommand(ctx, "iw", "dev", l.cfg.Interface, "link")
	if err != nil {
		return Status{}, fmt.Errorf("read link state: %w", err)
	}
	assoc := ParseLink(out)
	st := Status{
		SSID:      assoc.SSID,
		BSSID:     assoc.BSSID,
		SignalDBm: assoc.SignalDBm,
		BitRate:   assoc.TxBitrate,
	}

	link, err := l.nl.LinkByName(l.cfg.Interface)
	if err != nil {
		return st, fmt.Errorf("upstream interface %s: %w", l.cfg.Interface, err)
	}
	addrs, err := l.nl.AddrList(link, unix.AF_INET)
	if err != nil {
		return st, fmt.Errorf("list addresses: %w", err)
	}
	for _, a := range addrs {
		if a.IPNet != nil {
			st.IP = a.IPNet.IP.String()
			break
		}
	}

	st.Connected = assoc.Associated && st.IP != ""

	if st.Connected && l.cfg.ProbeTarget != "" {
		reachable := l.ping(ctx, l.cfg.ProbeTarget, l.cfg.ProbeTimeout) == nil
		st.Reachable = &reachable
	}
	return st, nil
}

// Scan lists nearby networks, strongest first.
func (l *Link) Scan(ctx context.Context) ([]Network, error) {
	if link, err := l.nl.LinkByName(l.cfg.Interface); err == nil {
		if link.Attrs().Flags&net.FlagUp == 0 {
			if err := l.nl.LinkSetUp(link); err != nil {
				return nil, fmt.Errorf("bring up %s: %w", l.cfg.Interface, err)
			}
		}
	}
	out, err := l.cmd.RunCommand(ctx, "iw", "dev", l.cfg.Interface, "scan")
	if err != nil {
		if strings.Contains(err.Error(), "busy") {
			return nil, fmt.Errorf("scan on %s: radio busy, retry shortly: %w", l.cfg.Interface, err)
		}
		return nil, fmt.Errorf("scan on %s: %w", l.cfg.Interface, err)
	}
	return ParseScan(out), nil
}
