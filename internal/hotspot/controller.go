// Package hotspot runs the access point on the virtual interface: hostapd
// for 802.11 and dnsmasq for DHCP and DNS.
package hotspot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/network"
)

var (
	// ErrNotConfigured is returned by Start before a successful Configure.
	ErrNotConfigured = errors.New("access point not configured")
	// ErrAlreadyRunning is returned by Start or Configure while hostapd runs.
	ErrAlreadyRunning = errors.New("access point already running")
	// ErrNotRunning is returned by Clients when hostapd or dnsmasq is not
	// alive.
	ErrNotRunning = errors.New("access point not running")
	// ErrStationsUnavailable is returned by Clients, alongside the clients
	// known from leases, when the driver's station table cannot be read.
	ErrStationsUnavailable = errors.New("station table unavailable")
)

// Controller drives hostapd and dnsmasq for one AP interface.
type Controller struct {
	runDir string
	nl     network.Netlinker
	cmd    network.CommandExecutor
	logger *logging.Logger

	hostapd *network.Process
	dnsmasq *network.Process

	mu       sync.Mutex
	iface    string
	settings *Settings
}

// NewController creates a Controller writing its files under runDir.
func NewController(runDir string, nl network.Netlinker, cmd network.CommandExecutor, sys network.SystemController, logger *logging.Logger) *Controller {
	if nl == nil {
		nl = network.DefaultNetlinker
	}
	if cmd == nil {
		cmd = network.DefaultCommandExecutor
	}
	return &Controller{
		runDir:  runDir,
		nl:      nl,
		cmd:     cmd,
		logger:  logging.OrDefault(logger).WithComponent("hotspot"),
		hostapd: network.NewProcess("hostapd", filepath.Join(runDir, "hostapd.pid"), cmd, sys),
		dnsmasq: network.NewProcess("dnsmasq", filepath.Join(runDir, "dnsmasq.pid"), cmd, sys),
	}
}

func (c *Controller) hostapdConf() string { return filepath.Join(c.runDir, "hostapd.conf") }
func (c *Controller) dnsmasqConf() string { return filepath.Join(c.runDir, "dnsmasq.conf") }
func (c *Controller) leaseFile() string   { return filepath.Join(c.runDir, "dnsmasq.leases") }

// Configure renders hostapd and dnsmasq configuration for iface.
func (c *Controller) Configure(iface string, s Settings) error {
	if iface == "" {
		return fmt.Errorf("ap interface is required")
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid ap settings: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hostapd.Alive() {
		return ErrAlreadyRunning
	}

	if err := os.MkdirAll(c.runDir, 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	hostapd := renderHostapd(iface, filepath.Join(c.runDir, "hostapd"), s)
	if err := os.WriteFile(c.hostapdConf(), []byte(hostapd), 0600); err != nil {
		return fmt.Errorf("write hostapd config: %w", err)
	}
	dnsmasq := renderDnsmasq(iface, c.leaseFile(), c.dnsmasq.PIDFile, s)
	if err := os.WriteFile(c.dnsmasqConf(), []byte(dnsmasq), 0644); err != nil {
		return fmt.Errorf("write dnsmasq config: %w", err)
	}

	c.iface = iface
	c.settings = &s
	c.logger.Info("access point configured", "iface", iface, "ssid", s.SSID, "channel", s.Channel, "secured", s.Secured())
	return nil
}

// Start assigns the gateway address and launches hostapd then dnsmasq.
// Anything started before a failure is stopped again.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.settings == nil {
		return ErrNotConfigured
	}
	if c.hostapd.Alive() {
		return ErrAlreadyRunning
	}

	if err := c.start(ctx); err != nil {
		if serr := c.stop(ctx, false); serr != nil {
			c.logger.Warn("cleanup after failed start incomplete", "error", serr)
		}
		return err
	}
	c.logger.Info("access point started", "iface", c.iface, "ssid", c.settings.SSID)
	return nil
}

func (c *Controller) start(ctx context.Context) error {
	link, err := c.nl.LinkByName(c.iface)
	if err != nil {
		return fmt.Errorf("ap interface %s: %w", c.iface, err)
	}
	if err := c.flush(link); err != nil {
		return err
	}
	if err := c.nl.AddrAdd(link, &netlink.Addr{IPNet: c.settings.Gateway}); err != nil {
		return fmt.Errorf("assign %s to %s: %w", c.settings.Gateway, c.iface, err)
	}
	if err := c.nl.LinkSetUp(link); err != nil {
		return fmt.Errorf("bring up %s: %w", c.iface, err)
	}

	if err := c.hostapd.Start(ctx, "-B", "-P", c.hostapd.PIDFile, c.hostapdConf()); err != nil {
		return fmt.Errorf("start hostapd: %w", err)
	}
	if err := c.dnsmasq.Start(ctx, "-C", c.dnsmasqConf()); err != nil {
		return fmt.Errorf("start dnsmasq: %w", err)
	}
	return nil
}

// Stop terminates dnsmasq and hostapd and discards the configuration.
// Stopping an AP that is not running succeeds.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop(ctx, true)
}

func (c *Controller) stop(ctx context.Context, discard bool) error {
	var errs []error
	if err := c.dnsmasq.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop dnsmasq: %w", err))
	}
	if err := c.hostapd.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop hostapd: %w", err))
	}

	if c.iface != "" {
		link, err := c.nl.LinkByName(c.iface)
		switch {
		case err == nil:
			if err := c.flush(link); err != nil {
				errs = append(errs, err)
			}
		case !network.IsLinkNotFound(err):
			errs = append(errs, fmt.Errorf("ap interface %s: %w", c.iface, err))
		}
	}

	if discard {
		for _, p := range []string{c.hostapdConf(), c.dnsmasqConf()} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		c.settings = nil
	}
	return errors.Join(errs...)
}

func (c *Controller) flush(link netlink.Link) error {
	addrs, err := c.nl.AddrList(link, unix.AF_INET)
	if err != nil {
		return fmt.Errorf("list addresses on %s: %w", c.iface, err)
	}
	for i := range addrs {
		if err := c.nl.AddrDel(link, &addrs[i]); err != nil {
			return fmt.Errorf("flush %s on %s: %w", addrs[i].IPNet, c.iface, err)
		}
	}
	return nil
}

// Alive reports whether both hostapd and dnsmasq are running. An AP that
// broadcasts without leasing addresses is down.
func (c *Controller) Alive(ctx context.Context) bool {
	return c.hostapd.Alive() && c.dnsmasq.Alive()
}

// Clients lists stations known from DHCP leases and the driver's station
// table. When the station dump fails the lease view is returned together
// with the error.
func (c *Controller) Clients(ctx context.Context) ([]Client, error) {
	switch {
	case !c.hostapd.Alive():
		return nil, ErrNotRunning
	case !c.dnsmasq.Alive():
		return nil, fmt.Errorf("%w: dnsmasq exited", ErrNotRunning)
	}

	c.mu.Lock()
	iface := c.iface
	c.mu.Unlock()

	var leases []leaseRecord
	data, err := os.ReadFile(c.leaseFile())
	switch {
	case err == nil:
		leases = parseLeases(string(data))
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read leases: %w", err)
	}

	stations := map[string]*int{}
	var dumpErr error
	if iface != "" {
		out, err := c.cmd.RunCommand(ctx, "iw", "dev", iface, "station", "dump")
		if err != nil {
			c.logger.Warn("station dump failed", "iface", iface, "error", err)
			dumpErr = fmt.Errorf("%w: %v", ErrStationsUnavailable, err)
		} else {
			stations = parseStationDump(out)
		}
	}

	return mergeClients(leases, stations), dumpErr
}
