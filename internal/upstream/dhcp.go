package upstream

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"time"

	"grimm.is/repeater/internal/network"
)

// Lease is an IPv4 lease obtained on the upstream interface.
type Lease struct {
	Address    *net.IPNet
	Router     net.IP
	DNS        []net.IP
	Duration   time.Duration
	ObtainedAt time.Time

	// raw is the client-specific lease used for renew and release.
	raw any
}

// DHCPClient acquires and releases the upstream lease.
// A nil lease with a nil error means the client configured the interface
// itself and there is nothing to apply.
type DHCPClient interface {
	Acquire(ctx context.Context, iface string) (*Lease, error)
	Release(ctx context.Context, iface string, lease *Lease) error
}

// NewDHCPClient selects an implementation: "native" or "system".
func NewDHCPClient(kind, runDir string, cmd network.CommandExecutor) (DHCPClient, error) {
	switch kind {
	case "", "native":
		return newNativeDHCP(), nil
	case "system":
		return newSystemDHCP(runDir, cmd, exec.LookPath), nil
	}
	return nil, fmt.Errorf("unknown dhcp client %q", kind)
}

// systemDHCP drives udhcpc or dhclient. Both apply the lease through their
// own hook scripts.
type systemDHCP struct {
	runDir   string
	cmd      network.CommandExecutor
	lookPath func(string) (string, error)
}

func newSystemDHCP(runDir string, cmd network.CommandExecutor, lookPath func(string) (string, error)) *systemDHCP {
	if cmd == nil {
		cmd = network.DefaultCommandExecutor
	}
	return &systemDHCP{runDir: runDir, cmd: cmd, lookPath: lookPath}
}

func (s *systemDHCP) pidFile(iface string) string {
	return filepath.Join(s.runDir, "dhclient-"+iface+".pid")
}

func (s *systemDHCP) Acquire(ctx context.Context, iface string) (*Lease, error) {
	if _, err := s.lookPath("udhcpc"); err == nil {
		// -n: fail instead of backgrounding, -q: exit once the lease is applied.
		_, err := s.cmd.RunCommand(ctx, "udhcpc", "-i", iface, "-n", "-q", "-t", "5")
		return nil, err
	}
	if _, err := s.lookPath("dhclient"); err == nil {
		_, err := s.cmd.RunCommand(ctx, "dhclient", "-4", "-1", "-pf", s.pidFile(iface), iface)
		return nil, err
	}
	return nil, fmt.Errorf("no DHCP client found (tried udhcpc, dhclient)")
}

func (s *systemDHCP) Release(ctx context.Context, iface string, _ *Lease) error {
	if _, err := s.lookPath("dhclient"); err == nil {
		_, err := s.cmd.RunCommand(ctx, "dhclient", "-4", "-r", "-pf", s.pidFile(iface), iface)
		return err
	}
	return nil
}
