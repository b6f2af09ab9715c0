//go:build linux

package upstream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"

	"grimm.is/repeater/internal/logging"
)

// nativeDHCP performs the DORA exchange in-process and renews at T1 until
// released.
type nativeDHCP struct {
	mu     sync.Mutex
	renew  map[string]context.CancelFunc
	logger *logging.Logger
}

func newNativeDHCP() *nativeDHCP {
	return &nativeDHCP{
		renew:  make(map[string]context.CancelFunc),
		logger: logging.WithComponent("dhcp"),
	}
}

func (n *nativeDHCP) Acquire(ctx context.Context, iface string) (*Lease, error) {
	client, err := nclient4.New(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to create DHCP client for %s: %w", iface, err)
	}

	raw, err := client.Request(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("DHCP handshake failed on %s: %w", iface, err)
	}
	lease := fromNClient(raw)

	renewCtx, cancel := context.WithCancel(context.Background())
	n.mu.Lock()
	if prev, ok := n.renew[iface]; ok {
		prev()
	}
	n.renew[iface] = cancel
	n.mu.Unlock()

	go n.renewLoop(renewCtx, client, iface, raw)
	return lease, nil
}

func (n *nativeDHCP) renewLoop(ctx context.Context, client *nclient4.Client, iface string, lease *nclient4.Lease) {
	defer client.Close()
	for {
		t1 := lease.ACK.IPAddressRenewalTime(0)
		if t1 == 0 {
			if d := lease.ACK.IPAddressLeaseTime(0); d > 0 {
				t1 = d / 2
			} else {
				t1 = time.Hour
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t1):
		}

		renewed, err := client.Renew(ctx, lease)
		if err != nil {
			n.logger.Warn("DHCP renewal failed", "iface", iface, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Second):
			}
			continue
		}
		lease = renewed
		n.logger.Debug("DHCP lease renewed", "iface", iface, "ip", lease.ACK.YourIPAddr)
	}
}

func (n *nativeDHCP) Release(ctx context.Context, iface string, lease *Lease) error {
	n.mu.Lock()
	if cancel, ok := n.renew[iface]; ok {
		cancel()
		delete(n.renew, iface)
	}
	n.mu.Unlock()

	if lease == nil {
		return nil
	}
	raw, ok := lease.raw.(*nclient4.Lease)
	if !ok {
		return nil
	}
	client, err := nclient4.New(iface)
	if err != nil {
		return fmt.Errorf("failed to create DHCP client for %s: %w", iface, err)
	}
	defer client.Close()
	return client.Release(raw)
}

func fromNClient(raw *nclient4.Lease) *Lease {
	ack := raw.ACK
	l := &Lease{
		Address:    &net.IPNet{IP: ack.YourIPAddr, Mask: ack.SubnetMask()},
		DNS:        ack.DNS(),
		Duration:   ack.IPAddressLeaseTime(0),
		ObtainedAt: time.Now(),
		raw:        raw,
	}
	if routers := ack.Router(); len(routers) > 0 {
		l.Router = routers[0]
	}
	return l
}
