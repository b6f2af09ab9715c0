//go:build linux
// +build linux

package network

import (
	"context"
	"net"
	"slices"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/repeater/internal/logging"
)

// Change types reported by InterfaceMonitor.
const (
	ChangeLinkUp   = "link-up"
	ChangeLinkDown = "link-down"
	ChangeLinkDel  = "link-del"
	ChangeAddrAdd  = "addr-add"
	ChangeAddrDel  = "addr-del"
)

// InterfaceChange represents a change to a watched interface.
type InterfaceChange struct {
	Interface string
	Type      string
	Address   net.IPNet
}

// InterfaceMonitor watches kernel link and address events for a set of
// interfaces.
type InterfaceMonitor struct {
	logger *logging.Logger

	mu         sync.RWMutex
	interfaces map[string]bool
	names      map[int]string
	callbacks  []func(InterfaceChange)
	cancel     context.CancelFunc
	running    bool
}

// NewInterfaceMonitor creates a new interface monitor.
func NewInterfaceMonitor(logger *logging.Logger) *InterfaceMonitor {
	return &InterfaceMonitor{
		logger:     logging.OrDefault(logger).WithComponent("monitor"),
		interfaces: make(map[string]bool),
		names:      make(map[int]string),
	}
}

// SetInterfaces replaces the watched set.
func (m *InterfaceMonitor) SetInterfaces(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interfaces = make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			m.interfaces[n] = true
		}
	}
}

// OnChange registers a callback for interface changes.
func (m *InterfaceMonitor) OnChange(callback func(InterfaceChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// Start subscribes to link and address updates until ctx ends or Stop is
// called.
func (m *InterfaceMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	linkUpdates := make(chan netlink.LinkUpdate)
	if err := netlink.LinkSubscribe(linkUpdates, ctx.Done()); err != nil {
		m.Stop()
		return err
	}

	addrUpdates := make(chan netlink.AddrUpdate)
	if err := netlink.AddrSubscribe(addrUpdates, ctx.Done()); err != nil {
		// Address events are optional; link events still drive recovery.
		m.logger.Warn("could not subscribe to address updates", "error", err)
		addrUpdates = nil
	}

	go m.processUpdates(ctx, linkUpdates, addrUpdates)

	m.logger.Info("interface monitoring started")
	return nil
}

// Stop stops monitoring.
func (m *InterfaceMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.running {
		m.running = false
		m.logger.Info("interface monitoring stopped")
	}
}

func (m *InterfaceMonitor) processUpdates(ctx context.Context, links chan netlink.LinkUpdate, addrs chan netlink.AddrUpdate) {
	for {
		select {
		case <-ctx.Done():
			return

		case update, ok := <-links:
			if !ok {
				return
			}
			if change, ok := m.linkChange(update); ok {
				m.notify(change)
			}

		case update, ok := <-addrs:
			if !ok {
				addrs = nil
				continue
			}
			if change, ok := m.addrChange(update); ok {
				m.notify(change)
			}
		}
	}
}

// linkChange classifies a link update for a watched interface and
// remembers its index so later address events can be named.
func (m *InterfaceMonitor) linkChange(update netlink.LinkUpdate) (InterfaceChange, bool) {
	if update.Link == nil {
		return InterfaceChange{}, false
	}
	attrs := update.Link.Attrs()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.interfaces[attrs.Name] {
		return InterfaceChange{}, false
	}

	change := InterfaceChange{Interface: attrs.Name}
	switch {
	case update.Header.Type == unix.RTM_DELLINK:
		delete(m.names, attrs.Index)
		change.Type = ChangeLinkDel
	case attrs.Flags&net.FlagUp == 0 || attrs.OperState == netlink.OperDown:
		m.names[attrs.Index] = attrs.Name
		change.Type = ChangeLinkDown
	default:
		m.names[attrs.Index] = attrs.Name
		change.Type = ChangeLinkUp
	}
	return change, true
}

func (m *InterfaceMonitor) addrChange(update netlink.AddrUpdate) (InterfaceChange, bool) {
	m.mu.RLock()
	name, known := m.names[update.LinkIndex]
	m.mu.RUnlock()
	if !known {
		link, err := netlink.LinkByIndex(update.LinkIndex)
		if err != nil {
			return InterfaceChange{}, false
		}
		name = link.Attrs().Name
	}

	m.mu.RLock()
	watched := m.interfaces[name]
	m.mu.RUnlock()
	if !watched {
		return InterfaceChange{}, false
	}

	change := InterfaceChange{Interface: name, Type: ChangeAddrAdd, Address: update.LinkAddress}
	if !update.NewAddr {
		change.Type = ChangeAddrDel
	}
	return change, true
}

func (m *InterfaceMonitor) notify(change InterfaceChange) {
	m.mu.RLock()
	callbacks := slices.Clone(m.callbacks)
	m.mu.RUnlock()

	m.logger.Debug("interface changed", "iface", change.Interface, "type", change.Type, "addr", change.Address.String())
	for _, cb := range callbacks {
		cb(change)
	}
}
