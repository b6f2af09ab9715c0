//go:build !linux

package network

import (
	"context"
	"errors"
	"net"

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

// InterfaceMonitor is unavailable off Linux.
type InterfaceMonitor struct{}

func NewInterfaceMonitor(logger *logging.Logger) *InterfaceMonitor { return &InterfaceMonitor{} }

func (m *InterfaceMonitor) SetInterfaces(names ...string)               {}
func (m *InterfaceMonitor) OnChange(callback func(InterfaceChange))    {}
func (m *InterfaceMonitor) Stop()                                      {}
func (m *InterfaceMonitor) Start(ctx context.Context) error {
	return errors.New("interface monitoring not supported on this platform")
}
