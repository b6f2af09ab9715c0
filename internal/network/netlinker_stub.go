//go:build !linux

package network

import (
	"errors"

	"github.com/vishvananda/netlink"
)

// ErrNotSupported is returned by netlink operations off Linux.
var ErrNotSupported = errors.New("netlink not supported on this platform")

// DefaultNetlinker is the default RealNetlinker instance (stub).
var DefaultNetlinker Netlinker = &RealNetlinker{}

// RealNetlinker is a stub implementation of Netlinker.
type RealNetlinker struct{}

func (r *RealNetlinker) LinkByName(name string) (netlink.Link, error) {
	return nil, ErrNotSupported
}

func (r *RealNetlinker) LinkList() ([]netlink.Link, error) {
	return nil, nil
}

func (r *RealNetlinker) LinkSetUp(link netlink.Link) error {
	return ErrNotSupported
}

func (r *RealNetlinker) LinkSetDown(link netlink.Link) error {
	return ErrNotSupported
}

func (r *RealNetlinker) LinkSetMaster(slave, master netlink.Link) error {
	return ErrNotSupported
}

func (r *RealNetlinker) LinkSetNoMaster(link netlink.Link) error {
	return ErrNotSupported
}

func (r *RealNetlinker) LinkAdd(link netlink.Link) error {
	return ErrNotSupported
}

func (r *RealNetlinker) LinkDel(link netlink.Link) error {
	return ErrNotSupported
}

func (r *RealNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return nil, nil
}

func (r *RealNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	return ErrNotSupported
}

func (r *RealNetlinker) AddrDel(link netlink.Link, addr *netlink.Addr) error {
	return ErrNotSupported
}

func (r *RealNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	return nil, nil
}

func (r *RealNetlinker) RouteAdd(route *netlink.Route) error {
	return ErrNotSupported
}

func (r *RealNetlinker) RouteDel(route *netlink.Route) error {
	return ErrNotSupported
}

func (r *RealNetlinker) ParseAddr(s string) (*netlink.Addr, error) {
	return netlink.ParseAddr(s)
}

// IsLinkNotFound reports whether err means the named link does not exist.
func IsLinkNotFound(err error) bool {
	return err != nil && !errors.Is(err, ErrNotSupported)
}
