//go:build !linux

package upstream

import (
	"context"
	"errors"
)

type nativeDHCP struct{}

func newNativeDHCP() *nativeDHCP {
	return &nativeDHCP{}
}

func (n *nativeDHCP) Acquire(ctx context.Context, iface string) (*Lease, error) {
	return nil, errors.New("native DHCP client not supported on this platform")
}

func (n *nativeDHCP) Release(ctx context.Context, iface string, lease *Lease) error {
	return nil
}
