// Package bridge joins the access-point interface to the upstream link: a
// Linux bridge carries the hotspot subnet, IPv4 forwarding is enabled and an
// nftables table masquerades hotspot traffic out of the upstream interface.
//
// Every nftables object the router commits is recorded on a RuleStack owned
// by the caller, so teardown removes exactly what was installed, newest first.
package bridge

import "errors"

// ErrNotSupported is returned off Linux.
var ErrNotSupported = errors.New("bridge: not supported on this platform")

const (
	DefaultBridgeName = "br0"
	DefaultTable      = "repeater"

	ipForward = "net.ipv4.ip_forward"
)

// Status reports four independently probed conditions.
type Status struct {
	// Running is true between a successful Start and the next Stop.
	Running           bool `json:"running"`
	ForwardingEnabled bool `json:"forwarding_enabled"`
	NATEnabled        bool `json:"nat_enabled"`
	// BridgeActive means the bridge exists, is up and holds the AP interface.
	BridgeActive bool `json:"bridge_active"`
}

// Healthy reports whether all conditions hold.
func (s Status) Healthy() bool {
	return s.Running && s.ForwardingEnabled && s.NATEnabled && s.BridgeActive
}
