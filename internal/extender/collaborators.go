package extender

import (
	"context"
	"net"

	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/hotspot"
	"grimm.is/repeater/internal/radio"
	"grimm.is/repeater/internal/upstream"
)

// Virtualizer creates the AP-mode virtual interface on the physical radio.
type Virtualizer interface {
	Create(ctx context.Context, physical, suffix string) (radio.Handle, error)
	Destroy(ctx context.Context, h radio.Handle) error
	Exists(ctx context.Context, h radio.Handle) (bool, error)
}

// UpstreamLink joins the internet-providing network.
type UpstreamLink interface {
	Connect(ctx context.Context, ssid, password string) error
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) (upstream.Status, error)
	Interface() string
}

// AccessPoint runs the hotspot and its DHCP server.
type AccessPoint interface {
	Configure(iface string, s hotspot.Settings) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Alive(ctx context.Context) bool
	Clients(ctx context.Context) ([]hotspot.Client, error)
}

// BridgeRouter bridges and NATs the hotspot onto the upstream link.
type BridgeRouter interface {
	Start(ctx context.Context, upstreamIf, apIf string, rules *bridge.RuleStack) error
	Stop(ctx context.Context, rules *bridge.RuleStack) error
	Status(ctx context.Context) (bridge.Status, error)
	Purge(ctx context.Context) error
}

// UpstreamConfig identifies the network to join.
type UpstreamConfig struct {
	SSID     string
	Password string
}

// LifecycleConfig is the desired state for one run. A nil section skips
// that layer: without AP there is no virtual interface, hotspot or bridge;
// without Upstream there is no upstream link or bridge.
type LifecycleConfig struct {
	Upstream *UpstreamConfig
	AP       *hotspot.Settings
}

// Bridged reports whether the bridge layer runs.
func (c LifecycleConfig) Bridged() bool {
	return c.Upstream != nil && c.AP != nil
}

// Clone returns a deep copy so a run is unaffected by later edits.
func (c LifecycleConfig) Clone() LifecycleConfig {
	var out LifecycleConfig
	if c.Upstream != nil {
		u := *c.Upstream
		out.Upstream = &u
	}
	if c.AP != nil {
		s := *c.AP
		s.DNS = append([]string(nil), c.AP.DNS...)
		s.Range.Start = cloneIP(c.AP.Range.Start)
		s.Range.End = cloneIP(c.AP.Range.End)
		if c.AP.Gateway != nil {
			s.Gateway = &net.IPNet{
				IP:   cloneIP(c.AP.Gateway.IP),
				Mask: append(net.IPMask(nil), c.AP.Gateway.Mask...),
			}
		}
		out.AP = &s
	}
	return out
}

func cloneIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	return append(net.IP(nil), ip...)
}
