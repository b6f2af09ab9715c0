package health

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"grimm.is/repeater/internal/clock"
	"grimm.is/repeater/internal/extender"
	"grimm.is/repeater/internal/network"
	"grimm.is/repeater/internal/state"
)

// StatusSource reports the extender's live status.
type StatusSource interface {
	Status(ctx context.Context) extender.StatusReport
}

// extenderChecks shares one status probe between the per-layer checks of a
// single report.
type extenderChecks struct {
	src   StatusSource
	clock clock.Clock
	reuse time.Duration

	mu   sync.Mutex
	last *extender.StatusReport
	at   time.Time
}

func (e *extenderChecks) report(ctx context.Context) extender.StatusReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last != nil && e.clock.Since(e.at) < e.reuse {
		return *e.last
	}
	rep := e.src.Status(ctx)
	e.last = &rep
	e.at = e.clock.Now()
	return rep
}

// RegisterExtender adds the lifecycle, upstream, hotspot and bridge checks,
// all derived from one call to src.Status per report.
func RegisterExtender(c *Checker, src StatusSource) {
	e := &extenderChecks{src: src, clock: c.clock, reuse: time.Second}
	c.Register("lifecycle", e.lifecycle)
	c.Register("upstream", e.upstream)
	c.Register("hotspot", e.hotspot)
	c.Register("bridge", e.bridge)
}

func (e *extenderChecks) lifecycle(ctx context.Context) Check {
	rep := e.report(ctx)
	check := Check{LastChecked: rep.Health.At}
	switch rep.State {
	case extender.StateRunning:
		check.Status = StatusHealthy
		check.Message = "running since " + rep.Since.Format(time.RFC3339)
	case extender.StateDegraded:
		check.Status = StatusDegraded
		check.Message = strings.Join(rep.Health.Problems(), "; ")
		if check.Message == "" {
			check.Message = "degraded"
		}
		if rep.Attempts > 0 {
			check.Message = fmt.Sprintf("%s (recovery attempt %d)", check.Message, rep.Attempts)
		}
	case extender.StateInitializing, extender.StateStopping:
		check.Status = StatusDegraded
		check.Message = string(rep.State)
	case extender.StateFailed:
		check.Status = StatusUnhealthy
		check.Message = "failed: " + rep.LastError
	default:
		check.Status = StatusUnhealthy
		check.Message = string(rep.State)
	}
	return check
}

func (e *extenderChecks) upstream(ctx context.Context) Check {
	h := e.report(ctx).Health
	check := Check{LastChecked: h.At}
	switch {
	case h.UpstreamErr != "":
		check.Status = StatusUnhealthy
		check.Message = h.UpstreamErr
	case h.Upstream == nil:
		check.Status = StatusHealthy
		check.Message = "not active"
	case !h.Upstream.Connected:
		check.Status = StatusUnhealthy
		check.Message = "disconnected"
	default:
		check.Status = StatusHealthy
		check.Message = "connected to " + h.Upstream.SSID
		if h.Upstream.SignalDBm != nil {
			check.Message += fmt.Sprintf(" (%d dBm)", *h.Upstream.SignalDBm)
		}
		if h.Upstream.Reachable != nil && !*h.Upstream.Reachable {
			check.Status = StatusDegraded
			check.Message += ", probe target unreachable"
		}
	}
	return check
}

func (e *extenderChecks) hotspot(ctx context.Context) Check {
	h := e.report(ctx).Health
	check := Check{LastChecked: h.At}
	switch {
	case h.APErr != "":
		check.Status = StatusUnhealthy
		check.Message = h.APErr
	case h.ClientCount == nil:
		check.Status = StatusHealthy
		check.Message = "not active"
	default:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("%d clients", *h.ClientCount)
	}
	return check
}

func (e *extenderChecks) bridge(ctx context.Context) Check {
	rep := e.report(ctx)
	h := rep.Health
	check := Check{LastChecked: h.At}
	switch {
	case h.BridgeErr != "":
		check.Status = StatusUnhealthy
		check.Message = h.BridgeErr
	case h.Bridge == nil:
		check.Status = StatusHealthy
		check.Message = "not active"
	case !h.Bridge.Healthy():
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("running=%t forwarding=%t nat=%t bridge=%t",
			h.Bridge.Running, h.Bridge.ForwardingEnabled, h.Bridge.NATEnabled, h.Bridge.BridgeActive)
	default:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("%d rules installed", len(rep.Rules))
	}
	return check
}

// CheckInterfaces verifies that every interface names returns exists and is
// up.
func CheckInterfaces(nl network.Netlinker, names func() []string) CheckFunc {
	return func(ctx context.Context) Check {
		start := time.Now()
		check := Check{LastChecked: start, Status: StatusHealthy}

		var missing, down []string
		list := names()
		for _, name := range list {
			link, err := nl.LinkByName(name)
			if err != nil {
				missing = append(missing, name)
				continue
			}
			if link.Attrs().Flags&net.FlagUp == 0 {
				down = append(down, name)
			}
		}

		switch {
		case len(missing) > 0:
			check.Status = StatusUnhealthy
			check.Message = "missing: " + strings.Join(missing, ", ")
		case len(down) > 0:
			check.Status = StatusDegraded
			check.Message = "down: " + strings.Join(down, ", ")
		default:
			check.Message = fmt.Sprintf("%d interfaces up", len(list))
		}

		check.Duration = time.Since(start)
		return check
	}
}

// CheckStore verifies the state store answers queries.
func CheckStore(s state.Store) CheckFunc {
	return func(ctx context.Context) Check {
		start := time.Now()
		check := Check{LastChecked: start}

		buckets, err := s.ListBuckets()
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("state store: %v", err)
		} else {
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("%d buckets", len(buckets))
		}

		check.Duration = time.Since(start)
		return check
	}
}
