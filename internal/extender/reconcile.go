package extender

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/hotspot"
	"grimm.is/repeater/internal/upstream"
)

// HealthSnapshot is a point-in-time read of the collaborators. It is
// re-derived on every tick. A nil field means the layer is not configured
// or its probe failed; the matching *Err field then says why.
type HealthSnapshot struct {
	Upstream    *upstream.Status `json:"upstream,omitempty"`
	UpstreamErr string           `json:"upstream_error,omitempty"`
	Clients     []hotspot.Client `json:"clients,omitempty"`
	ClientCount *int             `json:"client_count,omitempty"`
	APErr       string           `json:"ap_error,omitempty"`
	Bridge      *bridge.Status   `json:"bridge,omitempty"`
	BridgeErr   string           `json:"bridge_error,omitempty"`
	At          time.Time        `json:"at"`

	problems []string
}

// Healthy reports whether every probed layer is as desired.
func (h HealthSnapshot) Healthy() bool {
	return len(h.problems) == 0
}

// Problems lists the detected drifts.
func (h HealthSnapshot) Problems() []string {
	return append([]string(nil), h.problems...)
}

// TickAction says what a reconcile tick did.
type TickAction string

const (
	TickIdle           TickAction = "idle"
	TickBusy           TickAction = "busy"
	TickHealthy        TickAction = "healthy"
	TickBackoff        TickAction = "backoff"
	TickRecovered      TickAction = "recovered"
	TickRecoveryFailed TickAction = "recovery-failed"
	TickExhausted      TickAction = "exhausted"
	TickCancelled      TickAction = "cancelled"
)

// TickResult is the outcome of one reconcile tick.
type TickResult struct {
	Action TickAction
	State  State
	Health HealthSnapshot
	Err    error
}

// probe runs fn bounded by timeout. A timeout is reported as
// ErrProbeTimeout; the call is abandoned, not awaited.
func probe[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrProbeTimeout
		}
		return zero, ctx.Err()
	}
}

// health probes every layer cfg enables.
func (o *Orchestrator) health(ctx context.Context, cfg LifecycleConfig) HealthSnapshot {
	snap := HealthSnapshot{At: o.opts.Clock.Now()}

	if cfg.Upstream != nil && o.up != nil {
		st, err := probe(ctx, o.opts.ProbeTimeout, o.up.Status)
		switch {
		case err != nil:
			snap.UpstreamErr = err.Error()
			snap.problems = append(snap.problems, "upstream unknown: "+err.Error())
			if !isCancel(err) {
				o.opts.Metrics.ObserveProbeFailure(string(StepUpstream))
			}
		case !st.Connected:
			snap.Upstream = &st
			snap.problems = append(snap.problems, "upstream disconnected")
		case st.SSID != cfg.Upstream.SSID:
			snap.Upstream = &st
			snap.problems = append(snap.problems, "upstream on "+st.SSID)
		default:
			snap.Upstream = &st
		}
		if snap.Upstream != nil {
			o.opts.Metrics.SetUpstream(snap.Upstream.Connected, snap.Upstream.SignalDBm)
		}
	}

	if cfg.AP != nil && o.ap != nil {
		clients, err := probe(ctx, o.opts.ProbeTimeout, o.ap.Clients)
		if errors.Is(err, hotspot.ErrStationsUnavailable) {
			// Leases still answer; only signal readings are missing.
			o.opts.Metrics.ObserveProbeFailure(string(StepAccessPoint))
			err = nil
		}
		if err != nil {
			snap.APErr = err.Error()
			snap.problems = append(snap.problems, "hotspot down: "+err.Error())
			if !errors.Is(err, hotspot.ErrNotRunning) && !isCancel(err) {
				o.opts.Metrics.ObserveProbeFailure(string(StepAccessPoint))
			}
		} else {
			n := len(clients)
			snap.Clients = clients
			snap.ClientCount = &n
			o.opts.Metrics.SetClients(n)
		}
	}

	if cfg.Bridged() && o.br != nil {
		st, err := probe(ctx, o.opts.ProbeTimeout, o.br.Status)
		if err != nil {
			snap.BridgeErr = err.Error()
			snap.problems = append(snap.problems, "bridge unknown: "+err.Error())
			if !isCancel(err) {
				o.opts.Metrics.ObserveProbeFailure(string(StepBridge))
			}
		} else {
			snap.Bridge = &st
			if !st.Healthy() {
				snap.problems = append(snap.problems, "bridge inactive")
			}
		}
	}
	return snap
}

// Tick runs one reconciliation pass. It does nothing unless running or
// degraded, and is skipped when another operation holds the lifecycle.
func (o *Orchestrator) Tick(ctx context.Context) TickResult {
	if !o.opMu.TryLock() {
		return TickResult{Action: TickBusy, State: o.State()}
	}
	defer o.opMu.Unlock()

	st := o.State()
	if !st.Active() || o.cfg == nil {
		return TickResult{Action: TickIdle, State: st}
	}
	cfg := *o.cfg

	ctx, done := o.beginOp(ctx)
	defer done()

	snap := o.health(ctx, cfg)
	if err := ctx.Err(); err != nil {
		// Checks cut short by Stop or shutdown say nothing about the layers.
		return TickResult{Action: TickCancelled, State: st, Health: snap, Err: err}
	}
	if snap.Healthy() {
		if st == StateDegraded {
			o.update(func() {
				o.attempts = 0
				o.nextAttempt = time.Time{}
			})
			o.transition(StateRunning, "layers healthy again")
		}
		return TickResult{Action: TickHealthy, State: o.State(), Health: snap}
	}

	reason := strings.Join(snap.problems, "; ")
	if st == StateRunning {
		o.transition(StateDegraded, reason)
	}

	now := o.opts.Clock.Now()
	if now.Before(o.nextAttempt) {
		o.logger.Debug("recovery backing off", "until", o.nextAttempt, "problems", reason)
		return TickResult{Action: TickBackoff, State: o.State(), Health: snap}
	}

	o.logger.Info("attempting recovery", "attempt", o.attempts+1, "max", o.opts.MaxAttempts, "problems", reason)
	_, err := o.bringUp(ctx, cfg, true)
	switch {
	case err == nil:
		o.update(func() {
			o.attempts = 0
			o.nextAttempt = time.Time{}
			o.lastErr = nil
		})
		o.transition(StateRunning, "recovered")
		o.persist()
		o.opts.Metrics.ObserveRecovery("ok")
		return TickResult{Action: TickRecovered, State: o.State(), Health: snap}

	case isCancel(err):
		return TickResult{Action: TickCancelled, State: o.State(), Health: snap, Err: err}
	}

	var exhausted bool
	o.update(func() {
		o.attempts++
		o.lastErr = err
		exhausted = o.attempts >= o.opts.MaxAttempts
		if !exhausted {
			o.nextAttempt = now.Add(backoff(o.attempts, o.opts.BackoffInitial, o.opts.BackoffMax))
		}
	})
	if exhausted {
		o.logger.Error("recovery attempts exhausted", "attempts", o.attempts, "error", err)
		o.transition(StateFailed, "recovery exhausted")
		o.opts.Metrics.ObserveRecovery("exhausted")
		return TickResult{Action: TickExhausted, State: o.State(), Health: snap, Err: err}
	}
	o.logger.Warn("recovery failed", "attempt", o.attempts, "retry_at", o.nextAttempt, "error", err)
	o.opts.Metrics.ObserveRecovery("failed")
	return TickResult{Action: TickRecoveryFailed, State: o.State(), Health: snap, Err: err}
}

// backoff returns the wait after the nth consecutive failure: initial
// doubled per failure, capped at max.
func backoff(n int, initial, max time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := float64(initial) * math.Pow(2, float64(n-1))
	if delay > float64(max) {
		delay = float64(max)
	}
	return time.Duration(delay)
}

// Run ticks every Options.Interval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.opts.Interval)
	defer ticker.Stop()

	o.logger.Info("reconcile loop started", "interval", o.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("reconcile loop stopped")
			return
		case <-ticker.C:
			res := o.Tick(ctx)
			if res.Action == TickBusy {
				o.logger.Debug("tick skipped, operation in flight")
			}
		}
	}
}

// StatusReport is the operator view of the extender.
type StatusReport struct {
	State            State          `json:"state"`
	Since            time.Time      `json:"since"`
	RunID            string         `json:"run_id,omitempty"`
	Radio            string         `json:"radio,omitempty"`
	VirtualInterface string         `json:"virtual_interface,omitempty"`
	Attempts         int            `json:"attempts,omitempty"`
	NextAttempt      *time.Time     `json:"next_attempt,omitempty"`
	LastError        string         `json:"last_error,omitempty"`
	Rules            []bridge.Rule  `json:"rules,omitempty"`
	Health           HealthSnapshot `json:"health"`
}

// Status reports the current state with live collaborator snapshots. It
// never blocks on an in-flight operation beyond the probe timeout.
func (o *Orchestrator) Status(ctx context.Context) StatusReport {
	o.mu.Lock()
	rep := StatusReport{
		State:    o.state,
		Since:    o.since,
		RunID:    o.runID,
		Radio:    o.opts.Radio,
		Attempts: o.attempts,
	}
	if o.handle != nil {
		rep.VirtualInterface = o.handle.Name
	}
	if !o.nextAttempt.IsZero() && o.state == StateDegraded {
		t := o.nextAttempt
		rep.NextAttempt = &t
	}
	if o.lastErr != nil {
		rep.LastError = o.lastErr.Error()
	}
	if o.rules != nil {
		rep.Rules = o.rules.Entries()
	}
	var cfg *LifecycleConfig
	if o.cfg != nil {
		c := o.cfg.Clone()
		cfg = &c
	}
	o.mu.Unlock()

	if cfg != nil {
		rep.Health = o.health(ctx, *cfg)
	} else {
		rep.Health = HealthSnapshot{At: o.opts.Clock.Now()}
	}
	return rep
}
