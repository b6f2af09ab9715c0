package extender

import (
	"context"
	"errors"
	"fmt"

	"grimm.is/repeater/internal/hotspot"
)

// step is one layer of the bring-up sequence.
type step struct {
	name Step
	// present reports whether the layer is already healthy. Only consulted
	// during recovery.
	present func(ctx context.Context) bool
	up      func(ctx context.Context) error
	down    func(ctx context.Context) error
}

// plan returns the enabled steps for cfg in bring-up order. Caller holds opMu.
func (o *Orchestrator) plan(cfg LifecycleConfig, recovering bool) []step {
	var steps []step
	if cfg.AP != nil {
		steps = append(steps, o.virtualStep())
	}
	if cfg.Upstream != nil {
		steps = append(steps, o.upstreamStep(*cfg.Upstream))
	}
	if cfg.AP != nil {
		settings := *cfg.AP
		if cfg.Bridged() {
			settings.Bridge = o.opts.BridgeName
		}
		steps = append(steps, o.accessPointStep(settings, recovering))
	}
	if cfg.Bridged() {
		steps = append(steps, o.bridgeStep(recovering))
	}
	return steps
}

// bringUp runs the plan for cfg. On failure the steps completed by this call
// are rolled back in reverse and a *StepError is returned. Collaborators
// receive a context that is never cancelled; ctx is checked between steps.
func (o *Orchestrator) bringUp(ctx context.Context, cfg LifecycleConfig, recovering bool) ([]Step, error) {
	call := context.WithoutCancel(ctx)
	var done []step
	var names []Step

	for _, s := range o.plan(cfg, recovering) {
		if err := ctx.Err(); err != nil {
			return names, &StepError{Step: s.name, Err: err, Rollback: o.rollback(call, done)}
		}
		if recovering && s.present != nil && s.present(call) {
			o.logger.Debug("layer healthy, skipping", "step", s.name)
			continue
		}
		o.logger.Info("bringing up", "step", s.name)
		if err := s.up(call); err != nil {
			o.logger.Warn("step failed, rolling back", "step", s.name, "error", err, "completed", len(done))
			return names, &StepError{Step: s.name, Err: err, Rollback: o.rollback(call, done)}
		}
		done = append(done, s)
		names = append(names, s.name)
		o.persist()
	}
	return names, nil
}

// rollback undoes done in reverse, continuing past failures.
func (o *Orchestrator) rollback(ctx context.Context, done []step) error {
	te := &TeardownError{}
	for i := len(done) - 1; i >= 0; i-- {
		te.add(done[i].name, done[i].down(ctx))
	}
	o.persist()
	return te.orNil()
}

// teardown stops every held layer: bridge, hotspot, upstream, then the
// virtual interface. Caller holds opMu.
func (o *Orchestrator) teardown(ctx context.Context) ([]Step, error) {
	te := &TeardownError{}
	var steps []Step
	if o.held.Bridge || (o.rules != nil && o.rules.Len() > 0) {
		te.add(StepBridge, o.stopBridge(ctx))
		steps = append(steps, StepBridge)
	}
	if o.held.AP {
		te.add(StepAccessPoint, o.stopAccessPoint(ctx))
		steps = append(steps, StepAccessPoint)
	}
	if o.held.Upstream {
		te.add(StepUpstream, o.disconnectUpstream(ctx))
		steps = append(steps, StepUpstream)
	}
	if o.held.Virtual {
		te.add(StepVirtualInterface, o.destroyVirtual(ctx))
		steps = append(steps, StepVirtualInterface)
	}
	return steps, te.orNil()
}

func (o *Orchestrator) virtualStep() step {
	return step{
		name: StepVirtualInterface,
		present: func(ctx context.Context) bool {
			if o.handle == nil {
				return false
			}
			ok, err := o.vif.Exists(ctx, *o.handle)
			if err != nil {
				o.logger.Warn("virtual interface probe failed", "error", err)
			}
			return ok
		},
		up: func(ctx context.Context) error {
			if o.handle != nil {
				// Stale handle: the device vanished but the reservation is
				// still held.
				if err := o.destroyVirtual(ctx); err != nil {
					return fmt.Errorf("release stale %s: %w", o.handle, err)
				}
			}
			h, err := o.vif.Create(ctx, o.opts.Radio, o.opts.APSuffix)
			if err != nil {
				return err
			}
			o.update(func() {
				o.handle = &h
				o.held.Virtual = true
			})
			return nil
		},
		down: o.destroyVirtual,
	}
}

func (o *Orchestrator) destroyVirtual(ctx context.Context) error {
	if o.handle == nil {
		o.update(func() { o.held.Virtual = false })
		return nil
	}
	if err := o.vif.Destroy(ctx, *o.handle); err != nil {
		return err
	}
	o.update(func() {
		o.handle = nil
		o.held.Virtual = false
	})
	return nil
}

func (o *Orchestrator) upstreamStep(u UpstreamConfig) step {
	return step{
		name: StepUpstream,
		present: func(ctx context.Context) bool {
			st, err := probe(ctx, o.opts.ProbeTimeout, o.up.Status)
			return err == nil && st.Connected && st.SSID == u.SSID
		},
		up: func(ctx context.Context) error {
			if err := o.up.Connect(ctx, u.SSID, u.Password); err != nil {
				return err
			}
			o.update(func() { o.held.Upstream = true })
			return nil
		},
		down: o.disconnectUpstream,
	}
}

func (o *Orchestrator) disconnectUpstream(ctx context.Context) error {
	if err := o.up.Disconnect(ctx); err != nil {
		return err
	}
	o.update(func() { o.held.Upstream = false })
	return nil
}

func (o *Orchestrator) accessPointStep(s hotspot.Settings, recovering bool) step {
	return step{
		name: StepAccessPoint,
		present: func(ctx context.Context) bool {
			return o.ap.Alive(ctx)
		},
		up: func(ctx context.Context) error {
			if o.handle == nil {
				return fmt.Errorf("%w: no virtual interface", ErrInvalidState)
			}
			if recovering {
				// The bridge holds the AP interface and its addresses; it is
				// rebuilt after the hotspot restarts.
				if o.held.Bridge {
					if err := o.stopBridge(ctx); err != nil {
						o.logger.Warn("bridge stop before hotspot restart failed", "error", err)
					}
				}
				if o.held.AP {
					if err := o.stopAccessPoint(ctx); err != nil {
						return fmt.Errorf("clear dead hotspot: %w", err)
					}
				}
			}
			if err := o.ap.Configure(o.handle.Name, s); err != nil {
				return err
			}
			err := o.ap.Start(ctx)
			if err != nil && !errors.Is(err, hotspot.ErrAlreadyRunning) {
				return err
			}
			o.update(func() { o.held.AP = true })
			return nil
		},
		down: o.stopAccessPoint,
	}
}

func (o *Orchestrator) stopAccessPoint(ctx context.Context) error {
	if err := o.ap.Stop(ctx); err != nil {
		return err
	}
	o.update(func() { o.held.AP = false })
	return nil
}

func (o *Orchestrator) bridgeStep(recovering bool) step {
	return step{
		name: StepBridge,
		present: func(ctx context.Context) bool {
			if !o.held.Bridge {
				return false
			}
			st, err := probe(ctx, o.opts.ProbeTimeout, o.br.Status)
			return err == nil && st.Healthy()
		},
		up: func(ctx context.Context) error {
			if recovering && o.held.Bridge {
				if err := o.stopBridge(ctx); err != nil {
					o.logger.Warn("clearing degraded bridge failed", "error", err)
				}
			}
			if o.handle == nil {
				return fmt.Errorf("%w: no virtual interface", ErrInvalidState)
			}
			if err := o.br.Start(ctx, o.up.Interface(), o.handle.Name, o.rules); err != nil {
				return err
			}
			o.update(func() { o.held.Bridge = true })
			o.opts.Metrics.SetRules(o.rules.Len())
			return nil
		},
		down: o.stopBridge,
	}
}

func (o *Orchestrator) stopBridge(ctx context.Context) error {
	err := o.br.Stop(ctx, o.rules)
	// Stop is best effort and always unwinds the rule stack, so the layer is
	// released even when it reports errors.
	o.update(func() { o.held.Bridge = false })
	if o.rules != nil {
		o.opts.Metrics.SetRules(o.rules.Len())
	}
	return err
}
