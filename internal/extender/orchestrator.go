// Package extender sequences the virtual interface, upstream link, hotspot
// and bridge into one lifecycle.
//
// Start brings the layers up in dependency order and rolls back completed
// steps in reverse when one fails. Stop tears down every held layer,
// newest first, and always ends in StateStopped. Tick probes health while
// running, marks the extender degraded on drift and re-drives the same
// bring-up sequence, skipping layers that are still healthy. Only one
// mutating operation runs at a time.
package extender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/radio"
)

// Report describes the outcome of Start or Stop.
type Report struct {
	From State `json:"from"`
	To   State `json:"to"`
	// Noop is set when the extender was already in the requested state.
	Noop bool `json:"noop,omitempty"`
	// Cancelled is set when Stop interrupted an in-flight operation.
	Cancelled bool          `json:"cancelled,omitempty"`
	Steps     []Step        `json:"steps,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator owns the lifecycle of one extender.
type Orchestrator struct {
	opts   Options
	logger *logging.Logger

	vif Virtualizer
	up  UpstreamLink
	ap  AccessPoint
	br  BridgeRouter

	// opMu serializes Start, Stop and recovery.
	opMu sync.Mutex
	// seq orders history entries recorded within the same instant.
	seq atomic.Uint64

	// mu guards the fields below. They are written only by the opMu holder.
	mu          sync.Mutex
	state       State
	since       time.Time
	cfg         *LifecycleConfig
	runID       string
	startedAt   time.Time
	handle      *radio.Handle
	rules       *bridge.RuleStack
	held        layers
	attempts    int
	nextAttempt time.Time
	lastErr     error
	cancel      context.CancelFunc
}

// New creates an Orchestrator in StateStopped. Collaborators for layers the
// configuration never enables may be nil.
func New(opts Options, vif Virtualizer, up UpstreamLink, ap AccessPoint, br BridgeRouter) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{
		opts:   opts,
		logger: opts.Logger,
		vif:    vif,
		up:     up,
		ap:     ap,
		br:     br,
		state:  StateStopped,
		since:  opts.Clock.Now(),
	}
	opts.Metrics.SetState(string(StateStopped), stateNames()...)
	return o
}

func stateNames() []string {
	out := make([]string, len(States))
	for i, s := range States {
		out[i] = string(s)
	}
	return out
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// transition moves the state machine. Caller holds opMu.
func (o *Orchestrator) transition(to State, reason string) {
	o.mu.Lock()
	from := o.state
	if from == to {
		o.mu.Unlock()
		return
	}
	if !CanTransition(from, to) {
		o.mu.Unlock()
		o.logger.Error("refusing invalid transition", "from", from, "to", to, "reason", reason)
		return
	}
	o.state = to
	o.since = o.opts.Clock.Now()
	at := o.since
	o.mu.Unlock()

	o.logger.Info("state changed", "from", from, "to", to, "reason", reason)
	o.opts.Metrics.ObserveTransition(string(from), string(to))
	o.opts.Metrics.SetState(string(to), stateNames()...)
	o.recordTransition(Transition{From: from, To: to, Reason: reason, At: at})
}

// update applies fn to the guarded fields. Caller holds opMu.
func (o *Orchestrator) update(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn()
}

// beginOp registers cancel as the in-flight operation's cancel func.
func (o *Orchestrator) beginOp(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	o.update(func() { o.cancel = cancel })
	return ctx, func() {
		o.update(func() { o.cancel = nil })
		cancel()
	}
}

// orphaned reports whether resources survived a failed rollback or
// teardown. Caller holds opMu.
func (o *Orchestrator) orphaned() bool {
	return o.handle != nil || o.held != (layers{}) || (o.rules != nil && o.rules.Len() > 0)
}

// settle clears the run after a failed Start or a Stop. Layers whose release
// failed stay held and recorded so a later Stop or CleanupStale retries them.
// Caller holds opMu.
func (o *Orchestrator) settle(err error) {
	orphans := o.orphaned()
	o.update(func() {
		o.cfg = nil
		o.attempts = 0
		o.nextAttempt = time.Time{}
		o.lastErr = err
		if !orphans {
			o.runID = ""
			o.rules = nil
		}
	})
	if orphans {
		o.persist()
		o.logger.Warn("resources left behind, stop will retry", "virtual", o.handle, "held", o.held)
		return
	}
	o.clearRun()
}

// Start brings the extender up with cfg. It fails with ErrInvalidState
// unless the extender is stopped. On failure every completed step has been
// rolled back, the state is StateStopped and the error is a *StepError.
// Resources left behind by an earlier failed rollback are released first.
func (o *Orchestrator) Start(ctx context.Context, cfg LifecycleConfig) (Report, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	begin := o.opts.Clock.Now()
	from := o.State()
	if from != StateStopped {
		return Report{From: from, To: from, Noop: from.Active()},
			fmt.Errorf("%w: cannot start while %s", ErrInvalidState, from)
	}
	if cfg.AP != nil && o.opts.Radio == "" {
		return Report{From: from, To: from}, fmt.Errorf("%w: no radio configured", ErrInvalidState)
	}

	if o.orphaned() {
		if _, err := o.teardown(context.WithoutCancel(ctx)); err != nil {
			o.settle(err)
			return Report{From: from, To: from}, fmt.Errorf("release leftover resources: %w", err)
		}
		o.settle(nil)
	}

	ctx, done := o.beginOp(ctx)
	defer done()

	c := cfg.Clone()
	o.update(func() {
		o.cfg = &c
		o.runID = uuid.NewString()
		o.startedAt = begin
		o.rules = bridge.NewRuleStack()
		o.held = layers{}
		o.attempts = 0
		o.nextAttempt = time.Time{}
		o.lastErr = nil
	})
	o.transition(StateInitializing, "start")
	o.persist()

	steps, err := o.bringUp(ctx, c, false)
	if err != nil {
		o.transition(StateStopped, "start failed")
		o.settle(err)
		o.opts.Metrics.ObserveStart("failed")
		o.logger.Error("start failed", "error", err)
		return Report{From: from, To: StateStopped, Steps: steps, Duration: o.opts.Clock.Since(begin)}, err
	}

	o.transition(StateRunning, "start complete")
	o.persist()
	o.opts.Metrics.ObserveStart("ok")
	o.opts.Metrics.SetRules(o.rules.Len())
	o.logger.Info("extender running", "run", o.runID, "steps", len(steps))
	return Report{From: from, To: StateRunning, Steps: steps, Duration: o.opts.Clock.Since(begin)}, nil
}

// Stop tears down every held layer in reverse bring-up order and always
// leaves the extender stopped. An in-flight Start or recovery is cancelled
// first and allowed to finish its current step. Teardown failures are
// returned as a *TeardownError, which matches ErrRollbackPartial. From
// StateStopped it only retries layers a failed rollback left behind.
func (o *Orchestrator) Stop(ctx context.Context) (Report, error) {
	o.mu.Lock()
	cancelled := o.cancel != nil
	if cancelled {
		o.cancel()
	}
	o.mu.Unlock()

	o.opMu.Lock()
	defer o.opMu.Unlock()

	begin := o.opts.Clock.Now()
	from := o.State()
	if from == StateStopped {
		if !o.orphaned() {
			return Report{From: from, To: from, Noop: !cancelled, Cancelled: cancelled}, nil
		}
		o.logger.Info("releasing resources left by a failed rollback")
		steps, err := o.teardown(context.WithoutCancel(ctx))
		o.settle(err)
		return Report{From: from, To: from, Cancelled: cancelled, Steps: steps, Duration: o.opts.Clock.Since(begin)}, err
	}

	o.transition(StateStopping, "stop")
	steps, err := o.teardown(context.WithoutCancel(ctx))
	o.transition(StateStopped, "stop complete")
	o.settle(err)
	o.opts.Metrics.SetRules(0)

	if err != nil {
		o.logger.Warn("stopped with teardown errors", "error", err)
	} else {
		o.logger.Info("extender stopped")
	}
	return Report{From: from, To: StateStopped, Cancelled: cancelled, Steps: steps, Duration: o.opts.Clock.Since(begin)}, err
}

// CleanupStale tears down resources recorded by a previous process that
// exited without stopping. It only runs while stopped.
func (o *Orchestrator) CleanupStale(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if st := o.State(); st != StateStopped {
		return fmt.Errorf("%w: cannot clean up while %s", ErrInvalidState, st)
	}
	if o.orphaned() {
		_, err := o.teardown(context.WithoutCancel(ctx))
		o.settle(err)
		return err
	}
	rec, err := o.loadRun()
	if err != nil || rec == nil {
		return err
	}
	o.logger.Warn("cleaning up stale run", "run", rec.ID, "started", rec.StartedAt)

	ctx = context.WithoutCancel(ctx)
	te := &TeardownError{}
	if o.br != nil && (rec.Held.Bridge || len(rec.Rules) > 0) {
		te.add(StepBridge, o.br.Stop(ctx, bridge.NewRuleStack(rec.Rules...)))
		te.add(StepBridge, o.br.Purge(ctx))
	}
	if o.ap != nil && rec.Held.AP {
		te.add(StepAccessPoint, o.ap.Stop(ctx))
	}
	if o.up != nil && rec.Held.Upstream {
		te.add(StepUpstream, o.up.Disconnect(ctx))
	}
	if o.vif != nil && rec.Handle != nil {
		te.add(StepVirtualInterface, o.vif.Destroy(ctx, *rec.Handle))
	}
	if err := te.orNil(); err != nil {
		// Keep the record; the next boot tries again.
		return err
	}
	o.clearRun()
	return nil
}

// LastError returns the error of the last failed Start, recovery or Stop.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Config returns a copy of the active run's configuration.
func (o *Orchestrator) Config() (LifecycleConfig, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cfg == nil {
		return LifecycleConfig{}, false
	}
	return o.cfg.Clone(), true
}

func (o *Orchestrator) upstreamIf() string {
	if o.up == nil {
		return ""
	}
	return o.up.Interface()
}

// isCancel reports whether err comes from a cancelled operation.
func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
