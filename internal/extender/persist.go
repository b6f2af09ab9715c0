package extender

import (
	"errors"
	"fmt"
	"time"

	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/radio"
	"grimm.is/repeater/internal/state"
)

// Store is the persistence the orchestrator needs. *state.SQLiteStore
// satisfies it.
type Store interface {
	GetJSON(bucket, key string, v any) error
	SetJSON(bucket, key string, v any) error
	SetJSONWithTTL(bucket, key string, v any, ttl time.Duration) error
	Delete(bucket, key string) error
}

const (
	runKey           = "current"
	historyRetention = 7 * 24 * time.Hour
)

// layers records which collaborators currently hold resources for the run.
type layers struct {
	Virtual  bool `json:"virtual"`
	Upstream bool `json:"upstream"`
	AP       bool `json:"ap"`
	Bridge   bool `json:"bridge"`
}

// runRecord is what a later process needs to undo this run after a crash.
type runRecord struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	Radio      string        `json:"radio"`
	Handle     *radio.Handle `json:"handle,omitempty"`
	UpstreamIf string        `json:"upstream_if,omitempty"`
	Held       layers        `json:"held"`
	Rules      []bridge.Rule `json:"rules,omitempty"`
}

// Transition is one lifecycle history entry.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// persist writes the run record. Caller holds opMu.
func (o *Orchestrator) persist() {
	if o.opts.Store == nil || o.runID == "" {
		return
	}
	rec := runRecord{
		ID:         o.runID,
		StartedAt:  o.startedAt,
		Radio:      o.opts.Radio,
		Handle:     o.handle,
		UpstreamIf: o.upstreamIf(),
		Held:       o.held,
	}
	if o.rules != nil {
		rec.Rules = o.rules.Entries()
	}
	if err := o.opts.Store.SetJSON(state.BucketExtender, runKey, rec); err != nil {
		o.logger.Warn("failed to persist run record", "error", err)
	}
}

func (o *Orchestrator) clearRun() {
	if o.opts.Store == nil {
		return
	}
	if err := o.opts.Store.Delete(state.BucketExtender, runKey); err != nil && !errors.Is(err, state.ErrNotFound) {
		o.logger.Warn("failed to clear run record", "error", err)
	}
}

func (o *Orchestrator) loadRun() (*runRecord, error) {
	if o.opts.Store == nil {
		return nil, nil
	}
	var rec runRecord
	err := o.opts.Store.GetJSON(state.BucketExtender, runKey, &rec)
	if errors.Is(err, state.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load run record: %w", err)
	}
	return &rec, nil
}

func (o *Orchestrator) recordTransition(t Transition) {
	if o.opts.Store == nil {
		return
	}
	key := fmt.Sprintf("%020d-%06d", t.At.UnixNano(), o.seq.Add(1))
	if err := o.opts.Store.SetJSONWithTTL(state.BucketHistory, key, t, historyRetention); err != nil {
		o.logger.Debug("failed to record transition", "error", err)
	}
}
