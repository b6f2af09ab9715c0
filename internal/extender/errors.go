package extender

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current state. It is a sequencing error and never retried.
	ErrInvalidState = errors.New("invalid state")

	// ErrRollbackPartial marks a best-effort teardown that hit errors but
	// still ran to completion. Callers should treat it as a warning.
	ErrRollbackPartial = errors.New("rollback partially failed")

	// ErrProbeTimeout is returned when a health probe exceeds the probe
	// timeout. The probed layer is reported as unknown.
	ErrProbeTimeout = errors.New("probe timed out")
)

// Step names one layer of the bring-up sequence.
type Step string

const (
	StepVirtualInterface Step = "virtual-interface"
	StepUpstream         Step = "upstream"
	StepAccessPoint      Step = "access-point"
	StepBridge           Step = "bridge"
)

// StepError reports the bring-up step that failed and the outcome of
// rolling back the steps completed before it. Rollback is nil or a
// *TeardownError.
type StepError struct {
	Step     Step
	Err      error
	Rollback error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Step, e.Err)
	if e.Rollback != nil {
		msg += fmt.Sprintf(" (rollback: %v)", e.Rollback)
	}
	return msg
}

func (e *StepError) Unwrap() []error {
	if e.Rollback == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Rollback}
}

// LayerFailure is one failed teardown call.
type LayerFailure struct {
	Layer Step
	Err   error
}

// TeardownError collects every failure of a best-effort teardown. It
// always matches ErrRollbackPartial.
type TeardownError struct {
	Failures []LayerFailure
}

func (e *TeardownError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Layer, f.Err))
	}
	return "teardown incomplete: " + strings.Join(parts, "; ")
}

func (e *TeardownError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrRollbackPartial)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

func (e *TeardownError) add(layer Step, err error) {
	if err != nil {
		e.Failures = append(e.Failures, LayerFailure{Layer: layer, Err: err})
	}
}

func (e *TeardownError) orNil() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e
}
