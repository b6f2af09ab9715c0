package health

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"grimm.is/repeater/internal/clock"
)

const (
	// CrashThreshold is the number of rapid restarts after which the daemon
	// stops bringing the extender up on its own.
	CrashThreshold = 3
	// CrashWindow is how soon after the previous start a restart counts as a
	// crash.
	CrashWindow = 5 * time.Minute
	// StabilityDuration is the uptime after which the count is reset.
	StabilityDuration = 5 * time.Minute
	// StateFileName is the name of the state file.
	StateFileName = "crash.state"
)

// CrashState is persisted between daemon starts.
type CrashState struct {
	ConsecutiveCrashes int       `json:"consecutive_crashes"`
	LastStartTime      time.Time `json:"last_start_time"`
}

// CrashTracker detects a daemon that keeps dying shortly after start, for
// example because bring-up wedges the radio driver.
type CrashTracker struct {
	stateDir string
	clock    clock.Clock

	mu    sync.Mutex
	state CrashState
}

// NewCrashTracker creates a tracker persisting to stateDir. A nil clk uses
// the wall clock.
func NewCrashTracker(stateDir string, clk clock.Clock) *CrashTracker {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &CrashTracker{stateDir: stateDir, clock: clk}
}

// CheckCrashLoop records this start and reports whether the daemon should
// hold the extender down until an operator starts it.
func (ct *CrashTracker) CheckCrashLoop() (bool, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	statePath := filepath.Join(ct.stateDir, StateFileName)
	if err := os.MkdirAll(ct.stateDir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create state dir: %w", err)
	}

	data, err := os.ReadFile(statePath)
	if err == nil {
		if err := json.Unmarshal(data, &ct.state); err != nil {
			ct.state = CrashState{}
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read state file: %w", err)
	}

	now := ct.clock.Now()
	if !ct.state.LastStartTime.IsZero() && now.Sub(ct.state.LastStartTime) < CrashWindow {
		ct.state.ConsecutiveCrashes++
	} else {
		ct.state.ConsecutiveCrashes = 1
	}
	ct.state.LastStartTime = now

	if err := ct.saveState(statePath); err != nil {
		return false, err
	}
	return ct.state.ConsecutiveCrashes >= CrashThreshold, nil
}

// Crashes returns the current consecutive crash count.
func (ct *CrashTracker) Crashes() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.state.ConsecutiveCrashes
}

// StartStabilityTimer resets the count once the daemon has stayed up for
// StabilityDuration, unless ctx ends first.
func (ct *CrashTracker) StartStabilityTimer(ctx context.Context) {
	go func() {
		t := time.NewTimer(StabilityDuration)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			ct.Reset()
		}
	}()
}

// Reset clears the crash count.
func (ct *CrashTracker) Reset() error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.state.ConsecutiveCrashes = 0
	return ct.saveState(filepath.Join(ct.stateDir, StateFileName))
}

func (ct *CrashTracker) saveState(path string) error {
	data, err := json.Marshal(ct.state)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
