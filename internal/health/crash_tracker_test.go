package health

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"grimm.is/repeater/internal/clock"
)

var crashT0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func writeCrashState(t *testing.T, dir string, st CrashState) {
	t.Helper()
	data, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, StateFileName), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCrashTracker_CheckCrashLoop_FirstRun(t *testing.T) {
	tmpDir := t.TempDir()
	ct := NewCrashTracker(tmpDir, clock.NewMockClock(crashT0))

	held, err := ct.CheckCrashLoop()
	if err != nil {
		t.Fatalf("CheckCrashLoop failed: %v", err)
	}
	if held {
		t.Error("first run should not hold the extender down")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, StateFileName)); os.IsNotExist(err) {
		t.Error("state file was not created")
	}
	if ct.Crashes() != 1 {
		t.Errorf("expected 1 crash, got %d", ct.Crashes())
	}
}

func TestCrashTracker_RapidRestartsTrigger(t *testing.T) {
	tmpDir := t.TempDir()
	clk := clock.NewMockClock(crashT0)

	var held bool
	for i := 0; i < CrashThreshold; i++ {
		ct := NewCrashTracker(tmpDir, clk)
		var err error
		held, err = ct.CheckCrashLoop()
		if err != nil {
			t.Fatalf("start %d: %v", i+1, err)
		}
		if i < CrashThreshold-1 && held {
			t.Fatalf("start %d held too early", i+1)
		}
		clk.Advance(30 * time.Second)
	}
	if !held {
		t.Error("expected crash loop after threshold restarts")
	}
}

func TestCrashTracker_CheckCrashLoop_ResetsOutsideWindow(t *testing.T) {
	tmpDir := t.TempDir()
	writeCrashState(t, tmpDir, CrashState{
		ConsecutiveCrashes: CrashThreshold - 1,
		LastStartTime:      crashT0.Add(-CrashWindow - time.Minute),
	})

	ct := NewCrashTracker(tmpDir, clock.NewMockClock(crashT0))
	held, err := ct.CheckCrashLoop()
	if err != nil {
		t.Fatalf("CheckCrashLoop failed: %v", err)
	}
	if held {
		t.Error("last start was outside the window")
	}
	if ct.Crashes() != 1 {
		t.Errorf("expected count reset to 1, got %d", ct.Crashes())
	}
}

func TestCrashTracker_Reset(t *testing.T) {
	tmpDir := t.TempDir()
	writeCrashState(t, tmpDir, CrashState{ConsecutiveCrashes: 5, LastStartTime: crashT0})

	ct := NewCrashTracker(tmpDir, clock.NewMockClock(crashT0.Add(time.Second)))
	if _, err := ct.CheckCrashLoop(); err != nil {
		t.Fatal(err)
	}
	if err := ct.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if ct.Crashes() != 0 {
		t.Errorf("expected 0 after reset, got %d", ct.Crashes())
	}

	data, _ := os.ReadFile(filepath.Join(tmpDir, StateFileName))
	var loaded CrashState
	json.Unmarshal(data, &loaded)
	if loaded.ConsecutiveCrashes != 0 {
		t.Errorf("persisted count should be 0, got %d", loaded.ConsecutiveCrashes)
	}
	if !loaded.LastStartTime.Equal(crashT0.Add(time.Second)) {
		t.Errorf("last start not kept: %v", loaded.LastStartTime)
	}
}

func TestCrashTracker_CorruptState(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, StateFileName), []byte("not valid json{{{"), 0o644)

	ct := NewCrashTracker(tmpDir, clock.NewMockClock(crashT0))
	held, err := ct.CheckCrashLoop()
	if err != nil {
		t.Fatalf("corrupt state should be tolerated: %v", err)
	}
	if held {
		t.Error("corrupt state should count as a fresh start")
	}
	if ct.Crashes() != 1 {
		t.Errorf("expected 1 after corrupt state, got %d", ct.Crashes())
	}
}

func TestCrashTracker_StateDirectory_Created(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")

	ct := NewCrashTracker(dir, nil)
	if _, err := ct.CheckCrashLoop(); err != nil {
		t.Fatalf("CheckCrashLoop should create nested directories: %v", err)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("state directory was not created")
	}
}

func TestCrashTracker_StabilityTimerStopsWithContext(t *testing.T) {
	tmpDir := t.TempDir()
	ct := NewCrashTracker(tmpDir, clock.NewMockClock(crashT0))
	if _, err := ct.CheckCrashLoop(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ct.StartStabilityTimer(ctx)
	cancel()
	time.Sleep(10 * time.Millisecond)

	if ct.Crashes() != 1 {
		t.Errorf("cancelled timer must not reset, got %d", ct.Crashes())
	}
}
