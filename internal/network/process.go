package network

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Process tracks a self-daemonizing program (hostapd -B, dnsmasq,
// wpa_supplicant -B) through the PID file it writes.
type Process struct {
	Name    string
	PIDFile string

	cmd CommandExecutor
	sys SystemController

	// PollInterval and WaitTimeout bound the start and stop waits.
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// NewProcess creates a Process handle. Nothing is started.
func NewProcess(name, pidFile string, cmd CommandExecutor, sys SystemController) *Process {
	if cmd == nil {
		cmd = DefaultCommandExecutor
	}
	if sys == nil {
		sys = DefaultSystemController
	}
	return &Process{
		Name:         name,
		PIDFile:      pidFile,
		cmd:          cmd,
		sys:          sys,
		PollInterval: 100 * time.Millisecond,
		WaitTimeout:  3 * time.Second,
	}
}

// PID reads the process ID from the PID file.
func (p *Process) PID() (int, error) {
	data, err := os.ReadFile(p.PIDFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", p.PIDFile)
	}
	return pid, nil
}

// Alive reports whether the recorded process still exists.
func (p *Process) Alive() bool {
	pid, err := p.PID()
	if err != nil {
		return false
	}
	return p.sys.SignalProcess(pid, 0) == nil
}

// Start runs the program with args and waits until it has written a PID
// file naming a live process. The program must daemonize itself.
func (p *Process) Start(ctx context.Context, args ...string) error {
	if _, err := p.cmd.RunCommand(ctx, p.Name, args...); err != nil {
		return err
	}

	deadline := time.Now().Add(p.WaitTimeout)
	for {
		if p.Alive() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s did not come up: no live pid in %s", p.Name, p.PIDFile)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.PollInterval):
		}
	}
}

// Stop terminates the process and removes its PID file. Stopping a process
// that is not running succeeds.
func (p *Process) Stop(ctx context.Context) error {
	pid, err := p.PID()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		os.Remove(p.PIDFile)
		return nil
	}

	if err := p.sys.SignalProcess(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			os.Remove(p.PIDFile)
			return nil
		}
		return fmt.Errorf("signal %s (pid %d): %w", p.Name, pid, err)
	}

	deadline := time.Now().Add(p.WaitTimeout)
	for p.sys.SignalProcess(pid, 0) == nil {
		if time.Now().After(deadline) {
			if err := p.sys.SignalProcess(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
				return fmt.Errorf("kill %s (pid %d): %w", p.Name, pid, err)
			}
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.PollInterval):
		}
	}

	if err := os.Remove(p.PIDFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
