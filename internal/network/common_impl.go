package network

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// DefaultSystemController is the default RealSystemController instance.
var DefaultSystemController SystemController = &RealSystemController{}

// DefaultCommandExecutor is the default RealCommandExecutor instance.
var DefaultCommandExecutor CommandExecutor = &RealCommandExecutor{}

// RealSystemController is a concrete implementation of SystemController using os functions.
type RealSystemController struct{}

// SysctlPath converts dotted sysctl notation to its /proc/sys path.
// Absolute paths are returned unchanged.
func SysctlPath(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/proc/sys/" + strings.ReplaceAll(name, ".", "/")
}

// ReadSysctl reads a sysctl value.
func (r *RealSystemController) ReadSysctl(path string) (string, error) {
	data, err := os.ReadFile(SysctlPath(path))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteSysctl writes a sysctl value.
func (r *RealSystemController) WriteSysctl(path, value string) error {
	return os.WriteFile(SysctlPath(path), []byte(value), 0644)
}

// IsNotExist checks if an error indicates that a file or directory does not exist.
func (r *RealSystemController) IsNotExist(err error) bool {
	return os.IsNotExist(err)
}

// SignalProcess sends sig to pid.
func (r *RealSystemController) SignalProcess(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}

// RealCommandExecutor is a concrete implementation of CommandExecutor using os/exec.
type RealCommandExecutor struct{}

// RunCommand runs a command and returns its combined output.
func (r *RealCommandExecutor) RunCommand(ctx context.Context, name string, arg ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, arg...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), &CommandError{Name: name, Args: arg, Output: string(output), Err: err}
	}
	return string(output), nil
}
