package cmd

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"grimm.is/repeater/internal/brand"
)

// stopWait bounds how long RunStop waits for the daemon to tear down.
const stopWait = 40 * time.Second

// RunStop signals the daemon to stop and waits for it to remove its PID
// file. The daemon stops the extender before exiting.
func RunStop() error {
	pidFile := brand.GetPIDPath()
	pid, err := readPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no PID file found at %s (is daemon running?)", pidFile)
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	Printer.Printf("Stopping %s (PID: %s)...\n", brand.Name, strconv.Itoa(pid))
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(stopWait)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(pidFile); os.IsNotExist(err) {
			Printer.Printf("Stopped.\n")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	Printer.Println("Warning: PID file still exists. Process might be stuck or slow to shutdown.")
	return nil
}
