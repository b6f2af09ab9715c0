package cmd

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"grimm.is/repeater/internal/brand"
	"grimm.is/repeater/internal/config"
	"grimm.is/repeater/internal/ctlplane"
)

// RunReload validates the configuration file and has the running daemon
// apply it. The control socket is tried first so the outcome can be
// reported; SIGHUP is the fallback.
func RunReload(configFile string) error {
	Printer.Printf("Validating configuration: %s\n", configFile)
	if _, err := config.LoadAndValidate(configFile); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	Printer.Println("Configuration is valid.")

	if client, err := ctlplane.NewClient(brand.GetSocketPath()); err == nil {
		defer client.Close()
		reply, err := client.Reload()
		if err != nil {
			return fmt.Errorf("reload failed: %w", err)
		}
		return printLifecycle(os.Stdout, Printer, reply)
	}

	pid, err := readPID(brand.GetPIDPath())
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w (is the daemon running?)", err)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	Printer.Printf("Sending SIGHUP to process %s...\n", strconv.Itoa(pid))
	if err := process.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to signal process: %w", err)
	}
	Printer.Println("Reload signal sent successfully.")
	return nil
}
