package network

import (
	"fmt"
	"strings"
)

// CommandError reports an external command that exited unsuccessfully.
// It carries the raw output so operators see what the tool printed.
type CommandError struct {
	Name   string
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %s %s failed: %v", e.Name, strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ", output: " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
