package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/text/message"

	"grimm.is/repeater/internal/ctlplane"
)

// RunUp asks the daemon to start the extender.
func RunUp() error {
	return runLifecycle(func(c ctlplane.ControlPlaneClient) (*ctlplane.LifecycleReply, error) {
		return c.Up()
	})
}

// RunDown asks the daemon to stop the extender.
func RunDown() error {
	return runLifecycle(func(c ctlplane.ControlPlaneClient) (*ctlplane.LifecycleReply, error) {
		return c.Down()
	})
}

func runLifecycle(call func(ctlplane.ControlPlaneClient) (*ctlplane.LifecycleReply, error)) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := call(client)
	if err != nil {
		return err
	}
	return printLifecycle(os.Stdout, Printer, reply)
}

// printLifecycle reports the outcome of Up, Down or Reload. A failed
// operation is returned as an error after its steps are listed.
func printLifecycle(w io.Writer, p *message.Printer, reply *ctlplane.LifecycleReply) error {
	rep := reply.Report
	if reply.Failed() {
		if len(rep.Steps) > 0 {
			p.Fprintf(w, "%s\n", styleMuted.Render(fmt.Sprintf("steps attempted: %v", rep.Steps)))
		}
		return errors.New(reply.Error)
	}
	if rep.Noop {
		p.Fprintf(w, "Extender already %s.\n", stateStyle(rep.To).Render(string(rep.To)))
		return nil
	}
	p.Fprintf(w, "Extender %s in %s.\n", stateStyle(rep.To).Render(string(rep.To)), rep.Duration.Round(time.Millisecond))
	if rep.Cancelled {
		p.Fprintf(w, "%s\n", styleWarn.Render("An operation in progress was cancelled."))
	}
	return nil
}
