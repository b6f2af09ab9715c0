package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/text/message"

	"grimm.is/repeater/internal/brand"
	"grimm.is/repeater/internal/ctlplane"
	"grimm.is/repeater/internal/extender"
)

// RunStatus queries the daemon for current status and prints it
func RunStatus(asJSON bool) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if asJSON {
		return printJSON(os.Stdout, reply)
	}
	renderStatus(os.Stdout, Printer, reply, time.Now())
	return nil
}

// ErrReported marks an error whose message was already printed.
var ErrReported = errors.New("error already reported")

// dialControl opens the daemon's control socket. Tests replace it.
var dialControl = func() (ctlplane.ControlPlaneClient, error) {
	return ctlplane.NewClient(brand.GetSocketPath())
}

// connect dials the daemon, printing a hint when it is not running.
func connect() (ctlplane.ControlPlaneClient, error) {
	client, err := dialControl()
	if err != nil {
		Printer.Fprintf(os.Stderr, "Failed to connect to daemon: %v\n", err)
		Printer.Fprintf(os.Stderr, "Is the daemon running? Start with: %s start\n", brand.BinaryName)
		return nil, ErrReported
	}
	return client, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderStatus writes the operator view of reply.
func renderStatus(w io.Writer, p *message.Printer, reply *ctlplane.GetStatusReply, now time.Time) {
	d := reply.Daemon
	st := reply.Status

	p.Fprintf(w, "%s %s\n", styleTitle.Render(brand.Name), styleMuted.Render(fmt.Sprintf("%s (PID %d)", d.Version, d.PID)))
	if d.HeldDown {
		p.Fprintf(w, "%s\n", styleBad.Render("Held down after repeated crashes; run '"+brand.BinaryName+" up' to start."))
	}
	p.Fprintln(w)

	p.Fprintf(w, "State:      %s\n", stateStyle(st.State).Render(string(st.State)))
	p.Fprintf(w, "Since:      %s\n", fmt.Sprintf("%s (%s ago)", st.Since.Format(time.RFC3339), now.Sub(st.Since).Round(time.Second)))
	if st.State != extender.StateStopped {
		p.Fprintf(w, "Upstream:   %s\n", describeUpstream(st.Health))
		p.Fprintf(w, "Hotspot:    %s\n", describeHotspot(st))
		if n := st.Health.ClientCount; n != nil {
			p.Fprintf(w, "%d clients connected\n", *n)
		}
		p.Fprintf(w, "Bridge:     %s\n", describeBridge(st))
	}
	if st.NextAttempt != nil {
		p.Fprintf(w, "Next retry: %s (attempt %d)\n", st.NextAttempt.Format(time.TimeOnly), st.Attempts+1)
	}
	if st.LastError != "" {
		p.Fprintf(w, "Last error: %s\n", styleBad.Render(st.LastError))
	}
}

func describeUpstream(h extender.HealthSnapshot) string {
	u := h.Upstream
	switch {
	case u == nil && h.UpstreamErr != "":
		return styleBad.Render("unknown") + " (" + h.UpstreamErr + ")"
	case u == nil:
		return styleMuted.Render("not configured")
	case !u.Connected:
		return styleBad.Render("disconnected")
	}

	var b strings.Builder
	b.WriteString(styleGood.Render("connected"))
	b.WriteString(" to " + u.SSID)
	if u.SignalDBm != nil {
		fmt.Fprintf(&b, " (%d dBm)", *u.SignalDBm)
	}
	if u.IP != "" {
		b.WriteString(", " + u.IP)
	}
	if u.Reachable != nil && !*u.Reachable {
		b.WriteString(", " + styleWarn.Render("probe target unreachable"))
	}
	return b.String()
}

func describeHotspot(st extender.StatusReport) string {
	h := st.Health
	switch {
	case h.ClientCount != nil && st.VirtualInterface != "":
		return styleGood.Render("up") + " on " + st.VirtualInterface
	case h.ClientCount != nil:
		return styleGood.Render("up")
	case h.APErr != "":
		return styleBad.Render("down") + " (" + h.APErr + ")"
	}
	return styleMuted.Render("not configured")
}

func describeBridge(st extender.StatusReport) string {
	h := st.Health
	switch {
	case h.Bridge == nil && h.BridgeErr != "":
		return styleBad.Render("unknown") + " (" + h.BridgeErr + ")"
	case h.Bridge == nil:
		return styleMuted.Render("not configured")
	case !h.Bridge.Healthy():
		b := h.Bridge
		return styleBad.Render("inactive") + fmt.Sprintf(" (forwarding=%t nat=%t bridge=%t)", b.ForwardingEnabled, b.NATEnabled, b.BridgeActive)
	}
	return styleGood.Render("active") + fmt.Sprintf(", %d rules", len(st.Rules))
}
