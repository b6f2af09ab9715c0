package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"grimm.is/repeater/internal/brand"
	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/config"
	"grimm.is/repeater/internal/hotspot"
	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/network"
	"grimm.is/repeater/internal/radio"
)

// RunCheck validates the configuration file. With verbose it also prints
// the hotspot files and bridge operations a start would produce, without
// touching the system.
func RunCheck(configFile string, verbose bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return runCheck(ctx, os.Stdout, configFile, verbose)
}

func runCheck(ctx context.Context, out io.Writer, configFile string, verbose bool) error {
	cfg, err := config.LoadAndValidate(configFile)
	if err != nil {
		return err
	}
	Printer.Fprintf(out, "Configuration valid!\n")
	if !verbose {
		return nil
	}

	radioName := cfg.RadioInterface()
	apIf := ""
	if radioName != "" {
		apIf = radio.InterfaceName(radioName, cfg.APSuffix())
	}

	Printer.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	Printer.Fprintf(w, "schema\t%s\n", cfg.SchemaVersion)
	if radioName == "" {
		Printer.Fprintf(w, "radio\tdetected at start\n")
	} else {
		Printer.Fprintf(w, "radio\t%s (hotspot on %s)\n", radioName, apIf)
	}
	if u := cfg.Upstream; u != nil {
		Printer.Fprintf(w, "upstream\t%s (dhcp %s, verify %s)\n", u.SSID, u.DHCPClient, u.VerifyTimeout)
	} else {
		Printer.Fprintf(w, "upstream\tdisabled\n")
	}
	if a := cfg.AP; a != nil {
		security := "open"
		if a.Password != "" {
			security = "wpa2"
		}
		Printer.Fprintf(w, "hotspot\t%s (channel %d, %s, dhcp %s)\n", a.SSID, a.Channel, security, a.DHCPRange)
	} else {
		Printer.Fprintf(w, "hotspot\tdisabled\n")
	}
	r := cfg.Reconcile
	Printer.Fprintf(w, "reconcile\tevery %s, %d attempts, backoff %s to %s\n", r.Interval, r.MaxAttempts, r.BackoffInitial, r.BackoffMax)
	Printer.Fprintf(w, "bridge\t%s (table %s)\n", cfg.Bridge.Name, cfg.Bridge.Table)
	Printer.Fprintf(w, "state\t%s\n", cfg.State.Path)
	if cfg.Metrics.Listen != "" {
		Printer.Fprintf(w, "metrics\t%s\n", cfg.Metrics.Listen)
	}
	w.Flush()

	if radioName == "" || cfg.AP == nil {
		return nil
	}

	lc, err := cfg.Lifecycle()
	if err != nil {
		return err
	}
	settings := *lc.AP
	if lc.Bridged() {
		settings.Bridge = cfg.Bridge.Name
	}
	if err := previewHotspot(out, apIf, settings); err != nil {
		return err
	}

	if !lc.Bridged() {
		return nil
	}
	ops, err := bridge.Plan(ctx, cfg.Bridge.Name, cfg.Bridge.Table, radioName, apIf)
	if errors.Is(err, bridge.ErrNotSupported) {
		Printer.Fprintf(out, "\nBridge plan unavailable on this platform.\n")
		return nil
	}
	if err != nil {
		return fmt.Errorf("bridge plan: %w", err)
	}
	Printer.Fprintf(out, "\n%s\n", styleTitle.Render("Bridge operations"))
	for _, op := range ops {
		Printer.Fprintf(out, "  %s\n", op)
	}
	return nil
}

// previewHotspot renders the hostapd and dnsmasq files into a scratch
// directory and prints them with the passphrase masked.
func previewHotspot(out io.Writer, apIf string, s hotspot.Settings) error {
	dir, err := os.MkdirTemp("", brand.LowerName+"-check-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	quiet := logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
	ctl := hotspot.NewController(dir, &network.DryRunNetlinker{}, network.NewDryRunExecutor(), &network.DryRunSystemController{}, quiet)
	if err := ctl.Configure(apIf, s); err != nil {
		return fmt.Errorf("hotspot: %w", err)
	}

	for _, name := range []string{"hostapd.conf", "dnsmasq.conf"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		Printer.Fprintf(out, "\n%s\n", styleTitle.Render(name))
		for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			if strings.HasPrefix(line, "wpa_passphrase=") {
				line = "wpa_passphrase=********"
			}
			Printer.Fprintf(out, "  %s\n", line)
		}
	}
	return nil
}
