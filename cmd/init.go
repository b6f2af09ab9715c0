package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"grimm.is/repeater/internal/brand"
	"grimm.is/repeater/internal/config"
	"grimm.is/repeater/internal/radio"
)

// RunInit writes a starter configuration to path. An existing file is only
// replaced with force.
func RunInit(path, radioName string, force bool) error {
	if path == "" {
		path = brand.GetConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// The file holds WPA passphrases.
	if err := os.WriteFile(path, config.Sample(radioName), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	Printer.Printf("Wrote %s\n", path)
	Printer.Printf("Set the upstream and ap credentials, then run: %s start -c %s\n", brand.BinaryName, path)
	return nil
}

// RunRadios lists the wireless interfaces on this host and whether each
// can serve as the shared radio.
func RunRadios(asJSON bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	radios, err := radio.NewDetector(nil, nil).Detect(ctx)
	if err != nil {
		return fmt.Errorf("detect radios: %w", err)
	}
	if asJSON {
		return printJSON(os.Stdout, radios)
	}
	if len(radios) == 0 {
		Printer.Println("No wireless interfaces found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w, "INTERFACE\tPHY\tDRIVER\tMAC\tAP\tCONCURRENT")
	for _, r := range radios {
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\n", r.Name, r.Phy, orDash(r.Driver), orDash(r.MAC), r.SupportsAP, r.Concurrent)
	}
	return w.Flush()
}
