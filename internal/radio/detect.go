package radio

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"grimm.is/repeater/internal/network"
)

// Info describes a wireless radio found on the host.
type Info struct {
	Name            string   `json:"name"`
	Phy             string   `json:"phy"`
	Driver          string   `json:"driver,omitempty"`
	MAC             string   `json:"mac,omitempty"`
	Modes           []string `json:"modes"`
	SupportsAP      bool     `json:"supports_ap"`
	SupportsManaged bool     `json:"supports_managed"`
	// Concurrent is true when the phy advertises an interface combination
	// allowing managed and AP at once.
	Concurrent bool `json:"concurrent"`
}

// Detector enumerates wireless radios.
type Detector struct {
	nl  network.Netlinker
	cmd network.CommandExecutor

	// SysfsRoot is /sys/class/net unless overridden in tests.
	SysfsRoot string
	// DriverName resolves the kernel driver of an interface.
	DriverName func(iface string) (string, error)
}

// NewDetector creates a Detector backed by netlink, iw and ethtool.
func NewDetector(nl network.Netlinker, cmd network.CommandExecutor) *Detector {
	if nl == nil {
		nl = network.DefaultNetlinker
	}
	if cmd == nil {
		cmd = network.DefaultCommandExecutor
	}
	return &Detector{
		nl:         nl,
		cmd:        cmd,
		SysfsRoot:  "/sys/class/net",
		DriverName: ethtoolDriverName,
	}
}

// Detect returns every wireless interface with its capabilities.
func (d *Detector) Detect(ctx context.Context) ([]Info, error) {
	links, err := d.nl.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	var radios []Info
	for _, link := range links {
		attrs := link.Attrs()
		phy, ok := d.phyName(attrs.Name)
		if !ok {
			continue
		}

		info := Info{Name: attrs.Name, Phy: phy}
		if attrs.HardwareAddr != nil {
			info.MAC = attrs.HardwareAddr.String()
		}

		out, err := d.cmd.RunCommand(ctx, "iw", "phy", phy, "info")
		if err != nil {
			return nil, fmt.Errorf("query %s capabilities: %w", phy, err)
		}
		info.Modes, info.Concurrent = ParsePhyInfo(out)
		info.SupportsAP = slices.Contains(info.Modes, "AP")
		info.SupportsManaged = slices.Contains(info.Modes, "managed")

		if d.DriverName != nil {
			if drv, err := d.DriverName(attrs.Name); err == nil {
				info.Driver = drv
			}
		}
		radios = append(radios, info)
	}
	return radios, nil
}

func (d *Detector) phyName(iface string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(d.SysfsRoot, iface, "phy80211", "name"))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Suitable filters radios that can run client and AP modes.
func Suitable(radios []Info) []Info {
	var out []Info
	for _, r := range radios {
		if r.SupportsAP && r.SupportsManaged {
			out = append(out, r)
		}
	}
	return out
}

// ParsePhyInfo extracts supported interface modes from `iw phy <phy> info`
// and whether a combination allows managed and AP together.
func ParsePhyInfo(out string) (modes []string, concurrent bool) {
	const (
		none = iota
		inModes
		inCombos
	)
	section := none

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Supported interface modes:"):
			section = inModes
			continue
		case strings.HasPrefix(line, "valid interface combinations:"):
			section = inCombos
			continue
		}

		switch section {
		case inModes:
			if !strings.HasPrefix(line, "*") {
				section = none
				continue
			}
			modes = append(modes, strings.TrimSpace(strings.TrimPrefix(line, "*")))
		case inCombos:
			if strings.HasPrefix(line, "*") {
				if strings.Contains(line, "managed") && strings.Contains(line, "AP") {
					concurrent = true
				}
			} else if !strings.HasPrefix(line, "total") {
				section = none
			}
		}
	}
	return modes, concurrent
}
