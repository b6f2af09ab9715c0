package hotspot

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"
)

// Settings describe the hotspot to run on the virtual interface.
type Settings struct {
	SSID string
	// Password selects WPA2-PSK when non-empty; otherwise the AP is open.
	Password  string
	Channel   int
	HWMode    string
	Range     DHCPRange
	LeaseTime time.Duration
	// Gateway is the address clients use as router, e.g. 192.168.4.1/24.
	Gateway *net.IPNet
	DNS     []string
	// Bridge is an additional interface dnsmasq serves once the AP port is
	// enslaved to it.
	Bridge string
}

// DHCPRange is an inclusive IPv4 address pool.
type DHCPRange struct {
	Start net.IP
	End   net.IP
}

// ParseDHCPRange parses "192.168.4.2-192.168.4.20".
func ParseDHCPRange(s string) (DHCPRange, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return DHCPRange{}, fmt.Errorf("dhcp range %q: want start-end", s)
	}
	start := net.ParseIP(strings.TrimSpace(parts[0])).To4()
	end := net.ParseIP(strings.TrimSpace(parts[1])).To4()
	if start == nil || end == nil {
		return DHCPRange{}, fmt.Errorf("dhcp range %q: addresses must be IPv4", s)
	}
	if bytes.Compare(start, end) > 0 {
		return DHCPRange{}, fmt.Errorf("dhcp range %q: start is after end", s)
	}
	return DHCPRange{Start: start, End: end}, nil
}

func (r DHCPRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Validate checks the settings are internally consistent.
func (s Settings) Validate() error {
	switch {
	case s.SSID == "" || len(s.SSID) > 32:
		return fmt.Errorf("ssid must be 1-32 bytes")
	case s.Password != "" && (len(s.Password) < 8 || len(s.Password) > 63):
		return fmt.Errorf("WPA2 passphrase must be 8-63 characters")
	case s.Channel < 1 || s.Channel > 11:
		return fmt.Errorf("channel %d out of range 1-11", s.Channel)
	case s.Gateway == nil:
		return fmt.Errorf("gateway address is required")
	case s.Range.Start == nil || s.Range.End == nil:
		return fmt.Errorf("dhcp range is required")
	}
	if !s.Gateway.Contains(s.Range.Start) || !s.Gateway.Contains(s.Range.End) {
		return fmt.Errorf("dhcp range %s outside gateway subnet %s", s.Range, s.Gateway)
	}
	if strings.ContainsAny(s.SSID, "\n\r") || strings.ContainsAny(s.Password, "\n\r") {
		return fmt.Errorf("ssid and passphrase may not contain line breaks")
	}
	return nil
}

func (s Settings) hwMode() string {
	if s.HWMode == "" {
		return "g"
	}
	return s.HWMode
}

// Secured reports whether clients must authenticate.
func (s Settings) Secured() bool {
	return s.Password != ""
}
