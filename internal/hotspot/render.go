package hotspot

import (
	"fmt"
	"net"
	"strings"
	"time"
)

func renderHostapd(iface, ctrlDir string, s Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "interface=%s\n", iface)
	b.WriteString("driver=nl80211\n")
	fmt.Fprintf(&b, "ctrl_interface=%s\n", ctrlDir)
	fmt.Fprintf(&b, "ssid=%s\n", s.SSID)
	fmt.Fprintf(&b, "hw_mode=%s\n", s.hwMode())
	fmt.Fprintf(&b, "channel=%d\n", s.Channel)
	b.WriteString("ignore_broadcast_ssid=0\n")
	b.WriteString("auth_algs=1\n")
	b.WriteString("wmm_enabled=1\n")
	if s.Secured() {
		b.WriteString("wpa=2\n")
		b.WriteString("wpa_key_mgmt=WPA-PSK\n")
		b.WriteString("rsn_pairwise=CCMP\n")
		fmt.Fprintf(&b, "wpa_passphrase=%s\n", s.Password)
	}
	return b.String()
}

func renderDnsmasq(iface, leaseFile, pidFile string, s Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "interface=%s\n", iface)
	if s.Bridge != "" {
		fmt.Fprintf(&b, "interface=%s\n", s.Bridge)
	}
	b.WriteString("bind-dynamic\n")
	b.WriteString("except-interface=lo\n")
	fmt.Fprintf(&b, "pid-file=%s\n", pidFile)
	fmt.Fprintf(&b, "dhcp-leasefile=%s\n", leaseFile)
	fmt.Fprintf(&b, "dhcp-range=%s,%s,%s,%s\n",
		s.Range.Start, s.Range.End, net.IP(s.Gateway.Mask).String(), formatLease(s.LeaseTime))
	fmt.Fprintf(&b, "dhcp-option=option:router,%s\n", s.Gateway.IP)
	b.WriteString("dhcp-authoritative\n")
	b.WriteString("domain-needed\n")
	b.WriteString("bogus-priv\n")
	if len(s.DNS) > 0 {
		b.WriteString("no-resolv\n")
		for _, srv := range s.DNS {
			fmt.Fprintf(&b, "server=%s\n", srv)
		}
	}
	return b.String()
}

// formatLease renders a duration in dnsmasq's lease syntax.
func formatLease(d time.Duration) string {
	switch {
	case d <= 0:
		return "12h"
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return fmt.Sprintf("%d", int(d.Seconds()))
}
