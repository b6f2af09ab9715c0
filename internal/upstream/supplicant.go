package upstream

import (
	"fmt"
	"strings"
)

// renderSupplicantConfig builds a wpa_supplicant network block. A password
// selects WPA-PSK; without one the network is joined open.
func renderSupplicantConfig(ctrlDir, ssid, password string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ctrl_interface=%s\n", ctrlDir)
	b.WriteString("update_config=0\n\n")
	b.WriteString("network={\n")
	fmt.Fprintf(&b, "\tssid=%q\n", ssid)
	if password != "" {
		fmt.Fprintf(&b, "\tpsk=%q\n", password)
		b.WriteString("\tkey_mgmt=WPA-PSK\n")
	} else {
		b.WriteString("\tkey_mgmt=NONE\n")
	}
	b.WriteString("\tscan_ssid=1\n")
	b.WriteString("}\n")
	return b.String()
}
