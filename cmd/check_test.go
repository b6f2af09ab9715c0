package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"grimm.is/repeater/internal/config"
)

func writeConfig(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repeater.hcl")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestRunCheck_ValidConfig(t *testing.T) {
	path := writeConfig(t, config.Sample("wlan0"))

	var out bytes.Buffer
	if err := runCheck(context.Background(), &out, path, false); err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}
	if !strings.Contains(out.String(), "Configuration valid!") {
		t.Errorf("output = %q", out.String())
	}
	if strings.Contains(out.String(), "hostapd.conf") {
		t.Error("non-verbose check rendered hotspot files")
	}
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	path := writeConfig(t, []byte(`
upstream {
    ssid = "Home"
    # Missing closing brace
`))

	if err := RunCheck(path, false); err == nil {
		t.Error("RunCheck() error = nil, want parse error")
	}
}

func TestRunCheck_RejectsShortPassphrase(t *testing.T) {
	path := writeConfig(t, []byte(`
upstream {
  ssid = "Home"
}
ap {
  ssid     = "Home-EXT"
  password = "short"
}
`))

	if err := RunCheck(path, false); err == nil {
		t.Error("RunCheck() error = nil, want validation error")
	}
}

func TestRunCheck_VerbosePreview(t *testing.T) {
	path := writeConfig(t, config.Sample("wlan0"))

	var out bytes.Buffer
	if err := runCheck(context.Background(), &out, path, true); err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}
	got := out.String()

	for _, want := range []string{
		"wlan0 (hotspot on wlan0_ap0)",
		"HomeNetwork (dhcp native",
		"hostapd.conf",
		"interface=wlan0_ap0",
		"ssid=HomeNetwork-EXT",
		"wpa_passphrase=********",
		"dnsmasq.conf",
		"interface=br0",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "change-me-please") {
		t.Error("passphrase leaked into check output")
	}

	if runtime.GOOS == "linux" {
		for _, want := range []string{
			"ip link add br0 type bridge",
			"ip link set wlan0_ap0 master br0",
			"sysctl -w net.ipv4.ip_forward=1",
			"nft add table repeater",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("bridge plan missing %q:\n%s", want, got)
			}
		}
	}
}

func TestRunCheck_VerboseWithoutRadio(t *testing.T) {
	path := writeConfig(t, config.Sample(""))

	var out bytes.Buffer
	if err := runCheck(context.Background(), &out, path, true); err != nil {
		t.Fatalf("runCheck() error = %v", err)
	}
	if !strings.Contains(out.String(), "detected at start") {
		t.Errorf("output = %q", out.String())
	}
	if strings.Contains(out.String(), "hostapd.conf") {
		t.Error("hotspot preview needs a radio name")
	}
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "repeater.hcl")

	if err := RunInit(path, "wlan1", false); err != nil {
		t.Fatalf("RunInit() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	if err := RunCheck(path, false); err != nil {
		t.Errorf("generated config does not check: %v", err)
	}

	if err := RunInit(path, "wlan1", false); err == nil {
		t.Error("RunInit() overwrote an existing file without force")
	}
	if err := RunInit(path, "", true); err != nil {
		t.Errorf("RunInit(force) error = %v", err)
	}
}
