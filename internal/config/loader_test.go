package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullHCL = `
schema_version = "1.0"

radio "wlan0" {
  ap_suffix = "ap0"
}

upstream {
  ssid        = "Home"
  password    = "secret123"
  dhcp_client = "system"
  probe_target = "1.1.1.1"
}

ap {
  ssid       = "Home-EXT"
  password   = "extender1"
  channel    = 11
  dhcp_range = "10.0.0.10-10.0.0.50"
  gateway    = "10.0.0.1/24"
  dns        = ["9.9.9.9"]
}

reconcile {
  interval     = "10s"
  max_attempts = 5
}

log {
  level = "debug"
  json  = true
}
`

func TestLoadHCL_FullConfig(t *testing.T) {
	cfg, err := LoadHCL([]byte(fullHCL), "test.hcl")
	if err != nil {
		t.Fatalf("LoadHCL() error = %v", err)
	}

	if cfg.RadioInterface() != "wlan0" {
		t.Errorf("RadioInterface() = %q, want wlan0", cfg.RadioInterface())
	}
	if cfg.Upstream.SSID != "Home" || cfg.Upstream.DHCPClient != "system" {
		t.Errorf("unexpected upstream %+v", cfg.Upstream)
	}
	if cfg.AP.Channel != 11 {
		t.Errorf("AP.Channel = %d, want 11", cfg.AP.Channel)
	}
	if got := cfg.Reconcile.IntervalDuration(); got != 10*time.Second {
		t.Errorf("IntervalDuration() = %v, want 10s", got)
	}
	if cfg.Reconcile.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Reconcile.MaxAttempts)
	}
	// Defaults fill the rest.
	if cfg.Reconcile.ProbeTimeoutDuration() != 5*time.Second {
		t.Errorf("ProbeTimeoutDuration() = %v, want default 5s", cfg.Reconcile.ProbeTimeoutDuration())
	}
	if cfg.Bridge.Name != "br0" || cfg.Bridge.Table != "repeater" {
		t.Errorf("unexpected bridge defaults %+v", cfg.Bridge)
	}
	if !cfg.Log.JSON || cfg.Log.Level != "debug" {
		t.Errorf("unexpected log block %+v", cfg.Log)
	}
	if errs := cfg.Validate(); errs.HasErrors() {
		t.Errorf("Validate() = %v", errs)
	}
}

func TestLoadHCL_RejectsUnknownAttributes(t *testing.T) {
	_, err := LoadHCL([]byte(`upstream {
  ssid = "Home"
  bogus = true
}`), "test.hcl")
	if err == nil {
		t.Fatal("expected decode error for unknown attribute")
	}
}

func TestLoadHCL_RejectsUnsupportedVersion(t *testing.T) {
	_, err := LoadHCL([]byte(`schema_version = "2.0"`), "test.hcl")
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported version error, got %v", err)
	}
}

func TestLoadFile_Formats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"repeater.json": `{"upstream": {"ssid": "Home"}, "ap": {"ssid": "Ext"}}`,
		"repeater.yaml": "upstream:\n  ssid: Home\nap:\n  ssid: Ext\n",
		"repeater.conf": `upstream { ssid = "Home" }
ap { ssid = "Ext" }`,
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(body), 0600); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			if cfg.Upstream.SSID != "Home" || cfg.AP.SSID != "Ext" {
				t.Errorf("unexpected config %+v %+v", cfg.Upstream, cfg.AP)
			}
			if cfg.AP.Gateway != DefaultGateway {
				t.Errorf("Gateway = %q, want default", cfg.AP.Gateway)
			}
		})
	}
}

func TestLoadYAML_RejectsUnknownFields(t *testing.T) {
	if _, err := LoadYAML([]byte("upstream:\n  ssid: Home\n  color: blue\n")); err == nil {
		t.Fatal("expected strict YAML error")
	}
}

func TestLoadJSON_RejectsUnknownFields(t *testing.T) {
	if _, err := LoadJSON([]byte(`{"upstream": {"ssid": "Home"}, "vpn": {}}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repeater.hcl")
	os.WriteFile(path, []byte(`ap {
  ssid    = "Ext"
  channel = 14
}`), 0600)

	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "channel 14") {
		t.Fatalf("expected channel validation error, got %v", err)
	}
}

func TestSaveFile_RoundTrip(t *testing.T) {
	cfg, err := LoadHCL([]byte(fullHCL), "test.hcl")
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"out.hcl", "out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := SaveFile(cfg, path); err != nil {
				t.Fatalf("SaveFile() error = %v", err)
			}
			info, _ := os.Stat(path)
			if info.Mode().Perm() != 0600 {
				t.Errorf("mode = %v, want 0600", info.Mode().Perm())
			}
			back, err := LoadFile(path)
			if err != nil {
				t.Fatalf("reload error = %v", err)
			}
			if back.AP.DHCPRange != cfg.AP.DHCPRange || back.Upstream.Password != cfg.Upstream.Password {
				t.Errorf("round trip lost fields: %+v", back.AP)
			}
		})
	}
}

func TestSample_IsValid(t *testing.T) {
	cfg, err := LoadHCL(Sample("wlan1"), "sample.hcl")
	if err != nil {
		t.Fatalf("sample does not parse: %v\n%s", err, Sample("wlan1"))
	}
	if errs := cfg.Validate(); errs.HasErrors() {
		t.Errorf("sample does not validate: %v", errs)
	}
	if cfg.RadioInterface() != "wlan1" {
		t.Errorf("RadioInterface() = %q", cfg.RadioInterface())
	}

	noRadio, err := LoadHCL(Sample(""), "sample.hcl")
	if err != nil {
		t.Fatal(err)
	}
	if noRadio.Radio != nil {
		t.Error("expected no radio block")
	}
}
