package config

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Config is the top-level structure for the repeater configuration.
type Config struct {
	// Schema version for backward compatibility. Empty means "1.0".
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty" yaml:"schema_version,omitempty"`

	// Radio pins the physical interface. When absent the daemon picks the
	// first radio that supports concurrent managed and AP mode.
	Radio *RadioConfig `hcl:"radio,block" json:"radio,omitempty" yaml:"radio,omitempty"`

	Upstream  *UpstreamConfig  `hcl:"upstream,block" json:"upstream,omitempty" yaml:"upstream,omitempty"`
	AP        *APConfig        `hcl:"ap,block" json:"ap,omitempty" yaml:"ap,omitempty"`
	Bridge    *BridgeConfig    `hcl:"bridge,block" json:"bridge,omitempty" yaml:"bridge,omitempty"`
	Reconcile *ReconcileConfig `hcl:"reconcile,block" json:"reconcile,omitempty" yaml:"reconcile,omitempty"`
	Metrics   *MetricsConfig   `hcl:"metrics,block" json:"metrics,omitempty" yaml:"metrics,omitempty"`
	State     *StateConfig     `hcl:"state,block" json:"state,omitempty" yaml:"state,omitempty"`
	Log       *LogConfig       `hcl:"log,block" json:"log,omitempty" yaml:"log,omitempty"`
}

// RadioConfig selects the physical radio shared by both networks.
type RadioConfig struct {
	Interface string `hcl:"interface,label" json:"interface" yaml:"interface"`
	APSuffix  string `hcl:"ap_suffix,optional" json:"ap_suffix,omitempty" yaml:"ap_suffix,omitempty"`
}

// UpstreamConfig describes the network that provides internet access.
type UpstreamConfig struct {
	SSID     string `hcl:"ssid" json:"ssid" yaml:"ssid"`
	Password string `hcl:"password,optional" json:"password,omitempty" yaml:"password,omitempty"`
	// DHCPClient is "native" (in-process) or "system" (dhclient/udhcpc).
	DHCPClient    string `hcl:"dhcp_client,optional" json:"dhcp_client,omitempty" yaml:"dhcp_client,omitempty"`
	VerifyTimeout string `hcl:"verify_timeout,optional" json:"verify_timeout,omitempty" yaml:"verify_timeout,omitempty"`
	// ProbeTarget is pinged to report reachability. Empty disables it.
	ProbeTarget string `hcl:"probe_target,optional" json:"probe_target,omitempty" yaml:"probe_target,omitempty"`
}

// APConfig describes the hotspot served on the virtual interface.
type APConfig struct {
	SSID      string   `hcl:"ssid" json:"ssid" yaml:"ssid"`
	Password  string   `hcl:"password,optional" json:"password,omitempty" yaml:"password,omitempty"`
	Channel   int      `hcl:"channel,optional" json:"channel,omitempty" yaml:"channel,omitempty"`
	HWMode    string   `hcl:"hw_mode,optional" json:"hw_mode,omitempty" yaml:"hw_mode,omitempty"`
	DHCPRange string   `hcl:"dhcp_range,optional" json:"dhcp_range,omitempty" yaml:"dhcp_range,omitempty"`
	LeaseTime string   `hcl:"lease_time,optional" json:"lease_time,omitempty" yaml:"lease_time,omitempty"`
	Gateway   string   `hcl:"gateway,optional" json:"gateway,omitempty" yaml:"gateway,omitempty"`
	DNS       []string `hcl:"dns,optional" json:"dns,omitempty" yaml:"dns,omitempty"`
}

// BridgeConfig names the bridge device and nftables table.
type BridgeConfig struct {
	Name  string `hcl:"name,optional" json:"name,omitempty" yaml:"name,omitempty"`
	Table string `hcl:"table,optional" json:"table,omitempty" yaml:"table,omitempty"`
}

// ReconcileConfig tunes health probing and recovery.
type ReconcileConfig struct {
	Interval       string `hcl:"interval,optional" json:"interval,omitempty" yaml:"interval,omitempty"`
	ProbeTimeout   string `hcl:"probe_timeout,optional" json:"probe_timeout,omitempty" yaml:"probe_timeout,omitempty"`
	MaxAttempts    int    `hcl:"max_attempts,optional" json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	BackoffInitial string `hcl:"backoff_initial,optional" json:"backoff_initial,omitempty" yaml:"backoff_initial,omitempty"`
	BackoffMax     string `hcl:"backoff_max,optional" json:"backoff_max,omitempty" yaml:"backoff_max,omitempty"`
}

// MetricsConfig controls the HTTP listener for /metrics and health probes.
type MetricsConfig struct {
	// Listen is the address to serve on. Empty disables the listener.
	Listen string `hcl:"listen,optional" json:"listen,omitempty" yaml:"listen,omitempty"`
}

// StateConfig locates the persistent state store.
type StateConfig struct {
	Path string `hcl:"path,optional" json:"path,omitempty" yaml:"path,omitempty"`
}

// LogConfig controls daemon logging.
type LogConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty" yaml:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty" yaml:"json,omitempty"`
}
