package config

import (
	"path/filepath"
	"time"

	"grimm.is/repeater/internal/brand"
	"grimm.is/repeater/internal/bridge"
)

// Default values applied by ApplyDefaults.
const (
	DefaultAPSuffix       = "ap0"
	DefaultDHCPClient     = "native"
	DefaultVerifyTimeout  = "20s"
	DefaultChannel        = 6
	DefaultHWMode         = "g"
	DefaultDHCPRange      = "192.168.4.2-192.168.4.20"
	DefaultLeaseTime      = "12h"
	DefaultGateway        = "192.168.4.1/24"
	DefaultBridgeName     = bridge.DefaultBridgeName
	DefaultTable          = bridge.DefaultTable
	DefaultInterval       = "30s"
	DefaultProbeTimeout   = "5s"
	DefaultMaxAttempts    = 3
	DefaultBackoffInitial = "30s"
	DefaultBackoffMax     = "5m"
	DefaultLogLevel       = "info"
)

// DefaultDNS is handed to hotspot clients when ap.dns is empty.
var DefaultDNS = []string{"8.8.8.8"}

// ApplyDefaults fills every unset optional field. Absent upstream and ap
// blocks stay absent.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.Radio != nil && c.Radio.APSuffix == "" {
		c.Radio.APSuffix = DefaultAPSuffix
	}

	if u := c.Upstream; u != nil {
		setString(&u.DHCPClient, DefaultDHCPClient)
		setString(&u.VerifyTimeout, DefaultVerifyTimeout)
	}

	if a := c.AP; a != nil {
		if a.Channel == 0 {
			a.Channel = DefaultChannel
		}
		setString(&a.HWMode, DefaultHWMode)
		setString(&a.DHCPRange, DefaultDHCPRange)
		setString(&a.LeaseTime, DefaultLeaseTime)
		setString(&a.Gateway, DefaultGateway)
		if len(a.DNS) == 0 {
			a.DNS = append([]string(nil), DefaultDNS...)
		}
	}

	if c.Bridge == nil {
		c.Bridge = &BridgeConfig{}
	}
	setString(&c.Bridge.Name, DefaultBridgeName)
	setString(&c.Bridge.Table, DefaultTable)

	if c.Reconcile == nil {
		c.Reconcile = &ReconcileConfig{}
	}
	r := c.Reconcile
	setString(&r.Interval, DefaultInterval)
	setString(&r.ProbeTimeout, DefaultProbeTimeout)
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	setString(&r.BackoffInitial, DefaultBackoffInitial)
	setString(&r.BackoffMax, DefaultBackoffMax)

	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
	if c.State == nil {
		c.State = &StateConfig{}
	}
	setString(&c.State.Path, filepath.Join(brand.GetStateDir(), "state.db"))

	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	setString(&c.Log.Level, DefaultLogLevel)
}

func setString(p *string, def string) {
	if *p == "" {
		*p = def
	}
}

// duration parses s, returning def when s is empty or malformed. Validate
// reports malformed values.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// VerifyTimeoutDuration returns upstream.verify_timeout.
func (u *UpstreamConfig) VerifyTimeoutDuration() time.Duration {
	return duration(u.VerifyTimeout, 20*time.Second)
}

// LeaseDuration returns ap.lease_time.
func (a *APConfig) LeaseDuration() time.Duration {
	return duration(a.LeaseTime, 12*time.Hour)
}

// IntervalDuration returns reconcile.interval.
func (r *ReconcileConfig) IntervalDuration() time.Duration {
	return duration(r.Interval, 30*time.Second)
}

// ProbeTimeoutDuration returns reconcile.probe_timeout.
func (r *ReconcileConfig) ProbeTimeoutDuration() time.Duration {
	return duration(r.ProbeTimeout, 5*time.Second)
}

// BackoffInitialDuration returns reconcile.backoff_initial.
func (r *ReconcileConfig) BackoffInitialDuration() time.Duration {
	return duration(r.BackoffInitial, 30*time.Second)
}

// BackoffMaxDuration returns reconcile.backoff_max.
func (r *ReconcileConfig) BackoffMaxDuration() time.Duration {
	return duration(r.BackoffMax, 5*time.Minute)
}
