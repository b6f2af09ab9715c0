package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"grimm.is/repeater/internal/hotspot"
	"grimm.is/repeater/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Err returns e as an error, or nil when empty.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate validates the entire configuration. Call ApplyDefaults first.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if _, err := ParseVersion(c.SchemaVersion); err != nil {
		errs.add("schema_version", "%v", err)
	}
	if c.Upstream == nil && c.AP == nil {
		errs.add("config", "at least one of upstream or ap must be configured")
	}
	if c.Radio != nil && !isValidInterfaceName(c.Radio.Interface) {
		errs.add("radio", "invalid interface name %q", c.Radio.Interface)
	}
	if c.Radio != nil && len(c.Radio.Interface)+1+len(c.Radio.APSuffix) > 15 {
		errs.add("radio.ap_suffix", "virtual interface name %s_%s exceeds 15 characters", c.Radio.Interface, c.Radio.APSuffix)
	}

	errs = append(errs, c.validateUpstream()...)
	errs = append(errs, c.validateAP()...)
	errs = append(errs, c.validateReconcile()...)

	if c.Bridge != nil && c.Bridge.Name != "" && !isValidInterfaceName(c.Bridge.Name) {
		errs.add("bridge.name", "invalid interface name %q", c.Bridge.Name)
	}
	if c.Metrics != nil && c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs.add("metrics.listen", "%v", err)
		}
	}
	if c.Log != nil {
		if _, err := logging.ParseLevel(c.Log.Level); err != nil {
			errs.add("log.level", "%v", err)
		}
	}
	return errs
}

func (c *Config) validateUpstream() ValidationErrors {
	var errs ValidationErrors
	u := c.Upstream
	if u == nil {
		return nil
	}
	if u.SSID == "" || len(u.SSID) > 32 {
		errs.add("upstream.ssid", "must be 1-32 bytes")
	}
	if u.Password != "" && (len(u.Password) < 8 || len(u.Password) > 63) {
		errs.add("upstream.password", "WPA2 passphrase must be 8-63 characters")
	}
	switch u.DHCPClient {
	case "", "native", "system":
	default:
		errs.add("upstream.dhcp_client", "must be native or system, got %q", u.DHCPClient)
	}
	validateDuration(&errs, "upstream.verify_timeout", u.VerifyTimeout)
	if u.ProbeTarget != "" && net.ParseIP(u.ProbeTarget) == nil {
		errs.add("upstream.probe_target", "must be an IP address, got %q", u.ProbeTarget)
	}
	return errs
}

func (c *Config) validateAP() ValidationErrors {
	var errs ValidationErrors
	if c.AP == nil {
		return nil
	}
	validateDuration(&errs, "ap.lease_time", c.AP.LeaseTime)
	switch c.AP.HWMode {
	case "", "a", "b", "g":
	default:
		errs.add("ap.hw_mode", "must be a, b or g, got %q", c.AP.HWMode)
	}
	for _, d := range c.AP.DNS {
		if net.ParseIP(d) == nil {
			errs.add("ap.dns", "invalid address %q", d)
		}
	}

	s, err := c.AP.Settings()
	if err != nil {
		errs.add("ap", "%v", err)
		return errs
	}
	if err := s.Validate(); err != nil {
		errs.add("ap", "%v", err)
	}
	return errs
}

func (c *Config) validateReconcile() ValidationErrors {
	var errs ValidationErrors
	r := c.Reconcile
	if r == nil {
		return nil
	}
	validateDuration(&errs, "reconcile.interval", r.Interval)
	validateDuration(&errs, "reconcile.probe_timeout", r.ProbeTimeout)
	validateDuration(&errs, "reconcile.backoff_initial", r.BackoffInitial)
	validateDuration(&errs, "reconcile.backoff_max", r.BackoffMax)
	if r.MaxAttempts < 1 {
		errs.add("reconcile.max_attempts", "must be at least 1")
	}
	if r.BackoffInitial != "" && r.BackoffMax != "" && r.BackoffMaxDuration() < r.BackoffInitialDuration() {
		errs.add("reconcile.backoff_max", "must not be shorter than backoff_initial")
	}
	return errs
}

func validateDuration(errs *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		errs.add(field, "invalid duration %q", value)
		return
	}
	if d <= 0 {
		errs.add(field, "must be positive")
	}
}

func isValidInterfaceName(name string) bool {
	if name == "" || len(name) > 15 {
		return false
	}
	return !strings.ContainsAny(name, "/ \t\n:")
}

// Settings converts the ap block into hotspot settings.
func (a *APConfig) Settings() (hotspot.Settings, error) {
	s := hotspot.Settings{
		SSID:      a.SSID,
		Password:  a.Password,
		Channel:   a.Channel,
		HWMode:    a.HWMode,
		LeaseTime: a.LeaseDuration(),
		DNS:       append([]string(nil), a.DNS...),
	}
	if a.DHCPRange != "" {
		r, err := hotspot.ParseDHCPRange(a.DHCPRange)
		if err != nil {
			return s, err
		}
		s.Range = r
	}
	if a.Gateway != "" {
		ip, ipnet, err := net.ParseCIDR(a.Gateway)
		if err != nil || ip.To4() == nil {
			return s, fmt.Errorf("gateway %q must be an IPv4 CIDR such as 192.168.4.1/24", a.Gateway)
		}
		s.Gateway = &net.IPNet{IP: ip.To4(), Mask: ipnet.Mask}
	}
	return s, nil
}
