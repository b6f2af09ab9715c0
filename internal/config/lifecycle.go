package config

import (
	"grimm.is/repeater/internal/extender"
)

// Lifecycle converts the upstream and ap blocks into the orchestrator's
// desired state. Absent blocks stay nil so their layers are skipped.
func (c *Config) Lifecycle() (extender.LifecycleConfig, error) {
	var lc extender.LifecycleConfig
	if c.Upstream != nil {
		lc.Upstream = &extender.UpstreamConfig{
			SSID:     c.Upstream.SSID,
			Password: c.Upstream.Password,
		}
	}
	if c.AP != nil {
		s, err := c.AP.Settings()
		if err != nil {
			return extender.LifecycleConfig{}, err
		}
		lc.AP = &s
	}
	return lc, nil
}

// RadioInterface returns the configured physical radio, or "" to autodetect.
func (c *Config) RadioInterface() string {
	if c.Radio == nil {
		return ""
	}
	return c.Radio.Interface
}

// APSuffix returns the virtual interface suffix.
func (c *Config) APSuffix() string {
	if c.Radio == nil || c.Radio.APSuffix == "" {
		return DefaultAPSuffix
	}
	return c.Radio.APSuffix
}
