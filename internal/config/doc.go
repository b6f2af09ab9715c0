// Package config loads, validates and defaults the repeater configuration.
//
// Configuration is HCL by default; .json and .yaml/.yml files are accepted
// with the same field names. Every block except upstream and ap is optional,
// and leaving out upstream or ap skips the layers that need it.
//
// Example:
//
//	schema_version = "1.0"
//
//	radio "wlan0" {
//	  ap_suffix = "ap0"
//	}
//
//	upstream {
//	  ssid     = "Home"
//	  password = "secret123"
//	}
//
//	ap {
//	  ssid       = "Home-EXT"
//	  password   = "extender1"
//	  channel    = 6
//	  dhcp_range = "192.168.4.2-192.168.4.20"
//	  gateway    = "192.168.4.1/24"
//	}
//
//	reconcile {
//	  interval     = "30s"
//	  max_attempts = 3
//	}
package config
