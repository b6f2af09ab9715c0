package extender

import (
	"time"

	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/clock"
	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/metrics"
)

const (
	DefaultAPSuffix       = "ap0"
	DefaultInterval       = 30 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	DefaultMaxAttempts    = 3
	DefaultBackoffInitial = 30 * time.Second
	DefaultBackoffMax     = 5 * time.Minute
)

// Options configures an Orchestrator. Zero fields take the defaults above.
type Options struct {
	// Radio is the physical interface shared by the upstream link and the
	// virtual AP interface.
	Radio    string
	APSuffix string
	// BridgeName is the bridge the hotspot's DHCP server also listens on.
	BridgeName string

	Interval       time.Duration
	ProbeTimeout   time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Clock   clock.Clock
	Metrics *metrics.Registry
	// Store persists the run record for crash cleanup. Optional.
	Store  Store
	Logger *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.APSuffix == "" {
		o.APSuffix = DefaultAPSuffix
	}
	if o.BridgeName == "" {
		o.BridgeName = bridge.DefaultBridgeName
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = DefaultBackoffInitial
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.BackoffMax < o.BackoffInitial {
		o.BackoffMax = o.BackoffInitial
	}
	if o.Clock == nil {
		o.Clock = clock.Real
	}
	o.Logger = logging.OrDefault(o.Logger).WithComponent("extender")
	return o
}
