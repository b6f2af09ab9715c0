package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all repeater metrics. Every method is safe on a nil
// *Registry so callers can run without metrics.
type Registry struct {
	// Lifecycle
	State           *prometheus.GaugeVec
	Transitions     *prometheus.CounterVec
	Starts          *prometheus.CounterVec
	Recoveries      *prometheus.CounterVec
	ProbeFailures   *prometheus.CounterVec
	RulesInstalled  prometheus.Gauge
	UpstreamUp      prometheus.Gauge
	UpstreamSignal  prometheus.Gauge
	HotspotClients  prometheus.Gauge
	ConfigReload    *prometheus.CounterVec
	ControlRequests *prometheus.CounterVec
	Uptime          prometheus.Gauge

	// Interface metrics
	InterfaceRxBytes   *prometheus.GaugeVec
	InterfaceTxBytes   *prometheus.GaugeVec
	InterfaceRxPackets *prometheus.GaugeVec
	InterfaceTxPackets *prometheus.GaugeVec
	InterfaceErrors    *prometheus.GaugeVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.State = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "repeater_state",
		Help: "1 for the current lifecycle state, 0 otherwise",
	}, []string{"state"})

	r.Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repeater_state_transitions_total",
		Help: "Lifecycle state transitions",
	}, []string{"from", "to"})

	r.Starts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repeater_starts_total",
		Help: "Start attempts by result",
	}, []string{"result"})

	r.Recoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repeater_recovery_attempts_total",
		Help: "Recovery attempts by result",
	}, []string{"result"})

	r.ProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repeater_probe_failures_total",
		Help: "Health probes that failed or timed out",
	}, []string{"layer"})

	r.RulesInstalled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repeater_nat_objects",
		Help: "nftables objects currently on the rule stack",
	})

	r.UpstreamUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repeater_upstream_connected",
		Help: "1 when the upstream link is associated",
	})

	r.UpstreamSignal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repeater_upstream_signal_dbm",
		Help: "Upstream signal strength",
	})

	r.HotspotClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repeater_hotspot_clients",
		Help: "Clients associated with or leased by the hotspot",
	})

	r.ConfigReload = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repeater_config_reloads_total",
		Help: "Configuration reloads by result",
	}, []string{"status"})

	r.ControlRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repeater_control_requests_total",
		Help: "Control plane requests by method",
	}, []string{"method"})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "repeater_uptime_seconds",
		Help: "Daemon uptime",
	})

	r.InterfaceRxBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "repeater_interface_rx_bytes",
		Help: "Bytes received per interface",
	}, []string{"interface", "role"})

	r.InterfaceTxBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "repeater_interface_tx_bytes",
		Help: "Bytes transmitted per interface",
	}, []string{"interface", "role"})

	r.InterfaceRxPackets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "repeater_interface_rx_packets",
		Help: "Packets received per interface",
	}, []string{"interface", "role"})

	r.InterfaceTxPackets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "repeater_interface_tx_packets",
		Help: "Packets transmitted per interface",
	}, []string{"interface", "role"})

	r.InterfaceErrors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "repeater_interface_errors",
		Help: "Interface errors by direction",
	}, []string{"interface", "direction"})

	return r
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetState marks current as the active state among all.
func (r *Registry) SetState(current string, all ...string) {
	if r == nil {
		return
	}
	for _, s := range all {
		r.State.WithLabelValues(s).Set(0)
	}
	r.State.WithLabelValues(current).Set(1)
}

// ObserveTransition counts a state change.
func (r *Registry) ObserveTransition(from, to string) {
	if r == nil {
		return
	}
	r.Transitions.WithLabelValues(from, to).Inc()
}

// ObserveStart counts a Start by result.
func (r *Registry) ObserveStart(result string) {
	if r == nil {
		return
	}
	r.Starts.WithLabelValues(result).Inc()
}

// ObserveRecovery counts a recovery attempt by result.
func (r *Registry) ObserveRecovery(result string) {
	if r == nil {
		return
	}
	r.Recoveries.WithLabelValues(result).Inc()
}

// ObserveProbeFailure counts a failed health probe.
func (r *Registry) ObserveProbeFailure(layer string) {
	if r == nil {
		return
	}
	r.ProbeFailures.WithLabelValues(layer).Inc()
}

// SetRules records the rule stack depth.
func (r *Registry) SetRules(n int) {
	if r == nil {
		return
	}
	r.RulesInstalled.Set(float64(n))
}

// SetUpstream records association state and, when known, signal strength.
func (r *Registry) SetUpstream(connected bool, signalDBm *int) {
	if r == nil {
		return
	}
	if connected {
		r.UpstreamUp.Set(1)
	} else {
		r.UpstreamUp.Set(0)
	}
	if signalDBm != nil {
		r.UpstreamSignal.Set(float64(*signalDBm))
	}
}

// SetClients records the hotspot client count.
func (r *Registry) SetClients(n int) {
	if r == nil {
		return
	}
	r.HotspotClients.Set(float64(n))
}

// ObserveControlRequest counts a control plane call.
func (r *Registry) ObserveControlRequest(method string) {
	if r == nil {
		return
	}
	r.ControlRequests.WithLabelValues(method).Inc()
}
