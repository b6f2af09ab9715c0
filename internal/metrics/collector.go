package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"grimm.is/repeater/internal/clock"
	"grimm.is/repeater/internal/logging"
)

// InterfaceStats holds traffic statistics for a network interface.
type InterfaceStats struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	RxErrors  uint64 `json:"rx_errors"`
	TxErrors  uint64 `json:"tx_errors"`
	LinkUp    bool   `json:"link_up"`
}

// InterfaceSource returns the interfaces to sample, keyed by name with
// their role (upstream, ap, bridge).
type InterfaceSource func() map[string]string

// Collector periodically samples interface counters from sysfs into the
// registry.
type Collector struct {
	registry *Registry
	logger   *logging.Logger
	interval time.Duration
	source   InterfaceSource
	stopCh   chan struct{}
	stopOnce sync.Once
	started  time.Time

	// SysfsRoot is /sys/class/net unless overridden in tests.
	SysfsRoot string

	mu             sync.RWMutex
	lastUpdate     time.Time
	interfaceStats map[string]*InterfaceStats

	reloadSuccess int64
	reloadFailure int64
}

// NewCollector creates a new metrics collector.
func NewCollector(logger *logging.Logger, interval time.Duration, source InterfaceSource) *Collector {
	return &Collector{
		registry:       Get(),
		logger:         logging.OrDefault(logger).WithComponent("metrics"),
		interval:       interval,
		source:         source,
		stopCh:         make(chan struct{}),
		started:        clock.Now(),
		SysfsRoot:      "/sys/class/net",
		interfaceStats: make(map[string]*InterfaceStats),
	}
}

// Start runs the collection loop until Stop is called.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect samples every interface from the source once.
func (c *Collector) Collect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	ifaces := map[string]string{}
	if c.source != nil {
		ifaces = c.source()
	}
	for name := range c.interfaceStats {
		if _, ok := ifaces[name]; !ok {
			delete(c.interfaceStats, name)
		}
	}
	for name, role := range ifaces {
		if err := c.collectInterface(name, role); err != nil {
			c.logger.Debug("Failed to collect interface stats", "interface", name, "error", err)
		}
	}
	c.registry.Uptime.Set(clock.Since(c.started).Seconds())
	c.lastUpdate = clock.Now()
}

func (c *Collector) collectInterface(name, role string) error {
	dir := filepath.Join(c.SysfsRoot, name)
	if _, err := os.Stat(dir); err != nil {
		delete(c.interfaceStats, name)
		return fmt.Errorf("interface %s: %w", name, err)
	}

	stats, ok := c.interfaceStats[name]
	if !ok {
		stats = &InterfaceStats{Name: name}
		c.interfaceStats[name] = stats
	}
	stats.Role = role

	base := filepath.Join(dir, "statistics")
	stats.RxBytes = readSysUint64(filepath.Join(base, "rx_bytes"))
	stats.TxBytes = readSysUint64(filepath.Join(base, "tx_bytes"))
	stats.RxPackets = readSysUint64(filepath.Join(base, "rx_packets"))
	stats.TxPackets = readSysUint64(filepath.Join(base, "tx_packets"))
	stats.RxErrors = readSysUint64(filepath.Join(base, "rx_errors"))
	stats.TxErrors = readSysUint64(filepath.Join(base, "tx_errors"))

	operstate, _ := os.ReadFile(filepath.Join(dir, "operstate"))
	stats.LinkUp = strings.TrimSpace(string(operstate)) == "up"

	c.registry.InterfaceRxBytes.WithLabelValues(name, role).Set(float64(stats.RxBytes))
	c.registry.InterfaceTxBytes.WithLabelValues(name, role).Set(float64(stats.TxBytes))
	c.registry.InterfaceRxPackets.WithLabelValues(name, role).Set(float64(stats.RxPackets))
	c.registry.InterfaceTxPackets.WithLabelValues(name, role).Set(float64(stats.TxPackets))
	c.registry.InterfaceErrors.WithLabelValues(name, "rx").Set(float64(stats.RxErrors))
	c.registry.InterfaceErrors.WithLabelValues(name, "tx").Set(float64(stats.TxErrors))
	return nil
}

// readSysUint64 reads a uint64 value from a sysfs file.
func readSysUint64(path string) uint64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	return val
}

// IncrementConfigReload increments the config reload counter.
func (c *Collector) IncrementConfigReload(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := "success"
	if success {
		c.reloadSuccess++
	} else {
		status = "failure"
		c.reloadFailure++
	}
	c.registry.ConfigReload.WithLabelValues(status).Inc()
}

// GetReloadCounts returns the reload success/failure counts.
func (c *Collector) GetReloadCounts() (success, failure int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reloadSuccess, c.reloadFailure
}

// GetInterfaceStats returns a copy of the current interface statistics.
func (c *Collector) GetInterfaceStats() map[string]*InterfaceStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*InterfaceStats, len(c.interfaceStats))
	for k, v := range c.interfaceStats {
		copy := *v
		result[k] = &copy
	}
	return result
}

// GetLastUpdate returns when Collect last ran.
func (c *Collector) GetLastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
