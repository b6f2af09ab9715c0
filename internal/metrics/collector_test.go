package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIface(t *testing.T, root, name string, counters map[string]string, oper string) {
	t.Helper()
	dir := filepath.Join(root, name, "statistics")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for k, v := range counters {
		require.NoError(t, os.WriteFile(filepath.Join(dir, k), []byte(v+"\n"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, name, "operstate"), []byte(oper+"\n"), 0644))
}

func TestCollector_CollectReadsSysfs(t *testing.T) {
	root := t.TempDir()
	writeIface(t, root, "wlan0", map[string]string{"rx_bytes": "1000", "tx_bytes": "250", "rx_errors": "3"}, "up")
	writeIface(t, root, "br0", map[string]string{"rx_packets": "7"}, "down")

	c := NewCollector(nil, time.Minute, func() map[string]string {
		return map[string]string{"wlan0": "upstream", "br0": "bridge", "gone0": "ap"}
	})
	c.SysfsRoot = root
	c.Collect()

	stats := c.GetInterfaceStats()
	require.Len(t, stats, 2)
	assert.Equal(t, uint64(1000), stats["wlan0"].RxBytes)
	assert.Equal(t, uint64(250), stats["wlan0"].TxBytes)
	assert.Equal(t, "upstream", stats["wlan0"].Role)
	assert.True(t, stats["wlan0"].LinkUp)
	assert.False(t, stats["br0"].LinkUp)
	assert.Equal(t, uint64(7), stats["br0"].RxPackets)
	assert.False(t, c.GetLastUpdate().IsZero())

	assert.Equal(t, float64(1000), testutil.ToFloat64(c.registry.InterfaceRxBytes.WithLabelValues("wlan0", "upstream")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.registry.InterfaceErrors.WithLabelValues("wlan0", "rx")))
}

func TestCollector_DropsInterfacesNoLongerReported(t *testing.T) {
	root := t.TempDir()
	writeIface(t, root, "wlan0_ap0", map[string]string{"rx_bytes": "1"}, "up")

	ifaces := map[string]string{"wlan0_ap0": "ap"}
	c := NewCollector(nil, time.Minute, func() map[string]string { return ifaces })
	c.SysfsRoot = root
	c.Collect()
	require.Len(t, c.GetInterfaceStats(), 1)

	ifaces = map[string]string{}
	c.Collect()
	assert.Empty(t, c.GetInterfaceStats())
}

func TestCollector_ReloadCounts(t *testing.T) {
	c := NewCollector(nil, time.Minute, nil)
	before := testutil.ToFloat64(c.registry.ConfigReload.WithLabelValues("failure"))

	c.IncrementConfigReload(true)
	c.IncrementConfigReload(false)
	c.IncrementConfigReload(true)

	ok, failed := c.GetReloadCounts()
	assert.Equal(t, int64(2), ok)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, before+1, testutil.ToFloat64(c.registry.ConfigReload.WithLabelValues("failure")))
}

func TestCollector_StopIsIdempotent(t *testing.T) {
	c := NewCollector(nil, time.Millisecond, nil)
	done := make(chan struct{})
	go func() {
		c.Start()
		close(done)
	}()
	c.Stop()
	c.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.SetState("running", "stopped", "running")
		r.ObserveTransition("stopped", "initializing")
		r.ObserveStart("ok")
		r.ObserveRecovery("failed")
		r.ObserveProbeFailure("upstream")
		r.SetRules(3)
		r.SetUpstream(true, nil)
		r.SetClients(2)
		r.ObserveControlRequest("GetStatus")
	})
}

func TestRegistry_SetStateIsExclusive(t *testing.T) {
	r := Get()
	r.SetState("degraded", "stopped", "running", "degraded")
	assert.Equal(t, float64(1), testutil.ToFloat64(r.State.WithLabelValues("degraded")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.State.WithLabelValues("running")))

	r.SetState("running", "stopped", "running", "degraded")
	assert.Equal(t, float64(0), testutil.ToFloat64(r.State.WithLabelValues("degraded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.State.WithLabelValues("running")))
}

func TestRegistry_SetUpstreamKeepsLastSignal(t *testing.T) {
	r := Get()
	sig := -61
	r.SetUpstream(true, &sig)
	r.SetUpstream(false, nil)
	assert.Equal(t, float64(0), testutil.ToFloat64(r.UpstreamUp))
	assert.Equal(t, float64(-61), testutil.ToFloat64(r.UpstreamSignal))
}
