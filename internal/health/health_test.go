package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/clock"
	"grimm.is/repeater/internal/extender"
	"grimm.is/repeater/internal/network"
	"grimm.is/repeater/internal/state"
	"grimm.is/repeater/internal/upstream"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	calls atomic.Int32
	rep   extender.StatusReport
}

func (f *fakeSource) Status(ctx context.Context) extender.StatusReport {
	f.calls.Add(1)
	return f.rep
}

func intPtr(n int) *int { return &n }

func runningReport() extender.StatusReport {
	return extender.StatusReport{
		State: extender.StateRunning,
		Since: t0,
		Rules: []bridge.Rule{{Kind: bridge.KindTable, Table: "repeater"}},
		Health: extender.HealthSnapshot{
			Upstream:    &upstream.Status{Connected: true, SSID: "Home", SignalDBm: intPtr(-55)},
			ClientCount: intPtr(2),
			Bridge:      &bridge.Status{Running: true, ForwardingEnabled: true, NATEnabled: true, BridgeActive: true},
			At:          t0,
		},
	}
}

func TestChecker_AggregatesWorstStatus(t *testing.T) {
	c := NewChecker(clock.NewMockClock(t0))
	c.Register("ok", func(ctx context.Context) Check { return Check{Status: StatusHealthy} })
	c.Register("meh", func(ctx context.Context) Check { return Check{Status: StatusDegraded} })

	rep := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, rep.Status)
	assert.Len(t, rep.Checks, 2)
	assert.Equal(t, "meh", rep.Checks["meh"].Name)
	assert.Equal(t, t0, rep.Checks["ok"].LastChecked)

	c.Register("bad", func(ctx context.Context) Check { return Check{Status: StatusUnhealthy} })
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
}

func TestChecker_EmptyStatusIsUnhealthy(t *testing.T) {
	c := NewChecker(nil)
	c.Register("blank", func(ctx context.Context) Check { return Check{} })

	rep := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, rep.Status)
	assert.Equal(t, "check returned no status", rep.Checks["blank"].Message)
}

func TestChecker_CachesUntilTTL(t *testing.T) {
	clk := clock.NewMockClock(t0)
	c := NewChecker(clk)
	var runs atomic.Int32
	c.Register("count", func(ctx context.Context) Check {
		runs.Add(1)
		return Check{Status: StatusHealthy}
	})

	c.Check(context.Background())
	c.Check(context.Background())
	assert.EqualValues(t, 1, runs.Load())

	clk.Advance(DefaultTTL)
	c.Check(context.Background())
	assert.EqualValues(t, 2, runs.Load())

	c.SetTTL(0)
	c.Check(context.Background())
	assert.EqualValues(t, 3, runs.Load())
}

func TestRegisterExtender_Running(t *testing.T) {
	src := &fakeSource{rep: runningReport()}
	c := NewChecker(clock.NewMockClock(t0))
	RegisterExtender(c, src)

	rep := c.Check(context.Background())
	require.Len(t, rep.Checks, 4)
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.Equal(t, "connected to Home (-55 dBm)", rep.Checks["upstream"].Message)
	assert.Equal(t, "2 clients", rep.Checks["hotspot"].Message)
	assert.Equal(t, "1 rules installed", rep.Checks["bridge"].Message)
	assert.EqualValues(t, 1, src.calls.Load(), "checks share one status probe")
}

func TestRegisterExtender_States(t *testing.T) {
	tests := []struct {
		state extender.State
		want  Status
	}{
		{extender.StateRunning, StatusHealthy},
		{extender.StateDegraded, StatusDegraded},
		{extender.StateInitializing, StatusDegraded},
		{extender.StateStopping, StatusDegraded},
		{extender.StateFailed, StatusUnhealthy},
		{extender.StateStopped, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			src := &fakeSource{rep: extender.StatusReport{State: tt.state, LastError: "boom"}}
			c := NewChecker(clock.NewMockClock(t0))
			RegisterExtender(c, src)

			rep := c.Check(context.Background())
			assert.Equal(t, tt.want, rep.Checks["lifecycle"].Status)
			assert.Equal(t, "not active", rep.Checks["upstream"].Message)
			assert.Equal(t, "not active", rep.Checks["hotspot"].Message)
			assert.Equal(t, "not active", rep.Checks["bridge"].Message)
		})
	}
}

func TestRegisterExtender_LayerFailures(t *testing.T) {
	rep := runningReport()
	rep.State = extender.StateDegraded
	rep.Attempts = 2
	rep.Health.Upstream = nil
	rep.Health.UpstreamErr = extender.ErrProbeTimeout.Error()
	rep.Health.ClientCount = nil
	rep.Health.APErr = "hotspot: not running"
	rep.Health.Bridge = &bridge.Status{Running: true, ForwardingEnabled: false, NATEnabled: true, BridgeActive: true}

	c := NewChecker(clock.NewMockClock(t0))
	RegisterExtender(c, &fakeSource{rep: rep})
	out := c.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, out.Status)
	assert.Equal(t, StatusDegraded, out.Checks["lifecycle"].Status)
	assert.Equal(t, "degraded (recovery attempt 2)", out.Checks["lifecycle"].Message)
	assert.Equal(t, StatusUnhealthy, out.Checks["upstream"].Status)
	assert.Equal(t, extender.ErrProbeTimeout.Error(), out.Checks["upstream"].Message)
	assert.Equal(t, StatusUnhealthy, out.Checks["hotspot"].Status)
	assert.Contains(t, out.Checks["bridge"].Message, "forwarding=false")
}

func TestRegisterExtender_UnreachableProbeTarget(t *testing.T) {
	rep := runningReport()
	unreachable := false
	rep.Health.Upstream.Reachable = &unreachable

	c := NewChecker(clock.NewMockClock(t0))
	RegisterExtender(c, &fakeSource{rep: rep})

	check := c.Check(context.Background()).Checks["upstream"]
	assert.Equal(t, StatusDegraded, check.Status)
	assert.Contains(t, check.Message, "unreachable")
}

func TestCheckInterfaces(t *testing.T) {
	nl := network.NewFakeNetlinker("wlan0", "wlan0_ap0")
	require.NoError(t, nl.LinkSetUp(nl.Links["wlan0"]))
	names := []string{"wlan0", "wlan0_ap0"}
	check := CheckInterfaces(nl, func() []string { return names })

	got := check(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "down: wlan0_ap0", got.Message)

	require.NoError(t, nl.LinkSetUp(nl.Links["wlan0_ap0"]))
	got = check(context.Background())
	assert.Equal(t, StatusHealthy, got.Status)
	assert.Equal(t, "2 interfaces up", got.Message)

	names = append(names, "br0")
	got = check(context.Background())
	assert.Equal(t, StatusUnhealthy, got.Status)
	assert.Equal(t, "missing: br0", got.Message)
}

func TestCheckStore(t *testing.T) {
	s, err := state.NewSQLiteStore(state.DefaultOptions(":memory:"))
	require.NoError(t, err)

	got := CheckStore(s)(context.Background())
	assert.Equal(t, StatusHealthy, got.Status)

	require.NoError(t, s.Close())
	got = CheckStore(s)(context.Background())
	assert.Equal(t, StatusUnhealthy, got.Status)
}

func TestCheckDisk(t *testing.T) {
	assert.Equal(t, StatusHealthy, CheckDisk(t.TempDir())(context.Background()).Status)
	assert.Equal(t, StatusDegraded, CheckDisk("/nonexistent/dir")(context.Background()).Status)
}

func TestHandlers(t *testing.T) {
	healthy := NewChecker(nil)
	healthy.Register("ok", func(ctx context.Context) Check { return Check{Status: StatusHealthy} })
	sick := NewChecker(nil)
	sick.Register("bad", func(ctx context.Context) Check {
		return Check{Status: StatusUnhealthy, Message: errors.New("down").Error()}
	})

	rec := httptest.NewRecorder()
	healthy.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var rep Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, StatusHealthy, rep.Status)

	rec = httptest.NewRecorder()
	sick.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	healthy.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, "READY", rec.Body.String())

	rec = httptest.NewRecorder()
	sick.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT READY", rec.Body.String())

	rec = httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, "OK", rec.Body.String())
}
