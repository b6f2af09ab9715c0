package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/ctlplane"
	"grimm.is/repeater/internal/extender"
	"grimm.is/repeater/internal/upstream"
)

func intPtr(v int) *int { return &v }

func runningStatus(now time.Time) *ctlplane.GetStatusReply {
	clients := 2
	return &ctlplane.GetStatusReply{
		Daemon: ctlplane.DaemonInfo{Version: "1.2.0", PID: 4242},
		Status: extender.StatusReport{
			State:            extender.StateRunning,
			Since:            now.Add(-90 * time.Second),
			Radio:            "wlan0",
			VirtualInterface: "wlan0_ap0",
			Rules: []bridge.Rule{
				{Kind: bridge.KindTable, Table: "repeater"},
				{Kind: bridge.KindChain, Table: "repeater", Chain: "postrouting"},
				{Kind: bridge.KindRule, Table: "repeater", Chain: "postrouting", Comment: "masquerade"},
			},
			Health: extender.HealthSnapshot{
				Upstream: &upstream.Status{
					Connected: true,
					SSID:      "Home",
					IP:        "192.168.1.23",
					SignalDBm: intPtr(-52),
				},
				ClientCount: &clients,
				Bridge: &bridge.Status{
					Running:           true,
					ForwardingEnabled: true,
					NATEnabled:        true,
					BridgeActive:      true,
				},
				At: now,
			},
		},
	}
}

func TestRenderStatus_Running(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	renderStatus(&out, message.NewPrinter(language.English), runningStatus(now), now)
	got := out.String()

	assert.Contains(t, got, "1.2.0 (PID 4242)")
	assert.Contains(t, got, "State:      running")
	assert.Contains(t, got, "(1m30s ago)")
	assert.Contains(t, got, "connected to Home (-52 dBm), 192.168.1.23")
	assert.Contains(t, got, "up on wlan0_ap0")
	assert.Contains(t, got, "2 clients connected")
	assert.Contains(t, got, "active, 3 rules")
	assert.NotContains(t, got, "Last error")
	assert.NotContains(t, got, "Held down")
}

func TestRenderStatus_Degraded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reply := runningStatus(now)
	next := now.Add(30 * time.Second)
	reply.Status.State = extender.StateDegraded
	reply.Status.Attempts = 1
	reply.Status.NextAttempt = &next
	reply.Status.LastError = "upstream: association timed out"
	reply.Status.Health.Upstream = &upstream.Status{Connected: false}
	reply.Status.Health.Bridge.NATEnabled = false

	var out bytes.Buffer
	renderStatus(&out, message.NewPrinter(language.English), reply, now)
	got := out.String()

	assert.Contains(t, got, "State:      degraded")
	assert.Contains(t, got, "Upstream:   disconnected")
	assert.Contains(t, got, "inactive (forwarding=true nat=false bridge=true)")
	assert.Contains(t, got, "Next retry: 12:00:30 (attempt 2)")
	assert.Contains(t, got, "Last error: upstream: association timed out")
}

func TestRenderStatus_StoppedAndHeldDown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reply := &ctlplane.GetStatusReply{
		Daemon: ctlplane.DaemonInfo{Version: "dev", PID: 1, HeldDown: true},
		Status: extender.StatusReport{State: extender.StateStopped, Since: now},
	}

	var out bytes.Buffer
	renderStatus(&out, message.NewPrinter(language.English), reply, now)
	got := out.String()

	assert.Contains(t, got, "State:      stopped")
	assert.Contains(t, got, "Held down after repeated crashes")
	assert.NotContains(t, got, "Upstream:")
	assert.NotContains(t, got, "Bridge:")
}

func TestRenderStatus_German(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	renderStatus(&out, message.NewPrinter(language.German), runningStatus(now), now)
	got := out.String()

	assert.Contains(t, got, "Zustand:    running")
	assert.Contains(t, got, "Uplink:     ")
	assert.Contains(t, got, "2 Clients verbunden")
}

func TestDescribeLayers_ProbeErrors(t *testing.T) {
	st := extender.StatusReport{
		State: extender.StateDegraded,
		Health: extender.HealthSnapshot{
			UpstreamErr: "probe timed out",
			APErr:       "hotspot not running",
			BridgeErr:   "netlink: permission denied",
		},
	}

	assert.Contains(t, describeUpstream(st.Health), "unknown (probe timed out)")
	assert.Contains(t, describeHotspot(st), "down (hotspot not running)")
	assert.Contains(t, describeBridge(st), "unknown (netlink: permission denied)")

	st.Health = extender.HealthSnapshot{}
	assert.Contains(t, describeUpstream(st.Health), "not configured")
	assert.Contains(t, describeHotspot(st), "not configured")
	assert.Contains(t, describeBridge(st), "not configured")
}

func TestPrintLifecycle(t *testing.T) {
	p := message.NewPrinter(language.English)

	t.Run("started", func(t *testing.T) {
		var out bytes.Buffer
		err := printLifecycle(&out, p, &ctlplane.LifecycleReply{
			Report: extender.Report{From: extender.StateStopped, To: extender.StateRunning, Duration: 1500 * time.Millisecond},
		})
		require.NoError(t, err)
		assert.Equal(t, "Extender running in 1.5s.\n", out.String())
	})

	t.Run("noop", func(t *testing.T) {
		var out bytes.Buffer
		err := printLifecycle(&out, p, &ctlplane.LifecycleReply{
			Report: extender.Report{From: extender.StateRunning, To: extender.StateRunning, Noop: true},
			Error:  "invalid state: cannot start while running",
		})
		require.NoError(t, err)
		assert.Equal(t, "Extender already running.\n", out.String())
	})

	t.Run("failed", func(t *testing.T) {
		var out bytes.Buffer
		err := printLifecycle(&out, p, &ctlplane.LifecycleReply{
			Report: extender.Report{
				From:  extender.StateStopped,
				To:    extender.StateStopped,
				Steps: []extender.Step{extender.StepVirtualInterface, extender.StepUpstream},
			},
			Error: "upstream: wrong passphrase",
		})
		require.EqualError(t, err, "upstream: wrong passphrase")
		assert.Contains(t, out.String(), "steps attempted")
	})
}

func withClient(t *testing.T, c ctlplane.ControlPlaneClient, err error) {
	t.Helper()
	orig := dialControl
	dialControl = func() (ctlplane.ControlPlaneClient, error) { return c, err }
	t.Cleanup(func() { dialControl = orig })
}

func TestRunUp_UsesControlSocket(t *testing.T) {
	m := new(ctlplane.MockControlPlaneClient)
	m.On("Up").Return(&ctlplane.LifecycleReply{
		Report: extender.Report{From: extender.StateStopped, To: extender.StateRunning},
	}, nil)
	m.On("Close").Return(nil)
	withClient(t, m, nil)

	require.NoError(t, RunUp())
	m.AssertExpectations(t)
}

func TestRunDown_ReportsFailure(t *testing.T) {
	m := new(ctlplane.MockControlPlaneClient)
	m.On("Down").Return(&ctlplane.LifecycleReply{
		Report: extender.Report{From: extender.StateRunning, To: extender.StateStopped},
		Error:  "teardown incomplete",
	}, nil)
	m.On("Close").Return(nil)
	withClient(t, m, nil)

	assert.EqualError(t, RunDown(), "teardown incomplete")
	m.AssertExpectations(t)
}

func TestRunStatus_NoDaemon(t *testing.T) {
	withClient(t, nil, errors.New("dial unix: no such file or directory"))

	err := RunStatus(false)
	assert.ErrorIs(t, err, ErrReported)
}
