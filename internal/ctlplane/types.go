package ctlplane

import (
	"time"

	"grimm.is/repeater/internal/extender"
	"grimm.is/repeater/internal/hotspot"
	"grimm.is/repeater/internal/upstream"
)

// Empty is used for methods with no arguments.
type Empty struct{}

// DaemonInfo describes the running daemon.
type DaemonInfo struct {
	Version    string    `json:"version"`
	PID        int       `json:"pid"`
	ConfigFile string    `json:"config_file"`
	StartedAt  time.Time `json:"started_at"`
	// HeldDown is set when crash-loop protection kept the extender stopped
	// at daemon start.
	HeldDown bool `json:"held_down,omitempty"`
}

// GetStatusReply is the reply of Server.GetStatus.
type GetStatusReply struct {
	Daemon DaemonInfo            `json:"daemon"`
	Status extender.StatusReport `json:"status"`
}

// LifecycleReply is the reply of Server.Up, Server.Down and Server.Reload.
// Failures travel in Error so the report still reaches the caller.
type LifecycleReply struct {
	Report extender.Report `json:"report"`
	Error  string          `json:"error,omitempty"`
}

// Failed reports whether the operation failed. A no-op is not a failure.
func (r LifecycleReply) Failed() bool {
	return r.Error != "" && !r.Report.Noop
}

// ScanReply is the reply of Server.Scan.
type ScanReply struct {
	Networks []upstream.Network `json:"networks"`
}

// SeenClient is a hotspot client with the time it was last listed.
type SeenClient struct {
	hotspot.Client
	LastSeen time.Time `json:"last_seen"`
}

// ClientsReply is the reply of Server.Clients.
type ClientsReply struct {
	// Connected lists the stations associated now.
	Connected []hotspot.Client `json:"connected"`
	// Recent lists stations seen within ClientRetention that are gone.
	Recent []SeenClient `json:"recent,omitempty"`
	// Warning is set when Connected lacks signal readings.
	Warning string `json:"warning,omitempty"`
}

// HistoryArgs selects how many transitions to return; zero returns all.
type HistoryArgs struct {
	Limit int `json:"limit"`
}

// HistoryReply is the reply of Server.History, oldest first.
type HistoryReply struct {
	Transitions []extender.Transition `json:"transitions"`
}
