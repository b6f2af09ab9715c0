package ctlplane

// ControlPlaneClient defines the interface for communicating with the control plane.
// This interface enables mocking in unit tests.
type ControlPlaneClient interface {
	Close() error

	// --- Status ---
	GetStatus() (*GetStatusReply, error)
	History(limit int) (*HistoryReply, error)

	// --- Lifecycle ---
	Up() (*LifecycleReply, error)
	Down() (*LifecycleReply, error)
	Reload() (*LifecycleReply, error)

	// --- Radio ---
	Scan() (*ScanReply, error)
	Clients() (*ClientsReply, error)
}

var _ ControlPlaneClient = (*Client)(nil)
