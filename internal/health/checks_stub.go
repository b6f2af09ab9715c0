//go:build !linux
// +build !linux

package health

import (
	"context"
	"time"

	"grimm.is/repeater/internal/bridge"
)

// CheckNftables verifies nftables is working.
func CheckNftables(conn bridge.NFTConn, table string, active func() bool) CheckFunc {
	return func(ctx context.Context) Check {
		return Check{
			Status:      StatusHealthy,
			Message:     "nftables unsupported on this OS (stubbed)",
			LastChecked: time.Now(),
		}
	}
}

// CheckConntrack verifies connection tracking is working.
func CheckConntrack(ctx context.Context) Check {
	return Check{Status: StatusHealthy, Message: "conntrack unsupported on this OS (stubbed)", LastChecked: time.Now()}
}

// CheckMemory verifies memory is available.
func CheckMemory(minKB uint64) CheckFunc {
	return func(ctx context.Context) Check {
		return Check{Status: StatusHealthy, Message: "meminfo unsupported on this OS (stubbed)", LastChecked: time.Now()}
	}
}
