//go:build linux
// +build linux

package health

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"grimm.is/repeater/internal/bridge"
)

// ConntrackCountPath and MeminfoPath are read by the proc-based checks.
var (
	ConntrackCountPath = "/proc/sys/net/netfilter/nf_conntrack_count"
	MeminfoPath        = "/proc/meminfo"
)

// CheckNftables verifies nftables answers and reports whether table is
// installed. A missing table is only a problem while active reports true.
func CheckNftables(conn bridge.NFTConn, table string, active func() bool) CheckFunc {
	return func(ctx context.Context) Check {
		start := time.Now()
		check := Check{LastChecked: start}

		tables, err := conn.ListTables()
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("failed to list tables: %v", err)
			check.Duration = time.Since(start)
			return check
		}

		found := false
		for _, t := range tables {
			if t.Name == table {
				found = true
				break
			}
		}
		switch {
		case found:
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("table %s installed (%d tables)", table, len(tables))
		case active != nil && active():
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("table %s missing", table)
		default:
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("nftables operational (%d tables)", len(tables))
		}

		check.Duration = time.Since(start)
		return check
	}
}

// CheckConntrack verifies connection tracking, which masquerading needs, is
// loaded.
func CheckConntrack(ctx context.Context) Check {
	start := time.Now()
	check := Check{LastChecked: start}

	data, err := os.ReadFile(ConntrackCountPath)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("cannot read conntrack: %v", err)
	} else {
		check.Status = StatusHealthy
		check.Message = "conntrack entries: " + strings.TrimSpace(string(data))
	}

	check.Duration = time.Since(start)
	return check
}

// CheckMemory reports MemAvailable and degrades below minKB.
func CheckMemory(minKB uint64) CheckFunc {
	return func(ctx context.Context) Check {
		start := time.Now()
		check := Check{LastChecked: start}

		data, err := os.ReadFile(MeminfoPath)
		if err != nil {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("cannot read meminfo: %v", err)
			check.Duration = time.Since(start)
			return check
		}

		avail, ok := memAvailable(string(data))
		switch {
		case !ok:
			check.Status = StatusHealthy
			check.Message = "memory info available"
		case avail < minKB:
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("MemAvailable %d kB below %d kB", avail, minKB)
		default:
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("MemAvailable %d kB", avail)
		}

		check.Duration = time.Since(start)
		return check
	}
}

func memAvailable(meminfo string) (uint64, bool) {
	for _, line := range strings.Split(meminfo, "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 2 {
			return 0, false
		}
		v, err := strconv.ParseUint(f[1], 10, 64)
		return v, err == nil
	}
	return 0, false
}
