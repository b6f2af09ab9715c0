//go:build linux

package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	ops, err := Plan(context.Background(), "br0", "repeater", "wlan0", "wlan0_ap0")
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(ops), 6)
	assert.Equal(t, "ip link add br0 type bridge", ops[0])
	assert.Contains(t, ops, "ip link set wlan0_ap0 master br0")
	assert.Contains(t, ops, "ip link set br0 up")
	assert.Contains(t, ops, "sysctl -w net.ipv4.ip_forward=1")
	assert.Contains(t, ops, "nft add table repeater")
	assert.Contains(t, ops, "nft add chain repeater/postrouting")
}
