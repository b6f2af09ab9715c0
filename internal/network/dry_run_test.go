package network

import (
	"context"
	"testing"

	"github.com/vishvananda/netlink"
)

func TestDryRun_RecordsOperations(t *testing.T) {
	nl := &DryRunNetlinker{}
	sys := &DryRunSystemController{}
	exec := NewDryRunExecutor()

	br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "br0"}}
	ap, _ := nl.LinkByName("wlan0_ap0")
	nl.LinkAdd(br)
	nl.LinkSetMaster(ap, br)
	nl.LinkSetUp(br)
	sys.WriteSysctl("net.ipv4.ip_forward", "1")
	exec.RunCommand(context.Background(), "iw", "dev", "wlan0", "interface", "add", "wlan0_ap0", "type", "__ap")

	wantOps := []string{
		"ip link add br0 type bridge",
		"ip link set wlan0_ap0 master br0",
		"ip link set br0 up",
	}
	if len(nl.Ops) != len(wantOps) {
		t.Fatalf("ops = %v", nl.Ops)
	}
	for i, op := range wantOps {
		if nl.Ops[i] != op {
			t.Errorf("op %d = %q, want %q", i, nl.Ops[i], op)
		}
	}
	if len(sys.Writes) != 1 || sys.Writes[0] != "sysctl -w net.ipv4.ip_forward=1" {
		t.Errorf("writes = %v", sys.Writes)
	}
	if exec.Commands[0] != "iw dev wlan0 interface add wlan0_ap0 type __ap" {
		t.Errorf("command = %q", exec.Commands[0])
	}
	if err := sys.SignalProcess(1, 0); err == nil {
		t.Error("dry run must report no live processes")
	}
}
