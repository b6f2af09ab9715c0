package radio

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"grimm.is/repeater/internal/network"
)

const phyInfoAX200 = `Wiphy phy0
	wiphy index: 0
	max # scan SSIDs: 20
	Supported interface modes:
		 * IBSS
		 * managed
		 * AP
		 * AP/VLAN
		 * monitor
		 * P2P-client
		 * P2P-GO
		 * P2P-device
	Band 1:
		Capabilities: 0x1072
	valid interface combinations:
		 * #{ managed } <= 1, #{ AP, P2P-client, P2P-GO } <= 1, #{ P2P-device } <= 1,
		   total <= 3, #channels <= 2
	HT Capability overrides:
`

const phyInfoClientOnly = `Wiphy phy1
	Supported interface modes:
		 * managed
		 * monitor
	Band 1:
`

func TestParsePhyInfo(t *testing.T) {
	modes, concurrent := ParsePhyInfo(phyInfoAX200)
	assert.Equal(t, []string{"IBSS", "managed", "AP", "AP/VLAN", "monitor", "P2P-client", "P2P-GO", "P2P-device"}, modes)
	assert.True(t, concurrent)

	modes, concurrent = ParsePhyInfo(phyInfoClientOnly)
	assert.Equal(t, []string{"managed", "monitor"}, modes)
	assert.False(t, concurrent)
}

func TestDetector_Detect(t *testing.T) {
	root := t.TempDir()
	for iface, phy := range map[string]string{"wlan0": "phy0", "wlan1": "phy1"} {
		dir := filepath.Join(root, iface, "phy80211")
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "name"), []byte(phy+"\n"), 0644))
	}

	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	nl := new(network.MockNetlinker)
	nl.On("LinkList").Return([]netlink.Link{
		&netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "eth0"}},
		&netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "wlan0", HardwareAddr: mac}},
		&netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "wlan1"}},
	}, nil)

	cmd := new(network.MockCommandExecutor)
	cmd.On("RunCommand", "iw", "phy", "phy0", "info").Return(phyInfoAX200, nil)
	cmd.On("RunCommand", "iw", "phy", "phy1", "info").Return(phyInfoClientOnly, nil)

	d := NewDetector(nl, cmd)
	d.SysfsRoot = root
	d.DriverName = func(iface string) (string, error) { return "iwlwifi", nil }

	radios, err := d.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, radios, 2)

	assert.Equal(t, "wlan0", radios[0].Name)
	assert.Equal(t, "phy0", radios[0].Phy)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", radios[0].MAC)
	assert.Equal(t, "iwlwifi", radios[0].Driver)
	assert.True(t, radios[0].SupportsAP)

	suitable := Suitable(radios)
	require.Len(t, suitable, 1)
	assert.Equal(t, "wlan0", suitable[0].Name)
}
