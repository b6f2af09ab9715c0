package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linkConnected = `Connected to 00:11:22:33:44:55 (on wlan0)
	SSID: HomeNet
	freq: 2437
	RX: 1234 bytes (12 packets)
	TX: 567 bytes (6 packets)
	signal: -52 dBm
	rx bitrate: 72.2 MBit/s MCS 7 short GI
	tx bitrate: 65.0 MBit/s MCS 6

	bss flags:	short-slot-time
	dtim period:	2
	beacon int:	100
`

const scanOutput = `BSS 00:11:22:33:44:55(on wlan0) -- associated
	TSF: 1234 usec (0d, 00:00:00)
	freq: 2437
	capability: ESS Privacy ShortSlotTime (0x0411)
	signal: -48.00 dBm
	SSID: HomeNet
	RSN:	 * Version: 1
		 * Group cipher: CCMP
BSS 66:77:88:99:aa:bb(on wlan0)
	freq: 5180
	capability: ESS (0x0001)
	signal: -70.00 dBm
	SSID: Cafe
BSS aa:aa:aa:aa:aa:aa(on wlan0)
	freq: 2412
	capability: ESS Privacy (0x0011)
	signal: -60.00 dBm
	SSID: Legacy
BSS bb:bb:bb:bb:bb:bb(on wlan0)
	freq: 2462
	signal: -40.00 dBm
	SSID: 
`

func TestParseLink_Connected(t *testing.T) {
	a := ParseLink(linkConnected)

	assert.True(t, a.Associated)
	assert.Equal(t, "00:11:22:33:44:55", a.BSSID)
	assert.Equal(t, "HomeNet", a.SSID)
	assert.Equal(t, 2437, a.FreqMHz)
	require.NotNil(t, a.SignalDBm)
	assert.Equal(t, -52, *a.SignalDBm)
	assert.Equal(t, "65.0 MBit/s MCS 6", a.TxBitrate)
}

func TestParseLink_NotConnected(t *testing.T) {
	a := ParseLink("Not connected.\n")
	assert.False(t, a.Associated)
	assert.Empty(t, a.SSID)
	assert.Nil(t, a.SignalDBm, "signal is absent, not zero")
}

func TestParseScan(t *testing.T) {
	nets := ParseScan(scanOutput)
	require.Len(t, nets, 3, "hidden network is skipped")

	assert.Equal(t, Network{SSID: "HomeNet", BSSID: "00:11:22:33:44:55", SignalDBm: -48, FrequencyMHz: 2437, Security: "wpa2", Associated: true}, nets[0])
	assert.Equal(t, "Legacy", nets[1].SSID)
	assert.Equal(t, "wep", nets[1].Security)
	assert.Equal(t, "Cafe", nets[2].SSID)
	assert.Equal(t, "open", nets[2].Security)
}

func TestRenderSupplicantConfig(t *testing.T) {
	secured := renderSupplicantConfig("/run/repeater/wpa_supplicant", "HomeNet", "secret123")
	assert.Contains(t, secured, "ctrl_interface=/run/repeater/wpa_supplicant\n")
	assert.Contains(t, secured, "\tssid=\"HomeNet\"\n")
	assert.Contains(t, secured, "\tpsk=\"secret123\"\n")
	assert.Contains(t, secured, "key_mgmt=WPA-PSK")

	open := renderSupplicantConfig("/run/x", "Cafe", "")
	assert.Contains(t, open, "key_mgmt=NONE")
	assert.NotContains(t, open, "psk=")
}
