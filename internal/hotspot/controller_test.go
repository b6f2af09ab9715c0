package hotspot

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/repeater/internal/network"
)

func testSettings(password string) Settings {
	_, gw, _ := net.ParseCIDR("192.168.4.1/24")
	gw.IP = net.IPv4(192, 168, 4, 1).To4()
	r, _ := ParseDHCPRange("192.168.4.2-192.168.4.20")
	return Settings{
		SSID:      "Extend",
		Password:  password,
		Channel:   6,
		Range:     r,
		LeaseTime: 12 * time.Hour,
		Gateway:   gw,
		DNS:       []string{"8.8.8.8"},
		Bridge:    "br0",
	}
}

type fixture struct {
	c   *Controller
	nl  *network.MockNetlinker
	cmd *network.MockCommandExecutor
	sys *network.FakeSystem
	dev netlink.Link
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		nl:  new(network.MockNetlinker),
		cmd: new(network.MockCommandExecutor),
		sys: network.NewFakeSystem(),
		dev: &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "wlan0_ap0"}},
	}
	f.c = NewController(t.TempDir(), f.nl, f.cmd, f.sys, nil)
	for _, p := range []*network.Process{f.c.hostapd, f.c.dnsmasq} {
		p.PollInterval = time.Millisecond
		p.WaitTimeout = 20 * time.Millisecond
	}
	return f
}

// spawns returns a Run hook that writes pid into path and marks it alive.
func (f *fixture) spawns(t *testing.T, path string, pid int) func(mock.Arguments) {
	return func(mock.Arguments) {
		require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644))
		f.sys.SetAlive(pid)
	}
}

func (f *fixture) expectLinkSetup() {
	f.nl.On("LinkByName", "wlan0_ap0").Return(f.dev, nil)
	f.nl.On("AddrList", f.dev, unix.AF_INET).Return([]netlink.Addr{}, nil)
	f.nl.On("AddrAdd", f.dev, mock.MatchedBy(func(a *netlink.Addr) bool {
		return a.IPNet.String() == "192.168.4.1/24"
	})).Return(nil)
	f.nl.On("LinkSetUp", f.dev).Return(nil)
}

func (f *fixture) expectDaemons(t *testing.T) {
	f.cmd.On("RunCommand", "hostapd", "-B", "-P", f.c.hostapd.PIDFile, f.c.hostapdConf()).
		Run(f.spawns(t, f.c.hostapd.PIDFile, 100)).Return("", nil)
	f.cmd.On("RunCommand", "dnsmasq", "-C", f.c.dnsmasqConf()).
		Run(f.spawns(t, f.c.dnsmasq.PIDFile, 200)).Return("", nil)
}

func TestController_StartWithoutConfigure(t *testing.T) {
	f := newFixture(t)

	err := f.c.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	f.cmd.AssertNumberOfCalls(t, "RunCommand", 0)
}

func TestController_ConfigureRendersWPA2(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Configure("wlan0_ap0", testSettings("secret123")))

	hostapd, err := os.ReadFile(f.c.hostapdConf())
	require.NoError(t, err)
	assert.Contains(t, string(hostapd), "interface=wlan0_ap0\n")
	assert.Contains(t, string(hostapd), "channel=6\n")
	assert.Contains(t, string(hostapd), "wpa=2\n")
	assert.Contains(t, string(hostapd), "wpa_passphrase=secret123\n")

	dnsmasq, err := os.ReadFile(f.c.dnsmasqConf())
	require.NoError(t, err)
	assert.Contains(t, string(dnsmasq), "dhcp-range=192.168.4.2,192.168.4.20,255.255.255.0,12h\n")
	assert.Contains(t, string(dnsmasq), "interface=br0\n")
	assert.Contains(t, string(dnsmasq), "server=8.8.8.8\n")
}

func TestController_ConfigureOpenWithoutPassword(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Configure("wlan0_ap0", testSettings("")))

	hostapd, err := os.ReadFile(f.c.hostapdConf())
	require.NoError(t, err)
	assert.NotContains(t, string(hostapd), "wpa")
}

func TestController_ConfigureRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	s := testSettings("short")
	assert.Error(t, f.c.Configure("wlan0_ap0", s))

	s = testSettings("")
	s.Channel = 13
	assert.Error(t, f.c.Configure("wlan0_ap0", s))

	err := f.c.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured, "a rejected configure leaves the AP unconfigured")
}

func TestController_StartStop(t *testing.T) {
	f := newFixture(t)
	f.expectLinkSetup()
	f.expectDaemons(t)
	f.nl.On("AddrDel", f.dev, mock.Anything).Return(nil)

	require.NoError(t, f.c.Configure("wlan0_ap0", testSettings("secret123")))
	require.NoError(t, f.c.Start(context.Background()))
	assert.True(t, f.c.Alive(context.Background()))

	assert.ErrorIs(t, f.c.Start(context.Background()), ErrAlreadyRunning)
	assert.ErrorIs(t, f.c.Configure("wlan0_ap0", testSettings("")), ErrAlreadyRunning)

	require.NoError(t, f.c.Stop(context.Background()))
	assert.False(t, f.c.Alive(context.Background()))
	assert.Equal(t, []string{"200:terminated", "100:terminated"}, f.sys.Signals, "dnsmasq stops before hostapd")
	assert.NoFileExists(t, f.c.hostapdConf())

	require.NoError(t, f.c.Stop(context.Background()), "second stop is a no-op")
	assert.ErrorIs(t, f.c.Start(context.Background()), ErrNotConfigured)
}

func TestController_StartFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	f.expectLinkSetup()
	f.cmd.On("RunCommand", "hostapd", "-B", "-P", f.c.hostapd.PIDFile, f.c.hostapdConf()).
		Run(f.spawns(t, f.c.hostapd.PIDFile, 100)).Return("", nil)
	f.cmd.On("RunCommand", "dnsmasq", "-C", f.c.dnsmasqConf()).
		Return("", &network.CommandError{Name: "dnsmasq", Output: "failed to create listening socket: Address in use", Err: errors.New("exit status 2")})

	require.NoError(t, f.c.Configure("wlan0_ap0", testSettings("secret123")))
	err := f.c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Address in use")

	assert.False(t, f.c.Alive(context.Background()), "hostapd is stopped after dnsmasq fails")
	assert.Contains(t, f.sys.Signals, "100:terminated")
	assert.FileExists(t, f.c.hostapdConf(), "configuration survives for a retry")
}

func TestController_Clients(t *testing.T) {
	f := newFixture(t)
	f.expectLinkSetup()
	f.expectDaemons(t)

	require.NoError(t, f.c.Configure("wlan0_ap0", testSettings("secret123")))
	require.NoError(t, f.c.Start(context.Background()))

	leases := "1700003600 AA:BB:CC:00:00:01 192.168.4.10 phone 01:aa:bb:cc:00:00:01\n" +
		"1700003600 aa:bb:cc:00:00:02 192.168.4.11 * *\n"
	require.NoError(t, os.WriteFile(f.c.leaseFile(), []byte(leases), 0644))

	dump := "Station aa:bb:cc:00:00:01 (on wlan0_ap0)\n" +
		"\tinactive time:\t300 ms\n" +
		"\tsignal:  \t-40 [-40] dBm\n" +
		"\tsignal avg:\t-42 [-42] dBm\n" +
		"Station aa:bb:cc:00:00:03 (on wlan0_ap0)\n" +
		"\tsignal:  \t-71 [-71] dBm\n"
	f.cmd.On("RunCommand", "iw", "dev", "wlan0_ap0", "station", "dump").Return(dump, nil)

	clients, err := f.c.Clients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 3)

	assert.Equal(t, "aa:bb:cc:00:00:01", clients[0].MAC)
	assert.Equal(t, "192.168.4.10", clients[0].IP)
	assert.Equal(t, "phone", clients[0].Hostname)
	require.NotNil(t, clients[0].SignalDBm)
	assert.Equal(t, -40, *clients[0].SignalDBm)

	assert.Equal(t, "192.168.4.11", clients[1].IP)
	assert.Empty(t, clients[1].Hostname, "unknown hostname stays absent")
	assert.Nil(t, clients[1].SignalDBm, "lease-only client has no signal")

	assert.Equal(t, "aa:bb:cc:00:00:03", clients[2].MAC)
	assert.Empty(t, clients[2].IP, "station-only client has no lease")
	require.NotNil(t, clients[2].SignalDBm)
	assert.Equal(t, -71, *clients[2].SignalDBm)
}

func TestController_ClientsWhenStopped(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Clients(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestController_DeadDnsmasqMeansDown(t *testing.T) {
	f := newFixture(t)
	f.expectLinkSetup()
	f.expectDaemons(t)

	require.NoError(t, f.c.Configure("wlan0_ap0", testSettings("secret123")))
	require.NoError(t, f.c.Start(context.Background()))
	require.True(t, f.c.Alive(context.Background()))

	f.sys.Kill(200)

	assert.False(t, f.c.Alive(context.Background()), "hostapd alone does not lease addresses")
	_, err := f.c.Clients(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	f.cmd.AssertNotCalled(t, "RunCommand", "iw", "dev", "wlan0_ap0", "station", "dump")
}

func TestController_ClientsWithoutStationTable(t *testing.T) {
	f := newFixture(t)
	f.expectLinkSetup()
	f.expectDaemons(t)

	require.NoError(t, f.c.Configure("wlan0_ap0", testSettings("secret123")))
	require.NoError(t, f.c.Start(context.Background()))

	leases := "1700003600 aa:bb:cc:00:00:01 192.168.4.10 phone *\n"
	require.NoError(t, os.WriteFile(f.c.leaseFile(), []byte(leases), 0644))
	f.cmd.On("RunCommand", "iw", "dev", "wlan0_ap0", "station", "dump").
		Return("", &network.CommandError{Name: "iw", Output: "command failed: No such device (-19)", Err: errors.New("exit status 237")})

	clients, err := f.c.Clients(context.Background())
	assert.ErrorIs(t, err, ErrStationsUnavailable)
	assert.NotErrorIs(t, err, ErrNotRunning)
	require.Len(t, clients, 1)
	assert.Equal(t, "192.168.4.10", clients[0].IP)
	assert.Nil(t, clients[0].SignalDBm)
}

func TestParseDHCPRange(t *testing.T) {
	r, err := ParseDHCPRange("192.168.4.2-192.168.4.20")
	require.NoError(t, err)
	assert.Equal(t, "192.168.4.2-192.168.4.20", r.String())

	for _, bad := range []string{"192.168.4.2", "192.168.4.20-192.168.4.2", "fe80::1-fe80::2", "a-b"} {
		_, err := ParseDHCPRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatLease(t *testing.T) {
	assert.Equal(t, "12h", formatLease(0))
	assert.Equal(t, "2h", formatLease(2*time.Hour))
	assert.Equal(t, "90m", formatLease(90*time.Minute))
	assert.Equal(t, "150", formatLease(150*time.Second))
}
