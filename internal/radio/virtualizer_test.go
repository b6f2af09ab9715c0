package radio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"grimm.is/repeater/internal/network"
)

func device(name string) netlink.Link {
	return &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: name}}
}

func TestVirtualizer_Create(t *testing.T) {
	nl := new(network.MockNetlinker)
	cmd := new(network.MockCommandExecutor)
	v := NewVirtualizer(nl, cmd, nil)

	nl.On("LinkByName", "wlan0_ap0").Return(nil, network.LinkNotFound("wlan0_ap0")).Once()
	cmd.On("RunCommand", "iw", "dev", "wlan0", "interface", "add", "wlan0_ap0", "type", "__ap").Return("", nil).Once()
	nl.On("LinkByName", "wlan0_ap0").Return(device("wlan0_ap0"), nil).Once()

	h, err := v.Create(context.Background(), "wlan0", "ap0")
	require.NoError(t, err)
	assert.Equal(t, Handle{Physical: "wlan0", Name: "wlan0_ap0"}, h)
	nl.AssertExpectations(t)
	cmd.AssertExpectations(t)
}

func TestVirtualizer_CreateTwiceFails(t *testing.T) {
	nl := new(network.MockNetlinker)
	cmd := new(network.MockCommandExecutor)
	v := NewVirtualizer(nl, cmd, nil)

	nl.On("LinkByName", "wlan0_ap0").Return(nil, network.LinkNotFound("wlan0_ap0")).Once()
	cmd.On("RunCommand", "iw", "dev", "wlan0", "interface", "add", "wlan0_ap0", "type", "__ap").Return("", nil).Once()
	nl.On("LinkByName", "wlan0_ap0").Return(device("wlan0_ap0"), nil).Once()

	_, err := v.Create(context.Background(), "wlan0", "ap0")
	require.NoError(t, err)

	_, err = v.Create(context.Background(), "wlan0", "ap1")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	cmd.AssertNumberOfCalls(t, "RunCommand", 1)
}

func TestVirtualizer_CreateAdoptsLeftover(t *testing.T) {
	nl := new(network.MockNetlinker)
	cmd := new(network.MockCommandExecutor)
	v := NewVirtualizer(nl, cmd, nil)

	nl.On("LinkByName", "wlan0_ap0").Return(device("wlan0_ap0"), nil)

	h, err := v.Create(context.Background(), "wlan0", "ap0")
	require.NoError(t, err)
	assert.Equal(t, "wlan0_ap0", h.Name)
	cmd.AssertNumberOfCalls(t, "RunCommand", 0)
}

func TestVirtualizer_CreateCommandFailure(t *testing.T) {
	nl := new(network.MockNetlinker)
	cmd := new(network.MockCommandExecutor)
	v := NewVirtualizer(nl, cmd, nil)

	nl.On("LinkByName", "wlan0_ap0").Return(nil, network.LinkNotFound("wlan0_ap0"))
	cmdErr := &network.CommandError{Name: "iw", Output: "Operation not supported (-95)", Err: errors.New("exit status 161")}
	cmd.On("RunCommand", "iw", "dev", "wlan0", "interface", "add", "wlan0_ap0", "type", "__ap").Return("", cmdErr)

	_, err := v.Create(context.Background(), "wlan0", "ap0")
	var ce *network.CommandError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "Operation not supported")

	// A failed create holds nothing, so a retry is allowed.
	_, err = v.Create(context.Background(), "wlan0", "ap0")
	assert.NotErrorIs(t, err, ErrAlreadyExists)
}

func TestVirtualizer_NameTooLong(t *testing.T) {
	v := NewVirtualizer(new(network.MockNetlinker), new(network.MockCommandExecutor), nil)
	_, err := v.Create(context.Background(), "wlp0s20f3", "virtap0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestVirtualizer_Destroy(t *testing.T) {
	nl := new(network.MockNetlinker)
	cmd := new(network.MockCommandExecutor)
	v := NewVirtualizer(nl, cmd, nil)
	h := Handle{Physical: "wlan0", Name: "wlan0_ap0"}

	nl.On("LinkByName", "wlan0_ap0").Return(device("wlan0_ap0"), nil).Once()
	cmd.On("RunCommand", "iw", "dev", "wlan0_ap0", "del").Return("", nil).Once()
	require.NoError(t, v.Destroy(context.Background(), h))

	nl.On("LinkByName", "wlan0_ap0").Return(nil, network.LinkNotFound("wlan0_ap0")).Once()
	require.NoError(t, v.Destroy(context.Background(), h), "destroying an absent interface succeeds")

	cmd.AssertNumberOfCalls(t, "RunCommand", 1)
}

func TestVirtualizer_DestroyReleasesRadio(t *testing.T) {
	nl := new(network.MockNetlinker)
	cmd := new(network.MockCommandExecutor)
	v := NewVirtualizer(nl, cmd, nil)

	nl.On("LinkByName", "wlan0_ap0").Return(device("wlan0_ap0"), nil)
	cmd.On("RunCommand", "iw", "dev", "wlan0_ap0", "del").Return("", nil)

	h, err := v.Create(context.Background(), "wlan0", "ap0")
	require.NoError(t, err)
	require.NoError(t, v.Destroy(context.Background(), h))

	_, err = v.Create(context.Background(), "wlan0", "ap0")
	assert.NoError(t, err)
}

func TestVirtualizer_Exists(t *testing.T) {
	nl := new(network.MockNetlinker)
	v := NewVirtualizer(nl, new(network.MockCommandExecutor), nil)

	nl.On("LinkByName", "a").Return(device("a"), nil)
	nl.On("LinkByName", "b").Return(nil, network.LinkNotFound("b"))
	nl.On("LinkByName", "c").Return(nil, errors.New("netlink socket closed"))

	ok, err := v.Exists(context.Background(), Handle{Name: "a"})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = v.Exists(context.Background(), Handle{Name: "b"})
	assert.False(t, ok)
	assert.NoError(t, err)

	_, err = v.Exists(context.Background(), Handle{Name: "c"})
	assert.Error(t, err)
}
