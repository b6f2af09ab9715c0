//go:build !linux

package radio

import "errors"

func ethtoolDriverName(iface string) (string, error) {
	return "", errors.New("ethtool not supported on this platform")
}
