//go:build linux

package radio

import (
	"fmt"

	"github.com/safchain/ethtool"
)

func ethtoolDriverName(iface string) (string, error) {
	h, err := ethtool.NewEthtool()
	if err != nil {
		return "", fmt.Errorf("failed to open ethtool handle: %w", err)
	}
	defer h.Close()
	return h.DriverName(iface)
}
