//go:build linux

package bridge

import (
	"context"

	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/network"
)

// Plan runs Start against dry-run collaborators and returns the link,
// sysctl and nftables operations it would perform, in order of kind.
func Plan(ctx context.Context, bridgeName, table, upstreamIf, apIf string) ([]string, error) {
	nl := &network.DryRunNetlinker{}
	sys := &network.DryRunSystemController{}
	nft := NewMockNFTConn()

	r := NewRouter(bridgeName, table, nl, sys, nft, logging.New(logging.Config{Level: logging.LevelError}))
	if err := r.Start(ctx, upstreamIf, apIf, NewRuleStack()); err != nil {
		return nil, err
	}

	ops := append([]string(nil), nl.Ops...)
	ops = append(ops, sys.Writes...)
	for _, op := range nft.Log {
		ops = append(ops, "nft "+op)
	}
	return ops, nil
}
