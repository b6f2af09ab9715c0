//go:build !linux

package bridge

import (
	"context"

	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/network"
)

// NFTConn is unavailable off Linux.
type NFTConn interface{}

// NewNFTConn always fails off Linux.
func NewNFTConn() (NFTConn, error) {
	return nil, ErrNotSupported
}

// Router is a stub whose mutating operations fail with ErrNotSupported.
type Router struct {
	BridgeName string
	Table      string
}

// NewRouter creates a stub Router.
func NewRouter(bridgeName, table string, nl network.Netlinker, sys network.SystemController, nft NFTConn, logger *logging.Logger) *Router {
	if bridgeName == "" {
		bridgeName = DefaultBridgeName
	}
	if table == "" {
		table = DefaultTable
	}
	return &Router{BridgeName: bridgeName, Table: table}
}

func (r *Router) Start(ctx context.Context, upstreamIf, apIf string, rules *RuleStack) error {
	return ErrNotSupported
}

func (r *Router) Stop(ctx context.Context, rules *RuleStack) error {
	return nil
}

func (r *Router) Status(ctx context.Context) (Status, error) {
	return Status{}, ErrNotSupported
}

func (r *Router) Purge(ctx context.Context) error {
	return nil
}

// Plan is unavailable off Linux.
func Plan(ctx context.Context, bridgeName, table, upstreamIf, apIf string) ([]string, error) {
	return nil, ErrNotSupported
}
