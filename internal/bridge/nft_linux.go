//go:build linux

package bridge

import (
	"fmt"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
)

// NFTConn is the subset of *nftables.Conn the router uses. Add and Del calls
// are staged until Flush commits them.
type NFTConn interface {
	AddTable(t *nftables.Table) *nftables.Table
	DelTable(t *nftables.Table)
	ListTables() ([]*nftables.Table, error)
	AddChain(c *nftables.Chain) *nftables.Chain
	DelChain(c *nftables.Chain)
	ListChains() ([]*nftables.Chain, error)
	AddRule(r *nftables.Rule) *nftables.Rule
	DelRule(r *nftables.Rule) error
	GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error)
	Flush() error
}

// NewNFTConn opens a netlink connection to nftables.
func NewNFTConn() (NFTConn, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("nftables connection: %w", err)
	}
	return conn, nil
}

const (
	chainPostrouting = "postrouting"
	chainForward     = "forward"

	commentMasquerade = "repeater-masquerade"
	commentLANToWAN   = "repeater-lan-wan"
	commentWANToLAN   = "repeater-wan-lan"
)

// ifname pads an interface name to IFNAMSIZ for meta iifname/oifname matches.
func ifname(name string) []byte {
	b := make([]byte, 16)
	copy(b, name)
	return b
}

func matchIIF(name string) []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifname(name)},
	}
}

func matchOIF(name string) []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifname(name)},
	}
}

func accept() expr.Any {
	return &expr.Verdict{Kind: expr.VerdictAccept}
}

// masqueradeRule: oifname <wan> masquerade
func masqueradeRule(t *nftables.Table, c *nftables.Chain, wan string) *nftables.Rule {
	exprs := append(matchOIF(wan), &expr.Masq{})
	return &nftables.Rule{Table: t, Chain: c, Exprs: exprs, UserData: []byte(commentMasquerade)}
}

// lanToWANRule: iifname <lan> oifname <wan> accept
func lanToWANRule(t *nftables.Table, c *nftables.Chain, lan, wan string) *nftables.Rule {
	exprs := append(matchIIF(lan), matchOIF(wan)...)
	exprs = append(exprs, accept())
	return &nftables.Rule{Table: t, Chain: c, Exprs: exprs, UserData: []byte(commentLANToWAN)}
}

// wanToLANRule: iifname <wan> oifname <lan> ct state established,related accept
func wanToLANRule(t *nftables.Table, c *nftables.Chain, wan, lan string) *nftables.Rule {
	exprs := append(matchIIF(wan), matchOIF(lan)...)
	exprs = append(exprs,
		&expr.Ct{Key: expr.CtKeySTATE, Register: 1},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           binaryutil.NativeEndian.PutUint32(expr.CtStateBitESTABLISHED | expr.CtStateBitRELATED),
			Xor:            binaryutil.NativeEndian.PutUint32(0),
		},
		&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: binaryutil.NativeEndian.PutUint32(0)},
		accept(),
	)
	return &nftables.Rule{Table: t, Chain: c, Exprs: exprs, UserData: []byte(commentWANToLAN)}
}
