//go:build linux

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/nftables"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/network"
)

// Router bridges the AP interface and NATs it out of the upstream interface.
type Router struct {
	nl     network.Netlinker
	sys    network.SystemController
	nft    NFTConn
	logger *logging.Logger

	BridgeName string
	Table      string

	mu      sync.Mutex
	apIf    string
	running bool
}

// NewRouter creates a Router. Empty names fall back to DefaultBridgeName and
// DefaultTable.
func NewRouter(bridgeName, table string, nl network.Netlinker, sys network.SystemController, nft NFTConn, logger *logging.Logger) *Router {
	if bridgeName == "" {
		bridgeName = DefaultBridgeName
	}
	if table == "" {
		table = DefaultTable
	}
	return &Router{
		nl:         nl,
		sys:        sys,
		nft:        nft,
		logger:     logging.OrDefault(logger).WithComponent("bridge"),
		BridgeName: bridgeName,
		Table:      table,
	}
}

func (r *Router) table() *nftables.Table {
	return &nftables.Table{Family: nftables.TableFamilyIPv4, Name: r.Table}
}

// Start creates the bridge, attaches apIf, brings the bridge up, enables
// forwarding and installs the NAT table. Each committed nftables object is
// pushed onto rules. A failing step undoes the earlier steps of this call
// only and returns the error.
func (r *Router) Start(ctx context.Context, upstreamIf, apIf string, rules *RuleStack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var undo []func() error
	fail := func(err error) error {
		var errs []error
		for i := len(undo) - 1; i >= 0; i-- {
			if uerr := undo[i](); uerr != nil {
				errs = append(errs, uerr)
			}
		}
		if rerr := errors.Join(errs...); rerr != nil {
			r.logger.Warn("bridge rollback incomplete", "error", rerr)
			return fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
		return err
	}

	// (a) bridge device, deleted by name so a failed lookup still removes it
	created := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: r.BridgeName}}
	if err := r.nl.LinkAdd(created); err != nil {
		return fmt.Errorf("create bridge %s: %w", r.BridgeName, err)
	}
	undo = append(undo, func() error { return r.nl.LinkDel(created) })
	br, err := r.nl.LinkByName(r.BridgeName)
	if err != nil {
		return fail(fmt.Errorf("create bridge %s: %w", r.BridgeName, err))
	}

	// (b) attach the AP interface and re-home its addresses
	ap, err := r.nl.LinkByName(apIf)
	if err != nil {
		return fail(fmt.Errorf("attach %s: %w", apIf, err))
	}
	if err := r.nl.LinkSetMaster(ap, br); err != nil {
		return fail(fmt.Errorf("attach %s to %s: %w", apIf, r.BridgeName, err))
	}
	undo = append(undo, func() error { return r.nl.LinkSetNoMaster(ap) })

	moved, err := r.moveAddrs(ap, br)
	if len(moved) > 0 {
		undo = append(undo, func() error {
			_, err := r.moveAddrs(br, ap)
			return err
		})
	}
	if err != nil {
		return fail(fmt.Errorf("move addresses to %s: %w", r.BridgeName, err))
	}

	// (c) bring the bridge up
	if err := r.nl.LinkSetUp(br); err != nil {
		return fail(fmt.Errorf("bring up %s: %w", r.BridgeName, err))
	}
	undo = append(undo, func() error { return r.nl.LinkSetDown(br) })

	// (d) forwarding
	if err := r.sys.WriteSysctl(ipForward, "1"); err != nil {
		return fail(fmt.Errorf("enable forwarding: %w", err))
	}
	undo = append(undo, func() error { return r.sys.WriteSysctl(ipForward, "0") })

	// (e) NAT
	mark := rules.Len()
	if err := r.installNAT(upstreamIf, rules); err != nil {
		if uerr := rules.UnwindTo(mark, r.remove); uerr != nil {
			undo = append(undo, func() error { return uerr })
		}
		return fail(fmt.Errorf("install NAT: %w", err))
	}

	r.apIf = apIf
	r.running = true
	r.logger.Info("bridge started", "bridge", r.BridgeName, "ap", apIf, "upstream", upstreamIf, "rules", rules.Len())
	return nil
}

// moveAddrs moves every IPv4 address from one link to another and returns
// the addresses now on to.
func (r *Router) moveAddrs(from, to netlink.Link) ([]netlink.Addr, error) {
	addrs, err := r.nl.AddrList(from, unix.AF_INET)
	if err != nil {
		return nil, err
	}
	var moved []netlink.Addr
	for i := range addrs {
		a := addrs[i]
		if err := r.nl.AddrDel(from, &a); err != nil {
			return moved, err
		}
		if err := r.nl.AddrAdd(to, &netlink.Addr{IPNet: a.IPNet}); err != nil && !errors.Is(err, unix.EEXIST) {
			if rerr := r.nl.AddrAdd(from, &netlink.Addr{IPNet: a.IPNet}); rerr != nil {
				return moved, errors.Join(err, rerr)
			}
			return moved, err
		}
		moved = append(moved, a)
	}
	return moved, nil
}

func (r *Router) installNAT(wan string, rules *RuleStack) error {
	t := r.table()
	if err := r.commit(rules, Rule{Kind: KindTable, Table: r.Table}, func() { r.nft.AddTable(t) }); err != nil {
		return err
	}

	post := &nftables.Chain{
		Name:     chainPostrouting,
		Table:    t,
		Type:     nftables.ChainTypeNAT,
		Hooknum:  nftables.ChainHookPostrouting,
		Priority: nftables.ChainPriorityNATSource,
	}
	if err := r.commit(rules, Rule{Kind: KindChain, Table: r.Table, Chain: chainPostrouting}, func() { r.nft.AddChain(post) }); err != nil {
		return err
	}

	fwd := &nftables.Chain{
		Name:     chainForward,
		Table:    t,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookForward,
		Priority: nftables.ChainPriorityFilter,
	}
	if err := r.commit(rules, Rule{Kind: KindChain, Table: r.Table, Chain: chainForward}, func() { r.nft.AddChain(fwd) }); err != nil {
		return err
	}

	for _, nr := range []*nftables.Rule{
		masqueradeRule(t, post, wan),
		lanToWANRule(t, fwd, r.BridgeName, wan),
		wanToLANRule(t, fwd, wan, r.BridgeName),
	} {
		entry := Rule{Kind: KindRule, Table: r.Table, Chain: nr.Chain.Name, Comment: string(nr.UserData)}
		if err := r.commit(rules, entry, func() { r.nft.AddRule(nr) }); err != nil {
			return err
		}
	}
	return nil
}

// commit stages one object, flushes it and records it only once the kernel
// accepted it.
func (r *Router) commit(rules *RuleStack, entry Rule, stage func()) error {
	stage()
	if err := r.nft.Flush(); err != nil {
		return fmt.Errorf("commit %s: %w", entry, err)
	}
	rules.Push(entry)
	return nil
}

// remove deletes the object entry describes. Objects that are already gone
// count as removed.
func (r *Router) remove(entry Rule) error {
	t, err := r.findTable(entry.Table)
	if err != nil || t == nil {
		return err
	}

	switch entry.Kind {
	case KindTable:
		r.nft.DelTable(t)
	case KindChain:
		c, err := r.findChain(t, entry.Chain)
		if err != nil || c == nil {
			return err
		}
		r.nft.DelChain(c)
	case KindRule:
		c, err := r.findChain(t, entry.Chain)
		if err != nil || c == nil {
			return err
		}
		existing, err := r.nft.GetRules(t, c)
		if err != nil {
			return fmt.Errorf("list rules: %w", err)
		}
		n := 0
		for _, rule := range existing {
			if string(rule.UserData) != entry.Comment {
				continue
			}
			if err := r.nft.DelRule(rule); err != nil {
				return err
			}
			n++
		}
		if n == 0 {
			return nil
		}
	default:
		return fmt.Errorf("unknown kind %q", entry.Kind)
	}
	return r.nft.Flush()
}

func (r *Router) findTable(name string) (*nftables.Table, error) {
	tables, err := r.nft.ListTables()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	for _, t := range tables {
		if t.Name == name && t.Family == nftables.TableFamilyIPv4 {
			return t, nil
		}
	}
	return nil, nil
}

func (r *Router) findChain(t *nftables.Table, name string) (*nftables.Chain, error) {
	chains, err := r.nft.ListChains()
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	for _, c := range chains {
		if c.Name == name && c.Table != nil && c.Table.Name == t.Name && c.Table.Family == t.Family {
			return c, nil
		}
	}
	return nil, nil
}

// Stop reverses Start: it unwinds rules, disables forwarding, detaches the
// AP interface with its addresses and deletes the bridge. Missing objects are
// skipped; every failure is joined into the result.
func (r *Router) Stop(ctx context.Context, rules *RuleStack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if rules != nil {
		if err := rules.Unwind(r.remove); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.sys.WriteSysctl(ipForward, "0"); err != nil {
		errs = append(errs, fmt.Errorf("disable forwarding: %w", err))
	}

	br, err := r.nl.LinkByName(r.BridgeName)
	switch {
	case network.IsLinkNotFound(err):
		br = nil
	case err != nil:
		errs = append(errs, fmt.Errorf("lookup %s: %w", r.BridgeName, err))
		br = nil
	}

	if r.apIf != "" {
		ap, err := r.nl.LinkByName(r.apIf)
		switch {
		case network.IsLinkNotFound(err):
		case err != nil:
			errs = append(errs, fmt.Errorf("lookup %s: %w", r.apIf, err))
		default:
			if err := r.nl.LinkSetNoMaster(ap); err != nil {
				errs = append(errs, fmt.Errorf("detach %s: %w", r.apIf, err))
			}
			if br != nil {
				if _, err := r.moveAddrs(br, ap); err != nil {
					errs = append(errs, fmt.Errorf("restore addresses to %s: %w", r.apIf, err))
				}
			}
		}
	}

	if br != nil {
		if err := r.nl.LinkDel(br); err != nil && !network.IsLinkNotFound(err) {
			errs = append(errs, fmt.Errorf("delete %s: %w", r.BridgeName, err))
		}
	}

	r.running = false
	r.apIf = ""
	err = errors.Join(errs...)
	if err != nil {
		r.logger.Warn("bridge stop incomplete", "error", err)
	} else {
		r.logger.Info("bridge stopped", "bridge", r.BridgeName)
	}
	return err
}

// Status probes the bridge, forwarding and NAT independently.
func (r *Router) Status(ctx context.Context) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{Running: r.running}
	var errs []error

	br, err := r.nl.LinkByName(r.BridgeName)
	switch {
	case network.IsLinkNotFound(err):
	case err != nil:
		errs = append(errs, fmt.Errorf("lookup %s: %w", r.BridgeName, err))
	default:
		up := br.Attrs().Flags&net.FlagUp != 0
		attached := false
		if r.apIf != "" {
			if ap, err := r.nl.LinkByName(r.apIf); err == nil {
				attached = ap.Attrs().MasterIndex == br.Attrs().Index
			}
		}
		st.BridgeActive = up && attached
	}

	v, err := r.sys.ReadSysctl(ipForward)
	switch {
	case err == nil:
		st.ForwardingEnabled = v == "1"
	case !r.sys.IsNotExist(err):
		errs = append(errs, fmt.Errorf("read %s: %w", ipForward, err))
	}

	nat, err := r.natInstalled()
	if err != nil {
		errs = append(errs, err)
	}
	st.NATEnabled = nat

	return st, errors.Join(errs...)
}

func (r *Router) natInstalled() (bool, error) {
	t, err := r.findTable(r.Table)
	if err != nil || t == nil {
		return false, err
	}
	c, err := r.findChain(t, chainPostrouting)
	if err != nil || c == nil {
		return false, err
	}
	rules, err := r.nft.GetRules(t, c)
	if err != nil {
		return false, fmt.Errorf("list rules: %w", err)
	}
	for _, rule := range rules {
		if string(rule.UserData) == commentMasquerade {
			return true, nil
		}
	}
	return false, nil
}

// Purge deletes the NAT table and the bridge device left behind by an
// unclean exit. Absent objects are not an error.
func (r *Router) Purge(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if err := r.remove(Rule{Kind: KindTable, Table: r.Table}); err != nil {
		errs = append(errs, fmt.Errorf("delete table %s: %w", r.Table, err))
	}
	br, err := r.nl.LinkByName(r.BridgeName)
	switch {
	case network.IsLinkNotFound(err):
	case err != nil:
		errs = append(errs, err)
	default:
		if err := r.nl.LinkDel(br); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", r.BridgeName, err))
		}
	}
	r.running = false
	r.apIf = ""
	return errors.Join(errs...)
}
