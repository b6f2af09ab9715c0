//go:build linux

package bridge

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/google/nftables"
)

// MockNFTConn is an in-memory NFTConn. Operations are staged and applied
// atomically by Flush, as with a netlink batch. FlushErrors injects a failure
// into the nth Flush (1-based); a failed Flush discards the batch.
type MockNFTConn struct {
	mu sync.Mutex

	tables map[string]*nftables.Table
	chains map[string]*nftables.Chain
	rules  map[string][]*nftables.Rule

	pending    []func() error
	flushes    int
	nextHandle uint64

	FlushErrors map[int]error
	// Log lists committed operations, e.g. "add rule repeater/forward repeater-lan-wan".
	Log []string
}

// NewMockNFTConn creates an empty MockNFTConn.
func NewMockNFTConn() *MockNFTConn {
	return &MockNFTConn{
		tables:      make(map[string]*nftables.Table),
		chains:      make(map[string]*nftables.Chain),
		rules:       make(map[string][]*nftables.Rule),
		FlushErrors: make(map[int]error),
	}
}

func chainKey(c *nftables.Chain) string {
	return c.Table.Name + "/" + c.Name
}

func (m *MockNFTConn) stage(fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, fn)
}

func (m *MockNFTConn) AddTable(t *nftables.Table) *nftables.Table {
	m.stage(func() error {
		if _, ok := m.tables[t.Name]; !ok {
			m.tables[t.Name] = t
		}
		m.Log = append(m.Log, "add table "+t.Name)
		return nil
	})
	return t
}

func (m *MockNFTConn) DelTable(t *nftables.Table) {
	m.stage(func() error {
		if _, ok := m.tables[t.Name]; !ok {
			return syscall.ENOENT
		}
		delete(m.tables, t.Name)
		for k, c := range m.chains {
			if c.Table.Name == t.Name {
				delete(m.chains, k)
				delete(m.rules, k)
			}
		}
		m.Log = append(m.Log, "del table "+t.Name)
		return nil
	})
}

func (m *MockNFTConn) ListTables() ([]*nftables.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*nftables.Table, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t)
	}
	return out, nil
}

func (m *MockNFTConn) AddChain(c *nftables.Chain) *nftables.Chain {
	m.stage(func() error {
		if _, ok := m.tables[c.Table.Name]; !ok {
			return syscall.ENOENT
		}
		m.chains[chainKey(c)] = c
		m.Log = append(m.Log, "add chain "+chainKey(c))
		return nil
	})
	return c
}

func (m *MockNFTConn) DelChain(c *nftables.Chain) {
	m.stage(func() error {
		k := chainKey(c)
		if _, ok := m.chains[k]; !ok {
			return syscall.ENOENT
		}
		if len(m.rules[k]) > 0 {
			return syscall.EBUSY
		}
		delete(m.chains, k)
		m.Log = append(m.Log, "del chain "+k)
		return nil
	})
}

func (m *MockNFTConn) ListChains() ([]*nftables.Chain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*nftables.Chain, 0, len(m.chains))
	for _, c := range m.chains {
		out = append(out, c)
	}
	return out, nil
}

func (m *MockNFTConn) AddRule(r *nftables.Rule) *nftables.Rule {
	m.stage(func() error {
		k := chainKey(r.Chain)
		if _, ok := m.chains[k]; !ok {
			return syscall.ENOENT
		}
		m.nextHandle++
		r.Handle = m.nextHandle
		m.rules[k] = append(m.rules[k], r)
		m.Log = append(m.Log, fmt.Sprintf("add rule %s %s", k, r.UserData))
		return nil
	})
	return r
}

func (m *MockNFTConn) DelRule(r *nftables.Rule) error {
	if r.Handle == 0 {
		return fmt.Errorf("rule must have a handle")
	}
	m.stage(func() error {
		k := chainKey(r.Chain)
		kept := m.rules[k][:0]
		found := false
		for _, existing := range m.rules[k] {
			if existing.Handle == r.Handle {
				found = true
				continue
			}
			kept = append(kept, existing)
		}
		if !found {
			return syscall.ENOENT
		}
		m.rules[k] = kept
		m.Log = append(m.Log, fmt.Sprintf("del rule %s %s", k, r.UserData))
		return nil
	})
	return nil
}

func (m *MockNFTConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := t.Name + "/" + c.Name
	if _, ok := m.chains[k]; !ok {
		return nil, syscall.ENOENT
	}
	return append([]*nftables.Rule(nil), m.rules[k]...), nil
}

func (m *MockNFTConn) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	batch := m.pending
	m.pending = nil
	if err := m.FlushErrors[m.flushes]; err != nil {
		return err
	}
	for _, fn := range batch {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// Flushes returns the number of Flush calls.
func (m *MockNFTConn) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Rules returns the comments of committed rules in table/chain.
func (m *MockNFTConn) Rules(table, chain string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.rules[table+"/"+chain] {
		out = append(out, string(r.UserData))
	}
	return out
}

// HasTable reports whether table is committed.
func (m *MockNFTConn) HasTable(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[name]
	return ok
}
