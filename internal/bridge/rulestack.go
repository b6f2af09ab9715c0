package bridge

import (
	"errors"
	"fmt"
	"sync"
)

// Kind identifies the nftables object a Rule stands for.
type Kind string

const (
	KindTable Kind = "table"
	KindChain Kind = "chain"
	KindRule  Kind = "rule"
)

// Rule is one firewall object the router committed. Rules are identified by
// the comment stored in their user data.
type Rule struct {
	Kind    Kind   `json:"kind"`
	Table   string `json:"table"`
	Chain   string `json:"chain,omitempty"`
	Comment string `json:"comment,omitempty"`
}

func (r Rule) String() string {
	switch r.Kind {
	case KindTable:
		return fmt.Sprintf("table %s", r.Table)
	case KindChain:
		return fmt.Sprintf("chain %s/%s", r.Table, r.Chain)
	default:
		return fmt.Sprintf("rule %s/%s %q", r.Table, r.Chain, r.Comment)
	}
}

// RuleStack records applied firewall objects in the order they were
// committed so they can be removed in exactly the reverse order.
// It is safe for concurrent use.
type RuleStack struct {
	mu      sync.Mutex
	entries []Rule
}

// NewRuleStack returns a stack holding entries, bottom first. Used to
// restore a stack persisted by a previous run.
func NewRuleStack(entries ...Rule) *RuleStack {
	return &RuleStack{entries: append([]Rule(nil), entries...)}
}

// Push records r as the most recently applied object.
func (s *RuleStack) Push(r Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, r)
}

// Len returns the number of recorded objects.
func (s *RuleStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of the stack, bottom first.
func (s *RuleStack) Entries() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Rule(nil), s.entries...)
}

// Unwind pops every entry, newest first, and calls remove for each.
func (s *RuleStack) Unwind(remove func(Rule) error) error {
	return s.UnwindTo(0, remove)
}

// UnwindTo pops entries until n remain. A failing remove does not stop the
// unwind; the entry is dropped and every failure is joined into the result.
func (s *RuleStack) UnwindTo(n int, remove func(Rule) error) error {
	if n < 0 {
		n = 0
	}
	var errs []error
	for {
		r, ok := s.pop(n)
		if !ok {
			break
		}
		if err := remove(r); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", r, err))
		}
	}
	return errors.Join(errs...)
}

func (s *RuleStack) pop(floor int) (Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) <= floor {
		return Rule{}, false
	}
	last := len(s.entries) - 1
	r := s.entries[last]
	s.entries = s.entries[:last]
	return r, true
}
