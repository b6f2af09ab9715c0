package extender

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"grimm.is/repeater/internal/bridge"
	"grimm.is/repeater/internal/hotspot"
	"grimm.is/repeater/internal/radio"
	"grimm.is/repeater/internal/state"
	"grimm.is/repeater/internal/upstream"
)

// journal records mutating collaborator calls in order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

func (j *journal) count(call string) int {
	n := 0
	for _, c := range j.list() {
		if c == call {
			n++
		}
	}
	return n
}

func (j *journal) has(prefix string) bool {
	for _, c := range j.list() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (j *journal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = nil
}

type fakeVirtualizer struct {
	j  *journal
	mu sync.Mutex

	live       map[string]bool
	createErr  error
	destroyErr error
	existsHits int
}

func newFakeVirtualizer(j *journal) *fakeVirtualizer {
	return &fakeVirtualizer{j: j, live: make(map[string]bool)}
}

func (f *fakeVirtualizer) Create(_ context.Context, physical, suffix string) (radio.Handle, error) {
	f.j.add("vif.Create %s %s", physical, suffix)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return radio.Handle{}, f.createErr
	}
	h := radio.Handle{Physical: physical, Name: radio.InterfaceName(physical, suffix)}
	f.live[h.Name] = true
	return h, nil
}

func (f *fakeVirtualizer) Destroy(_ context.Context, h radio.Handle) error {
	f.j.add("vif.Destroy %s", h.Name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyErr != nil {
		return f.destroyErr
	}
	delete(f.live, h.Name)
	return nil
}

func (f *fakeVirtualizer) Exists(_ context.Context, h radio.Handle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsHits++
	return f.live[h.Name], nil
}

func (f *fakeVirtualizer) vanish(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, name)
}

type fakeUpstream struct {
	j     *journal
	iface string

	mu            sync.Mutex
	connected     bool
	ssid          string
	signal        *int
	connectErr    error
	disconnectErr error
	statusErr     error
	// statusBlock makes Status wait for ctx when set.
	statusBlock bool
	// connectGate makes Connect wait until it is closed.
	connectGate chan struct{}
}

func newFakeUpstream(j *journal) *fakeUpstream {
	return &fakeUpstream{j: j, iface: "wlan0"}
}

func (f *fakeUpstream) Connect(_ context.Context, ssid, _ string) error {
	f.j.add("up.Connect %s", ssid)
	f.mu.Lock()
	gate := f.connectGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.ssid = ssid
	return nil
}

func (f *fakeUpstream) Disconnect(_ context.Context) error {
	f.j.add("up.Disconnect")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disconnectErr != nil {
		return f.disconnectErr
	}
	f.connected = false
	f.ssid = ""
	return nil
}

func (f *fakeUpstream) Status(ctx context.Context) (upstream.Status, error) {
	f.mu.Lock()
	block, err := f.statusBlock, f.statusErr
	st := upstream.Status{Connected: f.connected, SSID: f.ssid, SignalDBm: f.signal}
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return upstream.Status{}, ctx.Err()
	}
	return st, err
}

func (f *fakeUpstream) Interface() string { return f.iface }

func (f *fakeUpstream) set(fn func(f *fakeUpstream)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeAccessPoint struct {
	j *journal

	mu         sync.Mutex
	iface      string
	settings   hotspot.Settings
	running    bool
	startErr   error
	stopErr    error
	clients    []hotspot.Client
	clientsErr error
}

func newFakeAccessPoint(j *journal) *fakeAccessPoint {
	return &fakeAccessPoint{j: j}
}

func (f *fakeAccessPoint) Configure(iface string, s hotspot.Settings) error {
	f.j.add("ap.Configure %s", iface)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iface = iface
	f.settings = s
	return nil
}

func (f *fakeAccessPoint) Start(_ context.Context) error {
	f.j.add("ap.Start")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return hotspot.ErrAlreadyRunning
	}
	f.running = true
	return nil
}

func (f *fakeAccessPoint) Stop(_ context.Context) error {
	f.j.add("ap.Stop")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.running = false
	return nil
}

func (f *fakeAccessPoint) Alive(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeAccessPoint) Clients(_ context.Context) ([]hotspot.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running && f.clientsErr == nil {
		return nil, hotspot.ErrNotRunning
	}
	return append([]hotspot.Client(nil), f.clients...), f.clientsErr
}

func (f *fakeAccessPoint) set(fn func(f *fakeAccessPoint)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeBridge struct {
	j *journal

	mu        sync.Mutex
	running   bool
	startErr  error
	stopErr   error
	statusErr error
	// stopped holds the rule stack length seen by each Stop.
	stopped []int
}

func newFakeBridge(j *journal) *fakeBridge {
	return &fakeBridge{j: j}
}

func (f *fakeBridge) Start(_ context.Context, upstreamIf, apIf string, rules *bridge.RuleStack) error {
	f.j.add("br.Start %s %s", upstreamIf, apIf)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	rules.Push(bridge.Rule{Kind: bridge.KindTable, Table: bridge.DefaultTable})
	rules.Push(bridge.Rule{Kind: bridge.KindRule, Table: bridge.DefaultTable, Chain: "postrouting", Comment: "repeater-masquerade"})
	f.running = true
	return nil
}

func (f *fakeBridge) Stop(_ context.Context, rules *bridge.RuleStack) error {
	f.j.add("br.Stop")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, rules.Len())
	_ = rules.Unwind(func(bridge.Rule) error { return nil })
	f.running = false
	return f.stopErr
}

func (f *fakeBridge) Status(_ context.Context) (bridge.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return bridge.Status{}, f.statusErr
	}
	return bridge.Status{
		Running:           f.running,
		ForwardingEnabled: f.running,
		NATEnabled:        f.running,
		BridgeActive:      f.running,
	}, nil
}

func (f *fakeBridge) Purge(_ context.Context) error {
	f.j.add("br.Purge")
	return nil
}

func (f *fakeBridge) set(fn func(f *fakeBridge)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// memStore is an in-memory Store.
type memStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string][]byte)}
}

func (m *memStore) GetJSON(bucket, key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[bucket][key]
	if !ok {
		return state.ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func (m *memStore) SetJSON(bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[bucket] == nil {
		m.data[bucket] = make(map[string][]byte)
	}
	m.data[bucket][key] = raw
	return nil
}

func (m *memStore) SetJSONWithTTL(bucket, key string, v any, _ time.Duration) error {
	return m.SetJSON(bucket, key, v)
}

func (m *memStore) Delete(bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[bucket][key]; !ok {
		return state.ErrNotFound
	}
	delete(m.data[bucket], key)
	return nil
}

func (m *memStore) has(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[bucket][key]
	return ok
}

func (m *memStore) history() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data[state.BucketHistory] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Transition, 0, len(keys))
	for _, k := range keys {
		var t Transition
		if json.Unmarshal(m.data[state.BucketHistory][k], &t) == nil {
			out = append(out, t)
		}
	}
	return out
}
