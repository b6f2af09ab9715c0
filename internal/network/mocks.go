package network

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
)

// LinkNotFound returns the error a Netlinker reports for a missing device.
func LinkNotFound(name string) error {
	return fmt.Errorf("link %s not found: %w", name, syscall.ENODEV)
}

// MockNetlinker is a mock implementation of the Netlinker interface.
type MockNetlinker struct {
	mock.Mock
}

func (m *MockNetlinker) LinkByName(name string) (netlink.Link, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(netlink.Link), args.Error(1)
}
func (m *MockNetlinker) LinkList() ([]netlink.Link, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Link), args.Error(1)
}
func (m *MockNetlinker) LinkSetUp(link netlink.Link) error {
	args := m.Called(link)
	return args.Error(0)
}
func (m *MockNetlinker) LinkSetDown(link netlink.Link) error {
	args := m.Called(link)
	return args.Error(0)
}
func (m *MockNetlinker) LinkSetMaster(slave, master netlink.Link) error {
	args := m.Called(slave, master)
	return args.Error(0)
}
func (m *MockNetlinker) LinkSetNoMaster(link netlink.Link) error {
	args := m.Called(link)
	return args.Error(0)
}
func (m *MockNetlinker) LinkAdd(link netlink.Link) error {
	args := m.Called(link)
	return args.Error(0)
}
func (m *MockNetlinker) LinkDel(link netlink.Link) error {
	args := m.Called(link)
	return args.Error(0)
}
func (m *MockNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	args := m.Called(link, family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Addr), args.Error(1)
}
func (m *MockNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	args := m.Called(link, addr)
	return args.Error(0)
}
func (m *MockNetlinker) AddrDel(link netlink.Link, addr *netlink.Addr) error {
	args := m.Called(link, addr)
	return args.Error(0)
}
func (m *MockNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	args := m.Called(link, family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Route), args.Error(1)
}
func (m *MockNetlinker) RouteAdd(route *netlink.Route) error {
	args := m.Called(route)
	return args.Error(0)
}
func (m *MockNetlinker) RouteDel(route *netlink.Route) error {
	args := m.Called(route)
	return args.Error(0)
}
func (m *MockNetlinker) ParseAddr(s string) (*netlink.Addr, error) {
	args := m.Called(s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*netlink.Addr), args.Error(1)
}

// MockSystemController is a mock implementation of the SystemController interface.
type MockSystemController struct {
	mock.Mock
}

func (m *MockSystemController) ReadSysctl(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}
func (m *MockSystemController) WriteSysctl(path, value string) error {
	args := m.Called(path, value)
	return args.Error(0)
}
func (m *MockSystemController) IsNotExist(err error) bool {
	args := m.Called(err)
	return args.Bool(0)
}
func (m *MockSystemController) SignalProcess(pid int, sig syscall.Signal) error {
	args := m.Called(pid, sig)
	return args.Error(0)
}

// MockCommandExecutor is a mock implementation of the CommandExecutor interface.
// Expectations are keyed on the command name followed by each argument; the
// context is not matched.
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) RunCommand(ctx context.Context, name string, arg ...string) (string, error) {
	argsSlice := make([]interface{}, 0, len(arg)+1)
	argsSlice = append(argsSlice, name)
	for _, a := range arg {
		argsSlice = append(argsSlice, a)
	}

	args := m.Called(argsSlice...)
	return args.String(0), args.Error(1)
}

// FakeSystem is an in-memory SystemController. Processes listed in Alive
// answer signal 0; SIGTERM and SIGKILL remove them.
type FakeSystem struct {
	mu      sync.Mutex
	Sysctls map[string]string
	Alive   map[int]bool
	Signals []string
}

// NewFakeSystem creates an empty FakeSystem.
func NewFakeSystem() *FakeSystem {
	return &FakeSystem{Sysctls: map[string]string{}, Alive: map[int]bool{}}
}

// SetAlive marks pid as running.
func (f *FakeSystem) SetAlive(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Alive[pid] = true
}

// Kill marks pid as exited without recording a signal.
func (f *FakeSystem) Kill(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Alive, pid)
}

func (f *FakeSystem) ReadSysctl(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Sysctls[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return v, nil
}

func (f *FakeSystem) WriteSysctl(path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sysctls[path] = value
	return nil
}

func (f *FakeSystem) IsNotExist(err error) bool {
	return os.IsNotExist(err)
}

func (f *FakeSystem) SignalProcess(pid int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Alive[pid] {
		return syscall.ESRCH
	}
	if sig != 0 {
		f.Signals = append(f.Signals, fmt.Sprintf("%d:%s", pid, sig))
	}
	if sig == syscall.SIGTERM || sig == syscall.SIGKILL {
		delete(f.Alive, pid)
	}
	return nil
}

// FakeNetlinker is an in-memory Netlinker tracking links, IPv4 addresses,
// bridge membership and admin state. Errors maps "<Op>:<link>" to a failure
// injected for that call; Calls records every mutating operation in order.
type FakeNetlinker struct {
	mu      sync.Mutex
	Links   map[string]netlink.Link
	Addrs   map[string][]netlink.Addr
	Masters map[string]string
	Up      map[string]bool
	Routes  []netlink.Route
	Errors  map[string]error
	Calls   []string
	nextIdx int
}

// NewFakeNetlinker creates a FakeNetlinker holding the given devices.
func NewFakeNetlinker(names ...string) *FakeNetlinker {
	f := &FakeNetlinker{
		Links:   map[string]netlink.Link{},
		Addrs:   map[string][]netlink.Addr{},
		Masters: map[string]string{},
		Up:      map[string]bool{},
		Errors:  map[string]error{},
		nextIdx: 1,
	}
	for _, n := range names {
		f.add(&netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: n}})
	}
	return f
}

func (f *FakeNetlinker) add(l netlink.Link) {
	l.Attrs().Index = f.nextIdx
	f.nextIdx++
	f.Links[l.Attrs().Name] = l
}

// fail records the call and returns any injected error. Caller holds mu.
func (f *FakeNetlinker) fail(op, name string) error {
	f.Calls = append(f.Calls, op+" "+name)
	return f.Errors[op+":"+name]
}

// SetAddrs replaces the IPv4 addresses of name.
func (f *FakeNetlinker) SetAddrs(name string, cidrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Addrs[name] = nil
	for _, c := range cidrs {
		a, err := netlink.ParseAddr(c)
		if err != nil {
			panic(err)
		}
		f.Addrs[name] = append(f.Addrs[name], *a)
	}
}

// AddrStrings returns the addresses of name in CIDR notation.
func (f *FakeNetlinker) AddrStrings(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.Addrs[name] {
		out = append(out, a.IPNet.String())
	}
	return out
}

// Has reports whether a link named name exists.
func (f *FakeNetlinker) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Links[name]
	return ok
}

func (f *FakeNetlinker) LinkByName(name string) (netlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errors["LinkByName:"+name]; err != nil {
		return nil, err
	}
	l, ok := f.Links[name]
	if !ok {
		return nil, LinkNotFound(name)
	}
	return l, nil
}

func (f *FakeNetlinker) LinkList() ([]netlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]netlink.Link, 0, len(f.Links))
	for _, l := range f.Links {
		out = append(out, l)
	}
	return out, nil
}

func (f *FakeNetlinker) LinkSetUp(link netlink.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := link.Attrs().Name
	if err := f.fail("LinkSetUp", name); err != nil {
		return err
	}
	if _, ok := f.Links[name]; !ok {
		return LinkNotFound(name)
	}
	f.Up[name] = true
	f.Links[name].Attrs().Flags |= net.FlagUp
	return nil
}

func (f *FakeNetlinker) LinkSetDown(link netlink.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := link.Attrs().Name
	if err := f.fail("LinkSetDown", name); err != nil {
		return err
	}
	delete(f.Up, name)
	if l, ok := f.Links[name]; ok {
		l.Attrs().Flags &^= net.FlagUp
	}
	return nil
}

func (f *FakeNetlinker) LinkSetMaster(slave, master netlink.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := slave.Attrs().Name
	if err := f.fail("LinkSetMaster", name); err != nil {
		return err
	}
	if _, ok := f.Links[name]; !ok {
		return LinkNotFound(name)
	}
	if _, ok := f.Links[master.Attrs().Name]; !ok {
		return LinkNotFound(master.Attrs().Name)
	}
	f.Masters[name] = master.Attrs().Name
	f.Links[name].Attrs().MasterIndex = f.Links[master.Attrs().Name].Attrs().Index
	return nil
}

func (f *FakeNetlinker) LinkSetNoMaster(link netlink.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := link.Attrs().Name
	if err := f.fail("LinkSetNoMaster", name); err != nil {
		return err
	}
	delete(f.Masters, name)
	if l, ok := f.Links[name]; ok {
		l.Attrs().MasterIndex = 0
	}
	return nil
}

func (f *FakeNetlinker) LinkAdd(link netlink.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := link.Attrs().Name
	if err := f.fail("LinkAdd", name); err != nil {
		return err
	}
	if _, ok := f.Links[name]; ok {
		return syscall.EEXIST
	}
	f.add(link)
	return nil
}

func (f *FakeNetlinker) LinkDel(link netlink.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := link.Attrs().Name
	if err := f.fail("LinkDel", name); err != nil {
		return err
	}
	if _, ok := f.Links[name]; !ok {
		return LinkNotFound(name)
	}
	delete(f.Links, name)
	delete(f.Addrs, name)
	delete(f.Up, name)
	for slave, master := range f.Masters {
		if master == name || slave == name {
			delete(f.Masters, slave)
			if l, ok := f.Links[slave]; ok {
				l.Attrs().MasterIndex = 0
			}
		}
	}
	return nil
}

func (f *FakeNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if link == nil {
		return nil, nil
	}
	return append([]netlink.Addr(nil), f.Addrs[link.Attrs().Name]...), nil
}

func (f *FakeNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := link.Attrs().Name
	if err := f.fail("AddrAdd", name); err != nil {
		return err
	}
	for _, a := range f.Addrs[name] {
		if a.IPNet.String() == addr.IPNet.String() {
			return syscall.EEXIST
		}
	}
	f.Addrs[name] = append(f.Addrs[name], netlink.Addr{IPNet: addr.IPNet})
	return nil
}

func (f *FakeNetlinker) AddrDel(link netlink.Link, addr *netlink.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := link.Attrs().Name
	if err := f.fail("AddrDel", name); err != nil {
		return err
	}
	kept := f.Addrs[name][:0]
	found := false
	for _, a := range f.Addrs[name] {
		if a.IPNet.String() == addr.IPNet.String() {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return syscall.EADDRNOTAVAIL
	}
	f.Addrs[name] = kept
	return nil
}

func (f *FakeNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]netlink.Route(nil), f.Routes...), nil
}

func (f *FakeNetlinker) RouteAdd(route *netlink.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "RouteAdd")
	f.Routes = append(f.Routes, *route)
	return nil
}

func (f *FakeNetlinker) RouteDel(route *netlink.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "RouteDel")
	return nil
}

func (f *FakeNetlinker) ParseAddr(s string) (*netlink.Addr, error) {
	return netlink.ParseAddr(s)
}
