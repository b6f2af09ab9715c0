package ctlplane

import (
	"github.com/stretchr/testify/mock"
)

// MockControlPlaneClient is a mock implementation of ControlPlaneClient for testing.
type MockControlPlaneClient struct {
	mock.Mock
}

var _ ControlPlaneClient = (*MockControlPlaneClient)(nil)

func (m *MockControlPlaneClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockControlPlaneClient) GetStatus() (*GetStatusReply, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GetStatusReply), args.Error(1)
}

func (m *MockControlPlaneClient) History(limit int) (*HistoryReply, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*HistoryReply), args.Error(1)
}

func (m *MockControlPlaneClient) lifecycle(method string) (*LifecycleReply, error) {
	args := m.MethodCalled(method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*LifecycleReply), args.Error(1)
}

func (m *MockControlPlaneClient) Up() (*LifecycleReply, error)     { return m.lifecycle("Up") }
func (m *MockControlPlaneClient) Down() (*LifecycleReply, error)   { return m.lifecycle("Down") }
func (m *MockControlPlaneClient) Reload() (*LifecycleReply, error) { return m.lifecycle("Reload") }

func (m *MockControlPlaneClient) Scan() (*ScanReply, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ScanReply), args.Error(1)
}

func (m *MockControlPlaneClient) Clients() (*ClientsReply, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ClientsReply), args.Error(1)
}
