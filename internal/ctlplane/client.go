package ctlplane

import (
	"errors"
	"fmt"
	"io"
	"net/rpc"
	"strings"
	"sync"
)

// Client is the RPC client for communicating with the control plane.
type Client struct {
	path   string
	client *rpc.Client
	mu     sync.RWMutex
}

// NewClient connects to the control socket at path.
func NewClient(path string) (*Client, error) {
	client, err := rpc.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control plane at %s: %w", path, err)
	}
	return &Client{path: path, client: client}, nil
}

// Close closes the RPC connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// call wraps the RPC call with reconnection logic.
func (c *Client) call(serviceMethod string, args any, reply any) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil {
		if err := c.reconnect(nil); err != nil {
			return err
		}
		c.mu.RLock()
		client = c.client
		c.mu.RUnlock()
	}

	err := client.Call(serviceMethod, args, reply)
	if err == nil {
		return nil
	}

	if errors.Is(err, rpc.ErrShutdown) || isNetworkError(err) {
		// Pass the failed client so concurrent callers reconnect once.
		if recErr := c.reconnect(client); recErr != nil {
			return fmt.Errorf("RPC call failed (%v) and reconnection failed: %w", err, recErr)
		}
		c.mu.RLock()
		client = c.client
		c.mu.RUnlock()
		return client.Call(serviceMethod, args, reply)
	}

	return err
}

// reconnect establishes a new connection unless another caller already
// replaced old.
func (c *Client) reconnect(old *rpc.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != old && c.client != nil {
		return nil
	}
	if c.client != nil {
		c.client.Close()
	}

	client, err := rpc.Dial("unix", c.path)
	if err != nil {
		return fmt.Errorf("failed to reconnect to control plane: %w", err)
	}
	c.client = client
	return nil
}

func isNetworkError(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection is shut down") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "bad file descriptor") ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "use of closed network connection")
}

// GetStatus returns the daemon and extender status.
func (c *Client) GetStatus() (*GetStatusReply, error) {
	var reply GetStatusReply
	if err := c.call("Server.GetStatus", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Up starts the extender.
func (c *Client) Up() (*LifecycleReply, error) {
	var reply LifecycleReply
	if err := c.call("Server.Up", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Down stops the extender.
func (c *Client) Down() (*LifecycleReply, error) {
	var reply LifecycleReply
	if err := c.call("Server.Down", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Reload asks the daemon to re-read its configuration file.
func (c *Client) Reload() (*LifecycleReply, error) {
	var reply LifecycleReply
	if err := c.call("Server.Reload", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Scan lists upstream networks in range.
func (c *Client) Scan() (*ScanReply, error) {
	var reply ScanReply
	if err := c.call("Server.Scan", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Clients lists hotspot stations.
func (c *Client) Clients() (*ClientsReply, error) {
	var reply ClientsReply
	if err := c.call("Server.Clients", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// History returns up to limit lifecycle transitions, oldest first.
func (c *Client) History(limit int) (*HistoryReply, error) {
	var reply HistoryReply
	if err := c.call("Server.History", &HistoryArgs{Limit: limit}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
