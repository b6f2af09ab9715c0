// Package ctlplane implements the repeater's local control plane.
//
// # Overview
//
// The daemon owns the extender lifecycle and exposes it over net/rpc on a
// Unix socket (see brand.GetSocketPath). The CLI connects as a client to
// query status and to bring the extender up or down.
//
//	repeater up → Client → Unix Socket → Server → extender.Orchestrator
//
// # Key Types
//
//   - [Server]: RPC server wrapping the orchestrator
//   - [Client]: RPC client used by the CLI
//   - [ControlPlaneClient]: Interface for mocking in tests
//
// # Adding New RPC Methods
//
//  1. Define request/reply types in types.go
//  2. Add method to Server in server.go
//  3. Add client method in client.go
//  4. Add interface method in client_interface.go
//  5. Add mock implementation in client_mock.go
//
// # Example
//
// Starting the server:
//
//	server := ctlplane.NewServer(cfg, configPath, orch, logger)
//	server.SetStateStore(store)
//	server.Start()
//
// Using the client:
//
//	client, err := ctlplane.NewClient(brand.GetSocketPath())
//	status, err := client.GetStatus()
package ctlplane
