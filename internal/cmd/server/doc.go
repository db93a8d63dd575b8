// Package serverrun wires the engine, tubes service and HTTP server
// together and runs them until shutdown.
package serverrun
