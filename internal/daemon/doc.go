// Package daemon wires the board, character library, provider client, and
// polling orchestrator into a single background process with an HTTP API.
// A file lock enforces one daemon instance per data directory.
package daemon
