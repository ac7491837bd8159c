// Package provider talks to the external generative video API.
//
// The Service interface is the only surface the rest of the daemon
// sees: submit a generation job, query a job's status, download a
// finished asset, enhance a prompt. Client implements it over the
// Veo-style HTTP API; tests substitute stubs.
package provider
