// Package api is the application service layer shared by the HTTP surface
// and the CLI. It validates requests, enforces the submission and
// character-link rules, and translates scenes into transport DTOs.
package api
