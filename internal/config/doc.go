// Package config loads, normalizes, and validates reelboard's TOML
// configuration.
//
// Load locates the config file (explicit flag path, then
// ~/.config/reelboard/config.toml, then ./reelboard.toml), merges it over
// repository defaults, expands home-relative paths, and rejects values
// the daemon cannot run with. The embedded sample_config.toml seeds new
// installs via `reelboard config init`.
package config
