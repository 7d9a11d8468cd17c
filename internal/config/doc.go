// Package config loads, normalizes, and validates irodsd configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and checks documents against the bundled JSON
// schema or an operator-supplied one. The Config type centralizes every knob
// the supervisor and its workers need: mailbox naming and sizing, shutdown
// timing, heartbeat cadence, and the control-plane bind address.
//
// Always obtain settings through this package so the supervisor hands workers
// sanitized, validated values instead of re-reading the file in every child.
package config
