// Package config loads and validates the TOML configuration shared by the
// daemon and CLI. Missing files fall back to defaults so a fresh install
// works without any setup.
package config
