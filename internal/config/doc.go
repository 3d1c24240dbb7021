// Package config loads the Jarvis configuration from YAML, TOML or JSON,
// fills defaults relative to the config file's directory and validates the
// backend selections before any component is built.
package config
