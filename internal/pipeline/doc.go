// Package pipeline is the single entry point used by the daemon and the CLI
// to turn a parsed intent into executed tasks, a pending confirmation, or a
// delegated handoff.
package pipeline
