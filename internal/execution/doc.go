// Package execution runs planned tasks against registered capability
// providers. Every task is bracketed by task.start and task.end events in
// the durable event log, with an optional policy check in between.
package execution
