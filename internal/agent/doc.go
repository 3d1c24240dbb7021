// Package agent defines the capability-provider contract consumed by the
// orchestration pipeline together with the registry that resolves providers
// by name, priority and intent. Optional capabilities (perform, precondition
// checks, intent matching, priority and risk metadata) are separate
// interfaces discovered by type assertion.
package agent
