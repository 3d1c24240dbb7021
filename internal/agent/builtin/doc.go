// Package builtin provides the capability providers shipped with the
// orchestrator: simulated device agents, a system agent gated by runtime
// approval, a music agent with local and streaming playback, and a ledger
// agent backed by an EVM RPC endpoint.
package builtin
