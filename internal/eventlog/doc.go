// Package eventlog implements the durable, append-only audit trail of the
// pipeline as newline-delimited JSON envelopes.
//
// Every append is a single write of one complete line. Durability is chosen
// per log: SyncEveryWrite fsyncs before Append returns, so a returned
// envelope survives a crash; SyncBatched(n) fsyncs every n appends and on
// Close, so up to n-1 trailing lines may be lost on crash. The last synced
// line is always durable. Readers skip lines that do not decode, which
// covers a torn final line.
package eventlog
