// Package web3 holds the chain access abstraction used by the ledger
// capability provider. Concrete EVM access lives in the ethereum
// subpackage.
package web3
