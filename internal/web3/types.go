package web3

import "context"

// ChainSnapshot represents summarized network metadata.
type ChainSnapshot struct {
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Client is the read-only chain surface the ledger provider depends on.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Balance(ctx context.Context, address string) (string, error)
	Nonce(ctx context.Context, address string) (string, error)
	Close()
}
