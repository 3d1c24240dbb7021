package builtin

import (
	"context"

	"Jarvis-Orchestrator/internal/agent"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/web3"
)

// Ledger 通过 EVM RPC 查询链状态，只读。
type Ledger struct {
	client web3.Client
}

// NewLedger 创建 chain_agent。
func NewLedger(client web3.Client) *Ledger {
	return &Ledger{client: client}
}

func (l *Ledger) Name() string { return "chain_agent" }

// Execute 支持 status、balance、nonce。
func (l *Ledger) Execute(ctx context.Context, action string, args map[string]any) (map[string]any, error) {
	if l.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链客户端")
	}
	switch action {
	case "status":
		snap, err := l.client.FetchChainSnapshot(ctx)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeProviderFault, err, "查询链状态失败")
		}
		return map[string]any{
			"chain_id":     snap.ChainID,
			"block_number": snap.BlockNumber,
			"notes":        snap.Notes,
		}, nil
	case "balance":
		addr := stringArg(args, "address")
		balance, err := l.client.Balance(ctx, addr)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeProviderFault, err, "查询余额失败")
		}
		return map[string]any{"address": addr, "balance": balance}, nil
	case "nonce":
		addr := stringArg(args, "address")
		nonce, err := l.client.Nonce(ctx, addr)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeProviderFault, err, "查询交易计数失败")
		}
		return map[string]any{"address": addr, "nonce": nonce}, nil
	default:
		return nil, agent.UnknownAction(action)
	}
}

// Close 释放链客户端。
func (l *Ledger) Close() {
	if l.client != nil {
		l.client.Close()
	}
}
