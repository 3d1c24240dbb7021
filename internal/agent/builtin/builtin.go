package builtin

import (
	"Jarvis-Orchestrator/internal/agent"
	"Jarvis-Orchestrator/internal/web3"
)

// Deps 汇集内置提供方的外部依赖。
type Deps struct {
	Radio       *Radio
	Approver    Approver
	Runner      Runner
	MusicDir    string
	StreamBase  string
	Player      Player
	SearchBase  string
	LedgerChain web3.Client
}

// Providers 按固定顺序构造全部内置提供方。LedgerChain 为 nil 时不包含 chain_agent。
func Providers(deps Deps) []agent.Provider {
	radio := deps.Radio
	if radio == nil {
		radio = NewRadio(false)
	}
	musicOpts := []MusicOption{WithStreamSources(YouTube{BaseURL: deps.StreamBase})}
	if deps.Player != nil {
		musicOpts = append(musicOpts, WithPlayer(deps.Player))
	}

	providers := []agent.Provider{
		Noop{},
		NewWifi(radio),
		Network{},
		Power{},
		App{},
		Search{BaseURL: deps.SearchBase},
		NewSystem(deps.Approver, deps.Runner, radio),
		NewMusic(deps.MusicDir, musicOpts...),
	}
	if deps.LedgerChain != nil {
		providers = append(providers, NewLedger(deps.LedgerChain))
	}
	return providers
}

// NewRegistry 构造包含全部内置提供方的注册表。
func NewRegistry(deps Deps) *agent.Registry {
	return agent.NewRegistry(Providers(deps)...)
}
