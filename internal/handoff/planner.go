package handoff

import (
	"context"
	"log/slog"

	"Jarvis-Orchestrator/internal/agent"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/pkg/logger"
)

const (
	MessageNoRegistry         = "no_registry"
	MessageAgentNotFound      = "agent_not_found"
	MessageCannotPerform      = "agent_cannot_perform"
	MessagePreconditionFailed = "precondition_failed"
	failedPrereqPrefix        = "failed_prereq:"
)

// Directory 是跨 Agent 规划所需的注册表能力。
type Directory interface {
	Get(name string) (agent.Provider, bool)
	FindForIntent(in intent.Intent) (agent.Provider, bool)
}

// Planner 选择提供方、满足前置条件并调用 Perform。
type Planner struct {
	registry Directory
	logger   *slog.Logger
}

// New 创建跨 Agent 规划器。registry 可以为 nil，此时所有请求返回 no_registry。
func New(registry Directory) *Planner {
	return &Planner{registry: registry, logger: logger.Named("handoff")}
}

// Handle 处理一次委派请求。
func (p *Planner) Handle(ctx context.Context, in intent.Intent) agent.Outcome {
	if p.registry == nil {
		return agent.Fail(MessageNoRegistry)
	}

	provider := p.selectProvider(in)
	if provider == nil {
		return agent.Fail(MessageAgentNotFound)
	}
	log := p.logger.With(slog.String("agent", provider.Name()), slog.String("intent", in.Name))

	pre := agent.Satisfied
	if checker, ok := provider.(agent.PreconditionChecker); ok {
		pre = checker.CheckPrecondition(ctx, in)
	}
	if !pre.OK {
		if pre.Requires != nil {
			if helper, ok := p.registry.Get(pre.Requires.Agent); ok && helper != nil {
				if performer, ok := helper.(agent.Performer); ok {
					log.Info("执行前置 Agent", slog.String("helper", helper.Name()), slog.String("sub_intent", pre.Requires.Intent.Name))
					sub := performer.Perform(ctx, pre.Requires.Intent)
					if !sub.OK {
						return agent.Fail(failedPrereqPrefix + sub.Message)
					}
					return perform(ctx, provider, in)
				}
			}
		}
		if pre.Reason != "" {
			return agent.Fail(pre.Reason)
		}
		return agent.Fail(MessagePreconditionFailed)
	}

	return perform(ctx, provider, in)
}

func (p *Planner) selectProvider(in intent.Intent) agent.Provider {
	if provider, ok := p.registry.FindForIntent(in); ok && provider != nil {
		return provider
	}
	if in.Agent == "" {
		return nil
	}
	if provider, ok := p.registry.Get(in.Agent); ok {
		return provider
	}
	return nil
}

func perform(ctx context.Context, provider agent.Provider, in intent.Intent) agent.Outcome {
	performer, ok := provider.(agent.Performer)
	if !ok {
		return agent.Fail(MessageCannotPerform)
	}
	return performer.Perform(ctx, in)
}
