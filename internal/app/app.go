package app

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"Jarvis-Orchestrator/internal/agent"
	"Jarvis-Orchestrator/internal/agent/builtin"
	"Jarvis-Orchestrator/internal/approval"
	"Jarvis-Orchestrator/internal/config"
	"Jarvis-Orchestrator/internal/confirm"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/eventlog"
	"Jarvis-Orchestrator/internal/execution"
	"Jarvis-Orchestrator/internal/handoff"
	"Jarvis-Orchestrator/internal/pipeline"
	"Jarvis-Orchestrator/internal/planner"
	"Jarvis-Orchestrator/internal/policy"
	"Jarvis-Orchestrator/internal/router"
	"Jarvis-Orchestrator/internal/storage/mysql"
	"Jarvis-Orchestrator/internal/web3/ethereum"
	"Jarvis-Orchestrator/pkg/logger"
)

// App 持有一次进程生命周期内共享的编排组件。
type App struct {
	Config    *config.Config
	Events    *eventlog.Log
	Approvals *approval.Store
	Registry  *agent.Registry
	Policy    *policy.Engine
	Router    *router.Router
	Executor  *execution.Manager
	Pipeline  *pipeline.Pipeline

	closers []func() error
}

// Option 定义可选配置。
type Option func(*options)

type options struct {
	confirmer approval.Confirmer
	registry  *agent.Registry
}

// WithConfirmer 为 system_agent 的运行时确认指定交互方式。未指定时一律拒绝。
func WithConfirmer(c approval.Confirmer) Option {
	return func(o *options) {
		o.confirmer = c
	}
}

// WithRegistry 替换内置提供方注册表。
func WithRegistry(r *agent.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// Build 按配置装配事件日志、授权存储、提供方与流水线。
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "config 不能为空")
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建数据目录失败")
	}

	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	mode, err := cfg.EventLog.Mode()
	if err != nil {
		return nil, err
	}
	events, err := eventlog.Open(cfg.EventLog.Path, eventlog.WithDurability(mode))
	if err != nil {
		return nil, err
	}
	a.Events = events
	a.closers = append(a.closers, events.Close)

	approvals, err := OpenApprovals(ctx, cfg.Approvals, approval.WithConfirmer(o.confirmer))
	if err != nil {
		return nil, err
	}
	a.Approvals = approvals
	a.closers = append(a.closers, approvals.Close)

	registry := o.registry
	if registry == nil {
		registry, err = a.builtinRegistry(ctx)
		if err != nil {
			return nil, err
		}
	}
	a.Registry = registry

	a.Policy = policy.NewEngine(cfg.Policy.EngineOptions()...)
	a.Router = router.New(planner.New(), registry, approvals)
	a.Executor = execution.NewManager(registry, events, execution.WithPolicy(a.Policy))
	coordinator := confirm.NewCoordinator(a.Router, a.Executor, approvals)
	a.Pipeline = pipeline.New(a.Router, a.Executor, coordinator, handoff.New(registry))

	logger.Named("app").Info("编排组件已就绪",
		slog.String("event_log", events.Path()),
		slog.String("durability", mode.String()),
		slog.String("approvals", cfg.Approvals.Driver),
		slog.Int("agents", len(registry.Describe())),
	)
	ok = true
	return a, nil
}

// OpenApprovals 根据驱动打开授权存储。mysql 驱动会先执行数据库迁移。
func OpenApprovals(ctx context.Context, cfg config.ApprovalConfig, opts ...approval.Option) (*approval.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return approval.OpenFile(ctx, cfg.Path, opts...)
	case "mysql":
		db, err := OpenMySQL(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		journal, err := approval.NewMySQLJournal(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		store, err := approval.Open(ctx, journal, opts...)
		if err != nil {
			_ = journal.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的授权存储驱动: "+cfg.Driver)
	}
}

// OpenMySQL 建立连接池并应用内置迁移。
func OpenMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := mysql.Open(ctx, cfg.Options())
	if err != nil {
		return nil, err
	}
	if err := mysql.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (a *App) builtinRegistry(ctx context.Context) (*agent.Registry, error) {
	agents := a.Config.Agents
	deps := builtin.Deps{
		Radio:      builtin.NewRadio(true),
		Approver:   a.Approvals,
		Runner:     builtin.ExecRunner{},
		MusicDir:   agents.MusicDir,
		StreamBase: agents.StreamBaseURL,
		SearchBase: agents.SearchBaseURL,
	}
	if agents.DryRun {
		deps.Runner = builtin.DryRunner{}
	}
	if fields := strings.Fields(agents.PlayerCommand); len(fields) > 0 {
		deps.Player = builtin.CommandPlayer{Command: fields}
	}
	if strings.TrimSpace(agents.Ledger.RPCURL) != "" {
		client, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:   agents.Ledger.Name,
			RPCURL: agents.Ledger.RPCURL,
			Notes:  agents.Ledger.Notes,
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("连接 %s 节点失败", agents.Ledger.Name))
		}
		deps.LedgerChain = client
		a.closers = append(a.closers, func() error {
			client.Close()
			return nil
		})
	}
	return builtin.NewRegistry(deps), nil
}

// Close 按打开顺序的逆序释放资源。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = stdErrors.Join(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
