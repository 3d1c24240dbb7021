package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"Jarvis-Orchestrator/internal/api"
	"Jarvis-Orchestrator/internal/app"
	"Jarvis-Orchestrator/internal/config"
	"Jarvis-Orchestrator/internal/dispatch"
	"Jarvis-Orchestrator/internal/observability/metrics"
	"Jarvis-Orchestrator/pkg/logger"
)

// main 是 Jarvis 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("jarvisd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	// .env 仅用于本地开发，缺失时忽略。
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("加载 .env 失败: %w", err)
	}

	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()
	lg := logger.Named("jarvisd")

	core, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			lg.Error("关闭编排组件失败", slog.Any("error", err))
		}
	}()

	store, err := openStore(ctx, cfg.Dispatch.Store)
	if err != nil {
		return err
	}
	queue, err := openQueue(ctx, cfg.Dispatch.Queue)
	if err != nil {
		_ = store.Close()
		return err
	}

	service := dispatch.NewService(store, queue)
	defer func() {
		if err := service.Close(); err != nil {
			lg.Error("关闭请求服务失败", slog.Any("error", err))
		}
	}()

	processor := dispatch.NewProcessor(core.Pipeline, store, queue,
		dispatch.WithWorkerCount(cfg.Dispatch.Workers),
		dispatch.WithProcessorLogger(logger.Named("dispatch")),
	)
	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("请求处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Metrics.Enabled && cfg.Metrics.Address != cfg.Server.Address {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, api.Deps{
		Dispatcher: service,
		Events:     core.Events,
		Approvals:  core.Approvals,
		Agents:     core.Registry,
	}, api.WithTimeouts(
		time.Duration(cfg.Server.ReadTimeoutSeconds)*time.Second,
		time.Duration(cfg.Server.WriteTimeoutSeconds)*time.Second,
	))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.DispatchStoreConfig) (dispatch.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return dispatch.NewMemoryStore(), nil
	case "mysql":
		db, err := app.OpenMySQL(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		store, err := dispatch.NewMySQLStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未知的请求存储驱动: %s", cfg.Driver)
	}
}

func openQueue(ctx context.Context, cfg config.QueueConfig) (dispatch.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return dispatch.NewMemoryQueue(cfg.Size), nil
	case "redis":
		return dispatch.NewRedisQueue(ctx, dispatch.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return dispatch.NewRabbitMQQueue(dispatch.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}
