package dispatch

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strconv"

	"Jarvis-Orchestrator/internal/confirm"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/execution"
	"Jarvis-Orchestrator/internal/handoff"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/observability/metrics"
	"Jarvis-Orchestrator/internal/pipeline"
	"Jarvis-Orchestrator/pkg/logger"
)

// Runner 定义了处理器所需的流水线能力。
type Runner interface {
	Handle(ctx context.Context, in intent.Intent, cond intent.Conditions, p confirm.Prompter) pipeline.Result
	Delegate(ctx context.Context, in intent.Intent) pipeline.Result
}

// Processor 负责从队列消费请求并交给流水线处理。
type Processor struct {
	runner      Runner
	store       Store
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(runner Runner, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		runner:      runner,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
		logger:      logger.Named("dispatch"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动请求处理循环，直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置请求消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Process)
}

// Process 领取并处理单个请求。失败的请求写入 failed 状态，不会重试。
func (p *Processor) Process(ctx context.Context, id string) error {
	if p.store == nil || p.runner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	req, err := p.store.Claim(ctx, id)
	if err != nil {
		if IsNotFound(err) || stdErrors.Is(err, ErrRequestCompleted) || stdErrors.Is(err, ErrRequestConflict) {
			p.logger.Debug("跳过请求", slog.String("request_id", id), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取请求失败", slog.Any("error", err), slog.String("request_id", id))
		return err
	}
	p.transition(req, StatusRunning, "")

	var res pipeline.Result
	if req.Mode == ModeDelegate {
		res = p.runner.Delegate(ctx, req.Intent)
	} else {
		res = p.runner.Handle(ctx, req.Intent, req.Conditions, answerPrompter(req.Confirmation))
	}

	completion := completionOf(res)
	if err := p.store.Complete(ctx, req.ID, completion); err != nil {
		p.logger.Error("回写请求结果失败", slog.Any("error", err), slog.String("request_id", req.ID))
		return err
	}
	p.transition(req, completion.Status, completion.Error)
	return nil
}

func (p *Processor) transition(req *Request, status Status, errMsg string) {
	metrics.ObserveDispatch(string(status))
	attrs := []any{
		slog.String("request_id", req.ID),
		slog.String("mode", string(req.Mode)),
		slog.String("intent", req.Intent.Name),
		slog.String("status", string(status)),
	}
	if errMsg != "" {
		attrs = append(attrs, slog.String("error", errMsg))
		logger.Audit().Warn("请求状态变更", attrs...)
		return
	}
	logger.Audit().Info("请求状态变更", attrs...)
}

// answerPrompter 将已记录的回答转换为确认流程的脚本化输入。
func answerPrompter(answer *ConfirmationAnswer) confirm.Prompter {
	if answer == nil {
		return nil
	}
	if !answer.Approve {
		return confirm.NewScriptedPrompter("n")
	}
	return confirm.NewScriptedPrompter("y", strconv.Itoa(answer.RememberHours))
}

func completionOf(res pipeline.Result) Completion {
	c := Completion{
		Reason:   res.Reason,
		Decision: res.Decision,
		Results:  res.Results,
		Outcome:  res.Outcome,
	}
	switch res.Status {
	case pipeline.StatusExecuted, pipeline.StatusConfirmed, pipeline.StatusDelegated:
		if res.Succeeded() {
			c.Status = StatusSucceeded
			return c
		}
		c.Status = StatusFailed
		c.Error = firstFailure(res.Results)
		c.ErrorCode = string(codeOfMessage(c.Error))
	case pipeline.StatusAwaitingConfirmation:
		c.Status = StatusAwaitingConfirmation
	case pipeline.StatusDenied:
		c.Status = StatusDenied
	case pipeline.StatusNoPlan:
		c.Status = StatusNoPlan
	default:
		c.Status = StatusFailed
		c.Error = res.Reason
		if c.Error == "" && res.Outcome != nil {
			c.Error = res.Outcome.Message
		}
		if c.Error == "" {
			c.Error = "pipeline_error"
		}
		c.ErrorCode = string(codeOfMessage(c.Error))
	}
	return c
}

func firstFailure(results []execution.TaskResult) string {
	for _, r := range results {
		if r.Success {
			continue
		}
		if r.Error != "" {
			return r.Error
		}
		return "task_failed"
	}
	return ""
}

func codeOfMessage(msg string) xerrors.Code {
	switch msg {
	case execution.ErrorPolicyDenied:
		return xerrors.CodePolicyDenied
	case handoff.MessageAgentNotFound:
		return xerrors.CodeAgentNotFound
	case confirm.ReasonInputFailed:
		return xerrors.CodeInputFailure
	case "":
		return xerrors.CodeUnknown
	default:
		return xerrors.CodeProviderFault
	}
}
