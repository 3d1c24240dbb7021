package dispatch

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"Jarvis-Orchestrator/internal/approval"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/pkg/logger"
)

// Submission 是提交到异步流水线的意图。
type Submission struct {
	ID         string            `json:"id,omitempty"`
	Mode       Mode              `json:"mode,omitempty"`
	Intent     intent.Intent     `json:"intent"`
	Conditions intent.Conditions `json:"conditions"`
}

// Service 负责请求的创建、查询与确认。
type Service struct {
	store    Store
	producer Producer
}

// NewService 构造请求服务。
func NewService(store Store, producer Producer) *Service {
	return &Service{store: store, producer: producer}
}

// Submit 创建一个新的请求并推送到队列。携带已存在 ID 的提交直接返回已有记录。
func (s *Service) Submit(ctx context.Context, sub Submission) (*Request, error) {
	mode, err := validateSubmission(sub)
	if err != nil {
		return nil, err
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "请求服务未初始化")
	}

	id := strings.TrimSpace(sub.ID)
	if id != "" {
		existing, err := s.store.Get(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	} else {
		id = uuid.NewString()
	}

	req := &Request{
		ID:         id,
		Mode:       mode,
		Intent:     sub.Intent,
		Conditions: sub.Conditions,
		Status:     StatusPending,
	}
	req.Intent.Entities = intent.CloneArgs(sub.Intent.Entities)
	if err := s.store.Create(ctx, req); err != nil {
		if stdErrors.Is(err, ErrRequestConflict) {
			if existing, getErr := s.store.Get(ctx, id); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, id); err != nil {
		logger.L().Error("请求入队失败", slog.Any("error", err), slog.String("request_id", id))
		wrapped := xerrors.Wrap(CodeRequestPublish, err, "发布请求到队列失败")
		_ = s.store.Complete(ctx, id, Completion{
			Status:    StatusFailed,
			Error:     xerrors.MessageOf(wrapped),
			ErrorCode: string(CodeRequestPublish),
		})
		return nil, wrapped
	}
	logger.Audit().Info("请求入队成功",
		slog.String("request_id", id),
		slog.String("mode", string(mode)),
		slog.String("intent", req.Intent.Name),
	)
	return req, nil
}

// Get 返回指定请求的状态。
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "请求存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的请求列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Request, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "请求存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回请求状态统计，分页参数不生效。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (RequestStats, error) {
	if s.store == nil {
		return RequestStats{}, xerrors.New(xerrors.CodeInitializationFailure, "请求存储未初始化")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Confirm 记录待确认请求的回答并重新入队。
func (s *Service) Confirm(ctx context.Context, id string, approve bool, rememberHours int) (*Request, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "请求服务未初始化")
	}
	if rememberHours < 0 || int64(rememberHours) > approval.MaxHours {
		return nil, xerrors.New(CodeRequestValidation, fmt.Sprintf("remember_hours 必须在 [0, %d] 之间", approval.MaxHours))
	}
	req, err := s.store.AttachConfirmation(ctx, id, ConfirmationAnswer{Approve: approve, RememberHours: rememberHours})
	if err != nil {
		return req, err
	}
	if err := s.producer.Publish(ctx, id); err != nil {
		return nil, xerrors.Wrap(CodeRequestPublish, err, "重新发布请求失败")
	}
	logger.Audit().Info("请求确认已记录",
		slog.String("request_id", id),
		slog.Bool("approve", approve),
		slog.Int("remember_hours", rememberHours),
	)
	return req, nil
}

// Close 释放资源。
func (s *Service) Close() error {
	var err error
	if s.store != nil {
		err = s.store.Close()
	}
	if s.producer != nil {
		err = stdErrors.Join(err, s.producer.Close())
	}
	return err
}

// WaitUntilSettled 轮询请求直到进入终态或等待确认。
func (s *Service) WaitUntilSettled(ctx context.Context, id string, interval time.Duration) (*Request, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		req, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if req.Status.Terminal() || (req.Status == StatusAwaitingConfirmation && req.Confirmation == nil) {
			return req, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func validateSubmission(sub Submission) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(sub.Mode))))
	switch mode {
	case "", ModePlan:
		if strings.TrimSpace(sub.Intent.Name) == "" {
			return "", xerrors.New(CodeRequestValidation, "intent 不能为空")
		}
		return ModePlan, nil
	case ModeDelegate:
		if strings.TrimSpace(sub.Intent.Name) == "" && strings.TrimSpace(sub.Intent.Agent) == "" {
			return "", xerrors.New(CodeRequestValidation, "委派请求需要 intent 或 agent")
		}
		return ModeDelegate, nil
	default:
		return "", xerrors.New(CodeRequestValidation, "未知的请求模式: "+string(sub.Mode))
	}
}
