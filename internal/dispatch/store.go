package dispatch

import "context"

// Store 抽象了请求状态的持久化。
type Store interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	// Claim 将可处理的请求置为 running：pending 请求，或已附带回答的待确认请求。
	Claim(ctx context.Context, id string) (*Request, error)
	Complete(ctx context.Context, id string, c Completion) error
	AttachConfirmation(ctx context.Context, id string, answer ConfirmationAnswer) (*Request, error)
	List(ctx context.Context, opts ListOptions) ([]*Request, error)
	// Stats 统计符合过滤条件的请求，忽略分页参数。
	Stats(ctx context.Context, opts ListOptions) (RequestStats, error)
	Close() error
}
