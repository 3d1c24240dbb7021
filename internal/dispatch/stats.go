package dispatch

// RequestStats 聚合请求状态分布，供仪表盘与健康检查使用。
type RequestStats struct {
	Total                int   `json:"total"`
	Pending              int   `json:"pending"`
	Running              int   `json:"running"`
	AwaitingConfirmation int   `json:"awaiting_confirmation"`
	Succeeded            int   `json:"succeeded"`
	Denied               int   `json:"denied"`
	NoPlan               int   `json:"no_plan"`
	Failed               int   `json:"failed"`
	OldestUpdatedAt      int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt      int64 `json:"newest_updated_at,omitempty"`
}

func (s *RequestStats) add(req *Request) {
	s.Total++
	switch req.Status {
	case StatusPending:
		s.Pending++
	case StatusRunning:
		s.Running++
	case StatusAwaitingConfirmation:
		s.AwaitingConfirmation++
	case StatusSucceeded:
		s.Succeeded++
	case StatusDenied:
		s.Denied++
	case StatusNoPlan:
		s.NoPlan++
	case StatusFailed:
		s.Failed++
	}
	if s.OldestUpdatedAt == 0 || req.UpdatedAt < s.OldestUpdatedAt {
		s.OldestUpdatedAt = req.UpdatedAt
	}
	if req.UpdatedAt > s.NewestUpdatedAt {
		s.NewestUpdatedAt = req.UpdatedAt
	}
}
