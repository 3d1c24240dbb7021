package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"Jarvis-Orchestrator/internal/agent"
	"Jarvis-Orchestrator/internal/approval"
	"Jarvis-Orchestrator/internal/dispatch"
	"Jarvis-Orchestrator/internal/eventlog"
	"Jarvis-Orchestrator/internal/observability/metrics"
	"Jarvis-Orchestrator/pkg/logger"
)

const (
	apiPrefix    = "/api/v1"
	defaultTail  = 20
	maxTail      = 1000
	maxBodyBytes = 1 << 20
)

// Dispatcher 是 API 所需的异步请求服务能力。
type Dispatcher interface {
	Submit(ctx context.Context, sub dispatch.Submission) (*dispatch.Request, error)
	Get(ctx context.Context, id string) (*dispatch.Request, error)
	List(ctx context.Context, opts ...dispatch.ListOption) ([]*dispatch.Request, error)
	Confirm(ctx context.Context, id string, approve bool, rememberHours int) (*dispatch.Request, error)
	Stats(ctx context.Context, opts ...dispatch.ListOption) (dispatch.RequestStats, error)
}

// EventSource 提供事件日志的尾部读取。
type EventSource interface {
	Tail(n int) ([]eventlog.Envelope, error)
}

// Approvals 是 API 所需的授权管理能力。
type Approvals interface {
	Grant(ctx context.Context, agent, action string, ttl time.Duration) (time.Time, error)
	Revoke(ctx context.Context, agent, action string) error
	ActiveSorted() []approval.ActiveGrant
}

// AgentDirectory 列出已注册的提供方。
type AgentDirectory interface {
	Describe() []agent.Descriptor
}

// Deps 汇总 API 依赖的组件。未提供的组件对应接口返回 503。
type Deps struct {
	Dispatcher Dispatcher
	Events     EventSource
	Approvals  Approvals
	Agents     AgentDirectory
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr         string
	deps         Deps
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithTimeouts 设置读写超时。
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Deps, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		deps:         deps,
		readTimeout:  15 * time.Second,
		writeTimeout: 30 * time.Second,
		logger:       logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.observe)

	// 路由直接注册在根路由上，方法不匹配时由 mux 返回 405。
	r.HandleFunc(apiPrefix+"/intents", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/intents", s.handleList).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/intents/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/intents/{id}", s.handleDetail).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/intents/{id}/confirm", s.handleConfirm).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/approvals", s.handleListApprovals).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/approvals", s.handleGrant).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/approvals/{agent}/{action}", s.handleRevoke).Methods(http.MethodDelete)
	r.HandleFunc(apiPrefix+"/agents", s.handleAgents).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API 服务启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeUnavailable(w, "dispatcher")
		return
	}
	var sub dispatch.Submission
	if !decodeBody(w, r, &sub) {
		return
	}
	created, err := s.deps.Dispatcher.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeUnavailable(w, "dispatcher")
		return
	}
	query := r.URL.Query()
	var opts []dispatch.ListOption
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts = append(opts, dispatch.WithLimit(limit))
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeMessage(w, http.StatusBadRequest, "invalid offset")
			return
		}
		opts = append(opts, dispatch.WithOffset(offset))
	}
	filters, msg := parseFilters(query)
	if msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}
	opts = append(opts, filters...)
	if strings.EqualFold(query.Get("order"), "asc") {
		opts = append(opts, dispatch.WithSortOrder(dispatch.SortByUpdatedAsc))
	}

	list, err := s.deps.Dispatcher.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeUnavailable(w, "dispatcher")
		return
	}
	filters, msg := parseFilters(r.URL.Query())
	if msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}
	stats, err := s.deps.Dispatcher.Stats(r.Context(), filters...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// parseFilters 解析 status 与 mode 查询参数，非法时返回错误信息。
func parseFilters(query url.Values) ([]dispatch.ListOption, string) {
	var opts []dispatch.ListOption
	if raw := query.Get("status"); raw != "" {
		var statuses []dispatch.Status
		for _, part := range strings.Split(raw, ",") {
			status := dispatch.Status(strings.TrimSpace(part))
			if !dispatch.IsValidStatus(status) {
				return nil, "invalid status: " + string(status)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, dispatch.WithStatuses(statuses...))
	}
	if raw := query.Get("mode"); raw != "" {
		opts = append(opts, dispatch.WithMode(dispatch.Mode(raw)))
	}
	return opts, ""
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeUnavailable(w, "dispatcher")
		return
	}
	req, err := s.deps.Dispatcher.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type confirmRequest struct {
	Approve       bool `json:"approve"`
	RememberHours int  `json:"remember_hours"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeUnavailable(w, "dispatcher")
		return
	}
	var body confirmRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := s.deps.Dispatcher.Confirm(r.Context(), mux.Vars(r)["id"], body.Approve, body.RememberHours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeUnavailable(w, "event log")
		return
	}
	n := defaultTail
	if raw := r.URL.Query().Get("tail"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeMessage(w, http.StatusBadRequest, "invalid tail")
			return
		}
		n = parsed
	}
	if n > maxTail {
		n = maxTail
	}
	events, err := s.deps.Events.Tail(n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleListApprovals(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Approvals == nil {
		writeUnavailable(w, "approvals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": s.deps.Approvals.ActiveSorted()})
}

type grantRequest struct {
	Agent  string  `json:"agent"`
	Action string  `json:"action"`
	Hours  float64 `json:"hours"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	if s.deps.Approvals == nil {
		writeUnavailable(w, "approvals")
		return
	}
	var body grantRequest
	if !decodeBody(w, r, &body) {
		return
	}
	ttl, err := approval.HoursTTL(body.Hours)
	if err != nil {
		writeError(w, err)
		return
	}
	expiry, err := s.deps.Approvals.Grant(r.Context(), body.Agent, body.Action, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, approval.ActiveGrant{Key: approval.Key(body.Agent, body.Action), Expiry: expiry})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if s.deps.Approvals == nil {
		writeUnavailable(w, "approvals")
		return
	}
	vars := mux.Vars(r)
	if err := s.deps.Approvals.Revoke(r.Context(), vars["agent"], vars["action"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Agents == nil {
		writeUnavailable(w, "registry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.deps.Agents.Describe()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// observe 记录每个请求的路由模板、状态码与耗时。
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.ObserveHTTPRequest(route, r.Method, rec.status, time.Since(start))
		if rec.status >= http.StatusInternalServerError {
			s.logger.Error("请求处理失败",
				slog.String("route", route),
				slog.String("method", r.Method),
				slog.Int("status", rec.status))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeMessage(w, http.StatusServiceUnavailable, "server shutting down")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
