package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"Jarvis-Orchestrator/internal/agent"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/execution"
	"Jarvis-Orchestrator/internal/router"
)

const selectColumns = `SELECT id, mode, intent, conditions, status, decision, reason, results, outcome,
        confirmation, last_error, error_code, created_at, updated_at FROM intent_requests`

// MySQLStore 使用 MySQL 的 intent_requests 表记录请求状态。表结构由迁移脚本创建。
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore 基于已打开的连接创建存储。
func NewMySQLStore(db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL 连接不能为空")
	}
	return &MySQLStore{db: db, now: time.Now}, nil
}

// Create 插入新的请求记录。
func (s *MySQLStore) Create(ctx context.Context, req *Request) error {
	if req == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "request 不能为空")
	}
	if strings.TrimSpace(req.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "请求 ID 不能为空")
	}
	now := s.now().Unix()
	req.CreatedAt = now
	req.UpdatedAt = now

	intentJSON, err := json.Marshal(req.Intent)
	if err != nil {
		return xerrors.Wrap(CodeRequestValidation, err, "编码 intent 失败")
	}
	condJSON, err := json.Marshal(req.Conditions)
	if err != nil {
		return xerrors.Wrap(CodeRequestValidation, err, "编码 conditions 失败")
	}

	const stmt = `INSERT INTO intent_requests
        (id, mode, intent, conditions, status, reason, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, '', '', '', ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		req.ID,
		string(req.Mode),
		string(intentJSON),
		string(condJSON),
		string(req.Status),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrRequestConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入请求失败")
	}
	return nil
}

// Get 查询指定请求。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	req, err := scanRequest(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询请求失败")
	}
	return req, nil
}

// Claim 将请求标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Request, error) {
	const stmt = `UPDATE intent_requests SET status = ?, last_error = '', error_code = '', updated_at = ?
        WHERE id = ? AND (status = ? OR (status = ? AND confirmation IS NOT NULL))`
	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusRunning),
		s.now().Unix(),
		id,
		string(StatusPending),
		string(StatusAwaitingConfirmation),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新请求状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if req.Status.Terminal() {
			return req, ErrRequestCompleted
		}
		return req, ErrRequestConflict
	}
	return req, nil
}

// Complete 写回一次处理的结果。
func (s *MySQLStore) Complete(ctx context.Context, id string, c Completion) error {
	decision, err := marshalNullable(c.Decision)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码 decision 失败")
	}
	results, err := marshalNullable(c.Results)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码 results 失败")
	}
	outcome, err := marshalNullable(c.Outcome)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码 outcome 失败")
	}

	const stmt = `UPDATE intent_requests SET status = ?, reason = ?, decision = COALESCE(?, decision), results = ?,
        outcome = COALESCE(?, outcome), last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt,
		string(c.Status),
		c.Reason,
		decision,
		results,
		outcome,
		c.Error,
		c.ErrorCode,
		s.now().Unix(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写回请求结果失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// AttachConfirmation 记录调用方对待确认请求的回答。
func (s *MySQLStore) AttachConfirmation(ctx context.Context, id string, answer ConfirmationAnswer) (*Request, error) {
	payload, err := json.Marshal(answer)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码 confirmation 失败")
	}
	const stmt = `UPDATE intent_requests SET confirmation = ?, updated_at = ?
        WHERE id = ? AND status = ? AND confirmation IS NULL`
	res, err := s.db.ExecContext(ctx, stmt,
		string(payload),
		s.now().Unix(),
		id,
		string(StatusAwaitingConfirmation),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "记录确认失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if req.Status.Terminal() {
			return req, ErrRequestCompleted
		}
		return req, ErrRequestConflict
	}
	return req, nil
}

// List 返回符合过滤条件的请求。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Request, error) {
	opts.applyDefaults()

	query := selectColumns
	clause, args := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	if opts.Order == SortByUpdatedAsc {
		query += " ORDER BY updated_at ASC, created_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, created_at DESC, id DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询请求列表失败")
	}
	defer rows.Close()

	requests := make([]*Request, 0, opts.Limit)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析请求记录失败")
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历请求失败")
	}
	return requests, nil
}

// Stats 在数据库端聚合各状态的请求数量。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (RequestStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS running,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS awaiting,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS succeeded,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS denied,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS no_plan,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM intent_requests`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{
		string(StatusPending), string(StatusRunning), string(StatusAwaitingConfirmation),
		string(StatusSucceeded), string(StatusDenied), string(StatusNoPlan), string(StatusFailed),
	}
	args = append(args, filterArgs...)

	var stats RequestStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.AwaitingConfirmation,
		&stats.Succeeded,
		&stats.Denied,
		&stats.NoPlan,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	)
	if err != nil {
		return RequestStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询请求统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		req                                              Request
		mode, status                                     string
		intentJSON, condJSON                             string
		decision, results, outcome, confirmation, reason sql.NullString
		lastError, errorCode                             sql.NullString
	)
	if err := row.Scan(
		&req.ID,
		&mode,
		&intentJSON,
		&condJSON,
		&status,
		&decision,
		&reason,
		&results,
		&outcome,
		&confirmation,
		&lastError,
		&errorCode,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.Mode = Mode(mode)
	req.Status = Status(status)
	req.Reason = reason.String
	req.Error = lastError.String
	req.ErrorCode = errorCode.String

	if err := json.Unmarshal([]byte(intentJSON), &req.Intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	if err := json.Unmarshal([]byte(condJSON), &req.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	if err := unmarshalNullable(decision, func() any { req.Decision = &router.Decision{}; return req.Decision }); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	if err := unmarshalNullable(results, func() any { return &req.Results }); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if err := unmarshalNullable(outcome, func() any { req.Outcome = &agent.Outcome{}; return req.Outcome }); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	if err := unmarshalNullable(confirmation, func() any { req.Confirmation = &ConfirmationAnswer{}; return req.Confirmation }); err != nil {
		return nil, fmt.Errorf("decode confirmation: %w", err)
	}
	return &req, nil
}

func marshalNullable[T any](value T) (sql.NullString, error) {
	switch v := any(value).(type) {
	case *router.Decision:
		if v == nil {
			return sql.NullString{}, nil
		}
	case *agent.Outcome:
		if v == nil {
			return sql.NullString{}, nil
		}
	case []execution.TaskResult:
		if len(v) == 0 {
			return sql.NullString{}, nil
		}
	}
	bytes, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalNullable(raw sql.NullString, target func() any) error {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), target())
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, len(opts.Statuses)+1)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for _, status := range opts.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.Mode != "" {
		conditions = append(conditions, "mode = ?")
		args = append(args, string(opts.Mode))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
