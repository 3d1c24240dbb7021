package approval

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/observability/metrics"
	"Jarvis-Orchestrator/pkg/logger"
)

// FileJournal 以 JSONL 文件保存授权记录。
type FileJournal struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
	syncFn func(*os.File) error
}

// NewFileJournal 创建文件日志，目录不存在时自动创建。
func NewFileJournal(path string) (*FileJournal, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "approvals path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建授权目录失败")
	}
	return &FileJournal{
		path:   path,
		logger: logger.Named("approval"),
		syncFn: (*os.File).Sync,
	}, nil
}

// Path 返回文件路径。
func (j *FileJournal) Path() string {
	return j.path
}

// Append 追加一条记录并 fsync。fsync 失败只记录日志与指标，记录已写入时不返回错误。
func (j *FileJournal) Append(_ context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeValidationFault, err, "编码授权记录失败")
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开授权日志失败")
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入授权日志失败")
	}
	if err := j.syncFn(f); err != nil {
		metrics.ObserveApprovalSyncFailure()
		j.logger.Warn("授权日志 fsync 失败", slog.String("path", j.path), slog.Any("error", err))
	}
	return f.Close()
}

// Replay 按文件顺序回放记录，无法解析的行会被跳过。
func (j *FileJournal) Replay(_ context.Context, fn func(Record) error) error {
	f, err := os.Open(j.path)
	if err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开授权日志失败")
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var rec Record
			if err := json.Unmarshal(trimmed, &rec); err == nil {
				if err := fn(rec); err != nil {
					return err
				}
			}
		}
		if readErr != nil {
			if stdErrors.Is(readErr, io.EOF) {
				return nil
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, readErr, "读取授权日志失败")
		}
	}
}

// Close 对文件日志无需操作。
func (j *FileJournal) Close() error {
	return nil
}

var _ Journal = (*FileJournal)(nil)
