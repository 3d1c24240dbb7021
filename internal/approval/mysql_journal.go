package approval

import (
	"context"
	"database/sql"
	"time"

	xerrors "Jarvis-Orchestrator/internal/errors"
)

// MySQLJournal 将授权记录写入 approval_records 表，自增 seq 决定回放顺序。
type MySQLJournal struct {
	db *sql.DB
}

// NewMySQLJournal 基于已打开的连接创建日志。表结构由 storage/mysql 的迁移负责。
func NewMySQLJournal(db *sql.DB) (*MySQLJournal, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL 连接不能为空")
	}
	return &MySQLJournal{db: db}, nil
}

// Append 插入一条记录。
func (j *MySQLJournal) Append(ctx context.Context, rec Record) error {
	const stmt = `INSERT INTO approval_records (record_key, action, expiry, created_at) VALUES (?, ?, ?, ?)`

	var expiry sql.NullFloat64
	if rec.Expiry != nil {
		expiry = sql.NullFloat64{Float64: *rec.Expiry, Valid: true}
	}
	if _, err := j.db.ExecContext(ctx, stmt, rec.Key, rec.Action, expiry, time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入授权记录失败")
	}
	return nil
}

// Replay 按 seq 升序回放全部记录。
func (j *MySQLJournal) Replay(ctx context.Context, fn func(Record) error) error {
	const query = `SELECT record_key, action, expiry FROM approval_records ORDER BY seq ASC`

	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询授权记录失败")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec    Record
			expiry sql.NullFloat64
		)
		if err := rows.Scan(&rec.Key, &rec.Action, &expiry); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析授权记录失败")
		}
		if expiry.Valid {
			v := expiry.Float64
			rec.Expiry = &v
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历授权记录失败")
	}
	return nil
}

// Close 关闭底层连接。
func (j *MySQLJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

var _ Journal = (*MySQLJournal)(nil)
