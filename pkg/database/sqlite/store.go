// Package sqlite 是目录库的 SQLite 实现，适合单机运行。
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/database"
)

//go:embed schema.sql
var schemaSQL string

// 表结构变化时递增。
const schemaVersion = 1

// ErrSchemaMismatch 表示已有数据库的表结构版本与程序不一致。
var ErrSchemaMismatch = errors.New("数据库结构版本不一致")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

type Store struct {
	db      *sql.DB
	path    string
	reports *reportStore
	frames  *frameStore
}

var _ database.Store = (*Store)(nil)

type reportStore struct{ s *Store }

type frameStore struct{ s *Store }

// NewStore 打开（必要时创建）path 处的数据库文件。
func NewStore(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("无法创建数据库目录: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 数据库失败: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("执行 %q 失败: %w", pragma, err)
		}
	}
	s := &Store{db: db, path: path}
	s.reports = &reportStore{s: s}
	s.frames = &frameStore{s: s}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("SQLite 目录库已就绪", "path", path)
	return s, nil
}

func (s *Store) Reports() database.ReportStore { return s.reports }

func (s *Store) Frames() database.FrameStore { return s.frames }

// EnsureIndexes 的索引已包含在建表语句中。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	return s.initSchema(ctx)
}

func (s *Store) DropAllCollections(ctx context.Context) error {
	slog.Warn("正在清空目录库...", "path", s.path)
	for _, table := range []string{"frames", "reports"} {
		if err := s.exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("清空 %s 失败: %w", table, err)
		}
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("检查 schema_version 失败: %w", err)
	}
	if exists == 0 {
		return s.createSchema(ctx)
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("读取结构版本失败: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: 数据库为 %d，程序需要 %d（请删除 %s 后重试）", ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始建表事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("建表失败: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("写入结构版本失败: %w", err)
	}
	return tx.Commit()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

const (
	timeLayout = time.RFC3339Nano

	// 定宽格式，保证按字符串排序与按时间排序一致。
	sortableLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// --- reportStore ---

func (r *reportStore) Save(ctx context.Context, report *models.YearReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}
	return r.s.exec(ctx,
		`INSERT INTO reports (run_id, sensor, product, year, state, finished_at, report_json)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(run_id) DO UPDATE SET
            state = excluded.state,
            finished_at = excluded.finished_at,
            report_json = excluded.report_json`,
		report.RunID,
		report.Sensor,
		report.Product,
		report.Year,
		string(report.State),
		report.FinishedAt.UTC().Format(sortableLayout),
		string(payload),
	)
}

func scanReport(row interface{ Scan(...any) error }) (*models.YearReport, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		return nil, err
	}
	var report models.YearReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("解析报告失败: %w", err)
	}
	return &report, nil
}

func (r *reportStore) Get(ctx context.Context, product, year string) (*models.YearReport, error) {
	row := r.s.db.QueryRowContext(ctx,
		`SELECT report_json FROM reports WHERE product = ? AND year = ?
         ORDER BY finished_at DESC LIMIT 1`, product, year)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return report, err
}

func (r *reportStore) GetByRunID(ctx context.Context, runID string) (*models.YearReport, error) {
	row := r.s.db.QueryRowContext(ctx, `SELECT report_json FROM reports WHERE run_id = ?`, runID)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return report, err
}

func (r *reportStore) List(ctx context.Context, page, limit int) ([]models.YearReport, int64, error) {
	page, limit = database.NormalizePage(page, limit)
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT report_json FROM reports ORDER BY finished_at DESC LIMIT ? OFFSET ?`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.YearReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM reports`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// --- frameStore ---

func (f *frameStore) ReplaceForRun(ctx context.Context, runID string, frames []models.FrameRecord) error {
	return retryOnBusy(ctx, func() error {
		tx, err := f.s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE run_id = ?`, runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO frames (run_id, product, year, frame_index, sequence_name, source_name, acquired_at, perceptual_hash)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, fr := range frames {
			if _, err := stmt.ExecContext(ctx,
				runID, fr.Product, fr.Year, fr.Index, fr.SequenceName, fr.SourceName,
				fr.AcquiredAt.Format(timeLayout), fr.PerceptualHash,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (f *frameStore) ListByRun(ctx context.Context, runID string) ([]models.FrameRecord, error) {
	rows, err := f.s.db.QueryContext(ctx,
		`SELECT run_id, product, year, frame_index, sequence_name, source_name, acquired_at, COALESCE(perceptual_hash, '')
         FROM frames WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FrameRecord
	for rows.Next() {
		var (
			fr       models.FrameRecord
			acquired string
		)
		if err := rows.Scan(&fr.RunID, &fr.Product, &fr.Year, &fr.Index, &fr.SequenceName, &fr.SourceName, &acquired, &fr.PerceptualHash); err != nil {
			return nil, err
		}
		if fr.AcquiredAt, err = time.Parse(timeLayout, acquired); err != nil {
			return nil, fmt.Errorf("解析采集时间 %q 失败: %w", acquired, err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

// Backup 用 VACUUM INTO 导出一份一致的数据库快照。
func (s *Store) Backup(ctx context.Context, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return s.exec(ctx, "VACUUM INTO ?", dest)
}
