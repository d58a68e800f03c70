// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// ログインから SESSION_MAX_AGE を過ぎたセッションと、
// 保持期間（デフォルト90日）を超過した完了・失敗済みの登録試行を削除する。
// 要確認（needs_reconciliation）の登録試行は管理者が対応するまで残す。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	deleteSessionsQuery = `DELETE FROM sessions WHERE created_at < now() - $1::interval`

	deleteAttemptsQuery = `DELETE FROM registration_attempts
		WHERE status IN ('completed', 'failed') AND updated_at < now() - $1::interval`
)

// Result は1回の実行で削除した件数。
type Result struct {
	Sessions int64
	Attempts int64
}

// CleanupJob は期限切れセッションと古い登録試行の削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	SessionMaxAge time.Duration // セッションの最大有効期間（デフォルト: 7日）
	RetentionDays int           // 登録試行の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		SessionMaxAge: 7 * 24 * time.Hour,
		RetentionDays: 90,
	}
}

// Run は期限切れセッションを削除したあと、保持期間を超過した登録試行を削除する。
func (j *CleanupJob) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	sessions, err := j.exec(ctx, deleteSessionsQuery, fmt.Sprintf("%d seconds", int64(j.SessionMaxAge.Seconds())))
	if err != nil {
		j.logger.Error("session cleanup failed",
			slog.String("error", err.Error()),
			slog.Duration("session_max_age", j.SessionMaxAge),
		)
		return nil, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	attempts, err := j.exec(ctx, deleteAttemptsQuery, fmt.Sprintf("%d days", j.RetentionDays))
	if err != nil {
		j.logger.Error("registration attempt cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return nil, fmt.Errorf("failed to delete old registration attempts: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("cleanup job completed",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_attempts", attempts),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return &Result{Sessions: sessions, Attempts: attempts}, nil
}

func (j *CleanupJob) exec(ctx context.Context, query string, interval string) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		return 0, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return count, nil
}

// Start は指定間隔でRunを繰り返す。起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
// 実行に失敗しても次の周期で再試行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("cleanup scheduler started",
		slog.Duration("interval", interval),
	)

	j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
