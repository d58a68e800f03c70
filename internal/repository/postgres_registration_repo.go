package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pawrest/pawrest/internal/model"
)

// PostgresRegistrationRepo はPostgreSQLを使用した登録処理ジャーナルのリポジトリ。
type PostgresRegistrationRepo struct {
	db *sql.DB
}

// NewPostgresRegistrationRepo はPostgresRegistrationRepoを生成する。
func NewPostgresRegistrationRepo(db *sql.DB) *PostgresRegistrationRepo {
	return &PostgresRegistrationRepo{db: db}
}

// Create は登録試行を作成する。
func (r *PostgresRegistrationRepo) Create(ctx context.Context, a *model.RegistrationAttempt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO registration_attempts
		   (id, email, role, account_id, status, failed_step, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Email, string(a.Role), a.AccountID, string(a.Status), a.FailedStep, a.ErrorMessage, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create registration attempt: %w", err)
	}
	return nil
}

// UpdateStatus は登録試行の状態、アカウントID、失敗情報を更新する。
func (r *PostgresRegistrationRepo) UpdateStatus(ctx context.Context, a *model.RegistrationAttempt) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE registration_attempts
		 SET status = $2, account_id = $3, failed_step = $4, error_message = $5, updated_at = $6
		 WHERE id = $1`,
		a.ID, string(a.Status), a.AccountID, a.FailedStep, a.ErrorMessage, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update registration attempt: %w", err)
	}
	return nil
}

// ListByStatus は指定状態の登録試行を新しい順に最大limit件返す。
func (r *PostgresRegistrationRepo) ListByStatus(ctx context.Context, status model.RegistrationStatus, limit int) ([]*model.RegistrationAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, role, account_id, status, failed_step, error_message, created_at, updated_at
		 FROM registration_attempts
		 WHERE status = $1
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list registration attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.RegistrationAttempt
	for rows.Next() {
		a := &model.RegistrationAttempt{}
		var role, st string
		if err := rows.Scan(&a.ID, &a.Email, &role, &a.AccountID, &st, &a.FailedStep, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan registration attempt: %w", err)
		}
		a.Role = model.Role(role)
		a.Status = model.RegistrationStatus(st)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registration attempts: %w", err)
	}
	return attempts, nil
}

// CountByStatus は指定状態の登録試行の件数を返す。
func (r *PostgresRegistrationRepo) CountByStatus(ctx context.Context, status model.RegistrationStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM registration_attempts WHERE status = $1`,
		string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registration attempts: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ RegistrationRepository = (*PostgresRegistrationRepo)(nil)
