// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/pawrest/pawrest/internal/model"
)

// SessionRepository はブラウザセッションの永続化インターフェース。
// セッションの実体はプロバイダー側にあり、ここではCookieとトークンの対応のみを保持する。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// アクセストークンの期限切れは判定しない（リフレッシュのため）。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateTokens はリフレッシュ後のトークンと有効期限を保存する。
	UpdateTokens(ctx context.Context, session *model.Session) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// RegistrationRepository は登録処理ジャーナルの永続化インターフェース。
type RegistrationRepository interface {
	// Create は登録試行を作成する。
	Create(ctx context.Context, attempt *model.RegistrationAttempt) error
	// UpdateStatus は登録試行の状態、アカウントID、失敗情報を更新する。
	UpdateStatus(ctx context.Context, attempt *model.RegistrationAttempt) error
	// ListByStatus は指定状態の登録試行を新しい順に最大limit件返す。
	ListByStatus(ctx context.Context, status model.RegistrationStatus, limit int) ([]*model.RegistrationAttempt, error)
	// CountByStatus は指定状態の登録試行の件数を返す。
	CountByStatus(ctx context.Context, status model.RegistrationStatus) (int, error)
}
