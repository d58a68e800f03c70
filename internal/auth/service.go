// Package auth は外部認証プロバイダーをラップし、サインアップ・ログイン・セッション管理を提供する。
// プロバイダー固有の呼び出しはこのパッケージに閉じ込め、画面側はここだけを使う。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/repository"
	"github.com/pawrest/pawrest/internal/supabase"
)

// defaultTokenLifetime はトークンから有効期限を読めない場合に使う値。
const defaultTokenLifetime = time.Hour

// businessesTable は事業者プロフィールのテーブル名。
const businessesTable = "businesses"

// Provider は外部認証プロバイダーのREST操作。supabase.Clientが実装する。
type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata model.AccountMetadata, redirectTo string) (*supabase.SignUpResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.TokenResponse, error)
	RefreshSession(ctx context.Context, refreshToken string) (*supabase.TokenResponse, error)
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
	Recover(ctx context.Context, email, redirectTo string) error
	Logout(ctx context.Context, accessToken string) error
	UploadObject(ctx context.Context, bucket, objectPath string, upload *model.Upload, accessToken string) error
	Insert(ctx context.Context, table string, row interface{}, accessToken string) error
	Select(ctx context.Context, table string, query url.Values, accessToken string, out interface{}) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  int    // ブラウザセッションの最大有効期間（秒）
	BaseURL        string // メール内リンクの戻り先
	DocumentBucket string // 事業者書類の保存先バケット
}

// SignUpResult はサインアップの結果。
// AccessTokenはメール確認が不要な設定の場合のみ設定される。
type SignUpResult struct {
	Account     *model.Account
	AccessToken string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider    Provider
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(provider Provider, sessionRepo repository.SessionRepository, config ServiceConfig) *Service {
	return &Service{
		provider:    provider,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// SignUp はアカウントを作成する。metadataはプロバイダーのuser_metadataに保存される。
// 確認メールのリンクは {BaseURL}/auth/callback に戻る。
func (s *Service) SignUp(ctx context.Context, email, password string, metadata model.AccountMetadata) (*SignUpResult, error) {
	resp, err := s.provider.SignUp(ctx, email, password, metadata, s.config.BaseURL+"/auth/callback")
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	result := &SignUpResult{Account: resp.User.Account()}
	if resp.Session != nil {
		result.AccessToken = resp.Session.AccessToken
	}

	slog.Info("account created",
		slog.String("account_id", result.Account.ID),
		slog.String("role", metadata.Role),
	)
	return result, nil
}

// SignIn はメールアドレスとパスワードで認証し、ローカルセッションを発行する。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, *model.Account, error) {
	tok, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign in: %w", err)
	}

	account := tok.User.Account()
	if account == nil {
		user, err := s.provider.GetUser(ctx, tok.AccessToken)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch signed-in user: %w", err)
		}
		account = user.Account()
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:           sessionID,
		AccountID:    account.ID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tokenExpiry(tok, now),
		CreatedAt:    now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("account signed in", slog.String("account_id", account.ID))
	return session, account, nil
}

// GetSession はセッションIDに対応する有効なセッションを返す。
// 存在しない、またはブラウザセッションの最大期間を過ぎた場合はnilを返す。
// アクセストークンが期限切れでリフレッシュトークンがあれば、更新して返す。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	now := s.now()
	if s.config.SessionMaxAge > 0 && !now.Before(session.CreatedAt.Add(time.Duration(s.config.SessionMaxAge)*time.Second)) {
		s.discard(ctx, session.ID)
		return nil, nil
	}
	if !session.Expired(now) {
		return session, nil
	}
	if session.RefreshToken == "" {
		s.discard(ctx, session.ID)
		return nil, nil
	}

	tok, err := s.provider.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		var perr *supabase.Error
		if errors.As(err, &perr) {
			// リフレッシュトークンが拒否された場合はログアウト扱い
			slog.Info("session refresh rejected",
				slog.String("account_id", session.AccountID),
				slog.Int("http_status", perr.Status),
			)
			s.discard(ctx, session.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	session.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		session.RefreshToken = tok.RefreshToken
	}
	session.ExpiresAt = tokenExpiry(tok, now)
	if err := s.sessionRepo.UpdateTokens(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store refreshed session: %w", err)
	}
	return session, nil
}

// GetUser はセッションのアカウントを返す。セッションがない、またはトークンが拒否された場合はnilを返す。
func (s *Service) GetUser(ctx context.Context, sessionID string) (*model.Account, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return s.UserForSession(ctx, session)
}

// UserForSession は取得済みセッションのアカウントを返す。トークンが拒否された場合はnilを返す。
func (s *Service) UserForSession(ctx context.Context, session *model.Session) (*model.Account, error) {
	user, err := s.provider.GetUser(ctx, session.AccessToken)
	if err != nil {
		if supabase.IsUnauthorized(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user.Account(), nil
}

// ResetPassword はパスワード再設定メールを送信する。
// メールアドレスが空の場合はネットワーク呼び出しをせずに検証エラーを返す。
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	if email == "" {
		return model.NewEmailRequiredError()
	}
	if err := s.provider.Recover(ctx, email, s.config.BaseURL+"/"); err != nil {
		return fmt.Errorf("failed to request password reset: %w", err)
	}
	return nil
}

// UploadDocument は事業者書類を {accountId}/{documentKind} に保存する。
// サイズと形式の検証は呼び出し元の責務。
func (s *Service) UploadDocument(ctx context.Context, accountID string, kind model.DocumentKind, upload *model.Upload, accessToken string) error {
	if err := s.provider.UploadObject(ctx, s.config.DocumentBucket, kind.StoragePath(accountID), upload, accessToken); err != nil {
		return fmt.Errorf("failed to upload %s: %w", kind, err)
	}
	return nil
}

// InsertBusinessProfile はbusinessesテーブルに事業者プロフィールを追加する。
func (s *Service) InsertBusinessProfile(ctx context.Context, profile *model.BusinessProfile, accessToken string) error {
	if err := s.provider.Insert(ctx, businessesTable, profile, accessToken); err != nil {
		return fmt.Errorf("failed to insert business profile: %w", err)
	}
	return nil
}

// LookupRole はbusinessesテーブルからアカウントのロールを取得する。
// 行がない、またはロールが解釈できない場合はfalseを返す。
func (s *Service) LookupRole(ctx context.Context, accountID, accessToken string) (model.Role, bool, error) {
	var rows []struct {
		Role string `json:"role"`
	}
	query := url.Values{
		"user_id": {"eq." + accountID},
		"select":  {"role"},
		"limit":   {"1"},
	}
	if err := s.provider.Select(ctx, businessesTable, query, accessToken, &rows); err != nil {
		return "", false, fmt.Errorf("failed to look up role: %w", err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	role, ok := model.ParseRole(rows[0].Role)
	return role, ok, nil
}

// SignOut はプロバイダー側のセッションを失効させ、ローカルセッションを削除する。
// プロバイダーの失効に失敗してもローカルセッションは削除する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session != nil && session.AccessToken != "" {
		if err := s.provider.Logout(ctx, session.AccessToken); err != nil {
			slog.Warn("provider logout failed",
				slog.String("account_id", session.AccountID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("account signed out", slog.String("session_id", sessionID))
	return nil
}

// discard は無効になったセッションを削除する。失敗はログのみ。
func (s *Service) discard(ctx context.Context, sessionID string) {
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		slog.Warn("failed to delete stale session", slog.String("error", err.Error()))
	}
}

// tokenExpiry はアクセストークンの有効期限を求める。
// JWTのexpクレーム、expires_at、expires_in の順に参照する。
// 署名検証はプロバイダーの責務なのでここでは行わない。
func tokenExpiry(tok *supabase.TokenResponse, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if tok.ExpiresAt > 0 {
		return time.Unix(tok.ExpiresAt, 0)
	}
	if tok.ExpiresIn > 0 {
		return now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return now.Add(defaultTokenLifetime)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
