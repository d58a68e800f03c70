// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pawrest/pawrest/internal/middleware"
	"github.com/pawrest/pawrest/internal/model"
)

// AuthServiceInterface はハンドラーが必要とする認証サービスのインターフェース。
// auth.Serviceが実装する。
type AuthServiceInterface interface {
	UserForSession(ctx context.Context, session *model.Session) (*model.Account, error)
	LookupRole(ctx context.Context, accountID, accessToken string) (model.Role, bool, error)
	SignOut(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig はCookieとリダイレクトの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はセッション関連のHTTPハンドラー。
type AuthHandler struct {
	flowCookies
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, store FlowStore, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		flowCookies: flowCookies{store: store, config: config},
		service:     service,
	}
}

// Callback はメール確認リンクからの戻り先。ログインダイアログを開いてトップページへ戻す。
// GET /auth/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if desc := query.Get("error_description"); desc != "" {
		slog.Warn("email verification failed",
			slog.String("error", query.Get("error")),
			slog.String("description", desc),
		)
	}

	h.controller(w, r).OpenLogin()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.SignOut(r.Context(), cookie.Value); logoutErr != nil {
			// ログアウトに失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
