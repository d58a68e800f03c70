package handler

import (
	"log/slog"
	"net/http"

	"github.com/pawrest/pawrest/internal/middleware"
	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/site"
)

const (
	siteTitle  = "PawRest - Pet Memorial Services"
	signupPath = "/signup"
)

// PageHandler は公開ページのHTTPハンドラー。
type PageHandler struct {
	flowCookies
	auth     AuthServiceInterface
	renderer *site.Renderer
	content  site.Content
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(store FlowStore, auth AuthServiceInterface, renderer *site.Renderer, config AuthHandlerConfig) *PageHandler {
	return &PageHandler{
		flowCookies: flowCookies{store: store, config: config},
		auth:        auth,
		renderer:    renderer,
		content:     site.DefaultContent(),
	}
}

// Home はトップページを表示する。開いているダイアログも合わせて描画する。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, site.PageHome, &site.Page{
		Title:     siteTitle,
		CSRFToken: middleware.CSRFToken(r.Context()),
		Nav:       h.nav(r),
		Flow:      h.view(r),
		Content:   h.content,
	})
}

// Signup は事業者のサインアップフォームを開いた状態で表示する。
// ログインダイアログが開いている場合はそちらを優先する。
// GET /signup
func (h *PageHandler) Signup(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if !c.View().Login.Open() {
		c.OpenServiceProviderSignup()
	}

	h.render(w, r, site.PageSignup, &site.Page{
		Title:     "Join PawRest as a Service Provider",
		CSRFToken: middleware.CSRFToken(r.Context()),
		ReturnTo:  signupPath,
		Nav:       h.nav(r),
		Flow:      c.View(),
		Content:   h.content,
	})
}

// Privacy はプライバシーポリシーの断片を返す。
// GET /privacy
func (h *PageHandler) Privacy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.RenderPrivacy(w, h.content); err != nil {
		slog.Error("failed to render privacy policy", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w, r)
	}
}

// render はページを描画する。描画に失敗した場合は500を返す。
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, page string, data *site.Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.Render(w, page, data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w, r)
	}
}

// nav はログイン状態に応じたナビゲーションを返す。
// ダッシュボードのリンク先はログイン時と同じ順序（メタデータ、businessesテーブル、furParent）でロールを決める。
func (h *PageHandler) nav(r *http.Request) site.Nav {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		return site.Nav{}
	}

	account, err := h.auth.UserForSession(r.Context(), session)
	if err != nil {
		slog.Warn("failed to fetch user for navigation", slog.String("error", err.Error()))
		return site.Nav{}
	}
	if account == nil {
		return site.Nav{}
	}

	role, ok := account.Role()
	if !ok {
		role, ok, err = h.auth.LookupRole(r.Context(), account.ID, session.AccessToken)
		if err != nil {
			slog.Warn("failed to look up role for navigation",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
		if !ok {
			role = model.RoleFurParent
		}
	}
	return site.Nav{SignedIn: true, DashboardPath: role.DashboardPath()}
}
