package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pawrest/pawrest/internal/metrics"
	"github.com/pawrest/pawrest/internal/middleware"
	"github.com/pawrest/pawrest/internal/model"
	"github.com/pawrest/pawrest/internal/site"
)

// reconciliationListLimit は管理者ダッシュボードに表示する要確認の登録試行の最大件数。
const reconciliationListLimit = 50

// RegistrationLister は登録処理ジャーナルの参照インターフェース。
type RegistrationLister interface {
	CountByStatus(ctx context.Context, status model.RegistrationStatus) (int, error)
	ListByStatus(ctx context.Context, status model.RegistrationStatus, limit int) ([]*model.RegistrationAttempt, error)
}

// DashboardHandler はロール別ダッシュボードのHTTPハンドラー。
// 毎回セッションとユーザーを取得し、ロールが一致しなければ内容を描画する前にトップページへ戻す。
type DashboardHandler struct {
	auth          AuthServiceInterface
	registrations RegistrationLister
	renderer      *site.Renderer
	metrics       metrics.MetricsCollector
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(auth AuthServiceInterface, registrations RegistrationLister, renderer *site.Renderer, mc metrics.MetricsCollector) *DashboardHandler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &DashboardHandler{
		auth:          auth,
		registrations: registrations,
		renderer:      renderer,
		metrics:       mc,
	}
}

// Admin は管理者ダッシュボードを表示する。
// GET /dashboard/admin
func (h *DashboardHandler) Admin(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, model.RoleAdmin)
}

// FurParent はペットオーナーのダッシュボードを表示する。
// GET /dashboard/fur-parent
func (h *DashboardHandler) FurParent(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, model.RoleFurParent)
}

// ServiceProvider は事業者のダッシュボードを表示する。
// GET /dashboard/service-provider
func (h *DashboardHandler) ServiceProvider(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, model.RoleServiceProvider)
}

func (h *DashboardHandler) serve(w http.ResponseWriter, r *http.Request, required model.Role) {
	ctx := r.Context()

	session := middleware.SessionFromContext(ctx)
	if session == nil {
		h.redirect(w, r, "no session")
		return
	}

	account, err := h.auth.UserForSession(ctx, session)
	if err != nil {
		slog.Error("failed to fetch user for dashboard",
			slog.String("account_id", session.AccountID),
			slog.String("error", err.Error()),
		)
		h.redirect(w, r, "user unavailable")
		return
	}
	if account == nil {
		h.redirect(w, r, "no user")
		return
	}

	role, ok := account.Role()
	if !ok {
		h.redirect(w, r, "missing role")
		return
	}
	if role != required {
		h.redirect(w, r, "role mismatch")
		return
	}

	var dashboard *site.Dashboard
	switch role {
	case model.RoleAdmin:
		dashboard = h.adminDashboard(ctx)
	case model.RoleFurParent:
		dashboard = site.FurParentDashboard(account)
	case model.RoleServiceProvider:
		dashboard = site.ServiceProviderDashboard(account)
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = h.renderer.Render(w, site.PageDashboard, &site.Page{
		Title:     dashboard.Title + " - PawRest",
		CSRFToken: middleware.CSRFToken(ctx),
		Nav:       site.Nav{SignedIn: true, DashboardPath: role.DashboardPath()},
		Dashboard: dashboard,
	})
	if err != nil {
		slog.Error("failed to render dashboard", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w, r)
	}
}

// adminDashboard は要確認の登録試行を含む管理者ダッシュボードを組み立てる。
// ジャーナルを読めない場合も画面は表示し、一覧は取得できなかったことを示す。
func (h *DashboardHandler) adminDashboard(ctx context.Context) *site.Dashboard {
	if h.registrations == nil {
		return site.AdminDashboardUnavailable()
	}

	count, err := h.registrations.CountByStatus(ctx, model.RegistrationNeedsReconciliation)
	if err != nil {
		slog.Error("failed to count registrations", slog.String("error", err.Error()))
		return site.AdminDashboardUnavailable()
	}
	attempts, err := h.registrations.ListByStatus(ctx, model.RegistrationNeedsReconciliation, reconciliationListLimit)
	if err != nil {
		slog.Error("failed to list registrations", slog.String("error", err.Error()))
		return site.AdminDashboardUnavailable()
	}
	return site.AdminDashboard(count, attempts)
}

// redirect はトップページへ307でリダイレクトする。
func (h *DashboardHandler) redirect(w http.ResponseWriter, r *http.Request, reason string) {
	slog.Info("dashboard access denied",
		slog.String("path", r.URL.Path),
		slog.String("reason", reason),
	)
	h.metrics.RecordDashboardRedirect(r.URL.Path)
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}
