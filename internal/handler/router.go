package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pawrest/pawrest/internal/metrics"
	"github.com/pawrest/pawrest/internal/middleware"
	"github.com/pawrest/pawrest/internal/site"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionLoader middleware.SessionLoader
	RateLimiter   *middleware.RateLimiter
	CSRF          middleware.CSRFConfig
	Logger        *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// 認証・フロー
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	FlowStore   FlowStore

	// ダッシュボード
	Registrations RegistrationLister

	Renderer *site.Renderer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → SecurityHeaders → Session → Logging → CSRF
//
// /health、/metrics、/static/* はCSRFミドルウェアの外に配置する。
// 認証プロバイダーを呼ぶPOST（ログイン、サインアップ送信、パスワードリセット）にはIP単位のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{HSTS: deps.CSRF.CookieSecure}))
	r.Use(middleware.NewSessionMiddleware(deps.SessionLoader))
	r.Use(middleware.NewLoggingMiddleware(logger, mc))

	pageHandler := NewPageHandler(deps.FlowStore, deps.AuthService, deps.Renderer, deps.AuthConfig)
	flowHandler := NewFlowHandler(deps.FlowStore, deps.AuthConfig)
	authHandler := NewAuthHandler(deps.AuthService, deps.FlowStore, deps.AuthConfig)
	dashboardHandler := NewDashboardHandler(deps.AuthService, deps.Registrations, deps.Renderer, mc)

	// --- CSRF検証の対象外 ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker).ServeHTTP)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", site.StaticHandler()))

	// --- 画面とフロー操作 ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/", pageHandler.Home)
		r.Get("/signup", pageHandler.Signup)
		r.Get("/privacy", pageHandler.Privacy)

		// プロバイダーを呼ぶ送信のレート制限
		limitSignup := deps.RateLimiter.Middleware(func(*http.Request) {
			mc.RecordRegistration("unknown", metrics.OutcomeRateLimited)
		})
		limitLogin := deps.RateLimiter.Middleware(func(*http.Request) {
			mc.RecordLogin(metrics.OutcomeRateLimited)
		})
		limitReset := deps.RateLimiter.Middleware(func(*http.Request) {
			mc.RecordPasswordReset(metrics.OutcomeRateLimited)
		})

		r.Route("/flow", func(r chi.Router) {
			r.Route("/signup", func(r chi.Router) {
				r.Post("/open", flowHandler.OpenSignup)
				r.Post("/role", flowHandler.SelectRole)
				r.Post("/next", flowHandler.NextStep)
				r.Post("/back", flowHandler.PreviousStep)
				r.Post("/roles", flowHandler.BackToRoles)
				r.With(limitSignup).Post("/submit", flowHandler.SubmitSignup)
			})
			r.Route("/login", func(r chi.Router) {
				r.Post("/open", flowHandler.OpenLogin)
				r.With(limitLogin).Post("/submit", flowHandler.SubmitLogin)
				r.Post("/forgot", flowHandler.ForgotPassword)
				r.Post("/cancel-reset", flowHandler.CancelReset)
				r.With(limitReset).Post("/reset", flowHandler.SubmitReset)
			})
			r.Post("/switch/login", flowHandler.SwitchToLogin)
			r.Post("/switch/signup", flowHandler.SwitchToSignup)
			r.Post("/close", flowHandler.Close)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/logout", authHandler.Logout)
			r.Get("/callback", authHandler.Callback)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/admin", dashboardHandler.Admin)
			r.Get("/fur-parent", dashboardHandler.FurParent)
			r.Get("/service-provider", dashboardHandler.ServiceProvider)
		})
	})

	return r
}
