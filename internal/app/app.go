package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pawrest/pawrest/internal/auth"
	"github.com/pawrest/pawrest/internal/config"
	"github.com/pawrest/pawrest/internal/database"
	"github.com/pawrest/pawrest/internal/flow"
	"github.com/pawrest/pawrest/internal/handler"
	"github.com/pawrest/pawrest/internal/logger"
	"github.com/pawrest/pawrest/internal/metrics"
	"github.com/pawrest/pawrest/internal/middleware"
	"github.com/pawrest/pawrest/internal/repository"
	"github.com/pawrest/pawrest/internal/security"
	"github.com/pawrest/pawrest/internal/signup"
	"github.com/pawrest/pawrest/internal/site"
	"github.com/pawrest/pawrest/internal/supabase"
	"github.com/pawrest/pawrest/internal/validation"
	"github.com/pawrest/pawrest/internal/worker/cleanup"
)

// cleanupInterval はワーカーのクリーンアップ実行間隔。
const cleanupInterval = time.Hour

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、JSON構造化ログをセットアップしてから環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既に設定済みの環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// services はserveモードで組み立てる依存関係。
type services struct {
	registry *prometheus.Registry
	router   http.Handler
	cleanup  func()
}

// buildServices は設定とDBから全依存関係をワイヤリングする。
func buildServices(cfg *config.Config, db *sql.DB) (*services, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(registry)

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	registrationRepo := repository.NewPostgresRegistrationRepo(db)

	// 3. プロバイダークライアントの初期化
	guard := security.NewProviderGuard(cfg.ProviderAllowPrivate)
	if err := guard.ValidateURL(cfg.SupabaseURL); err != nil {
		return nil, fmt.Errorf("provider URL rejected: %w", err)
	}
	provider := supabase.NewClient(guard.NewHTTPClient(cfg.ProviderTimeout), slog.Default(), cfg.SupabaseURL, cfg.SupabaseAnonKey)
	provider.SetLatencyObserver(mc.RecordProviderLatency)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(provider, sessionRepo, auth.ServiceConfig{
		SessionMaxAge:  cfg.SessionMaxAge,
		BaseURL:        cfg.BaseURL,
		DocumentBucket: cfg.DocumentBucket,
	})
	registrar := signup.NewRegistrar(authService, registrationRepo, security.NewTextSanitizer(), mc)

	validator, err := validation.New(validation.Options{
		RequireSymbol: cfg.PasswordRequireSymbol,
		MaxUploadSize: cfg.MaxUploadSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build validator: %w", err)
	}

	flowStore := flow.NewStore(flow.StoreConfig{
		IdleTimeout:     cfg.FlowIdleTimeout,
		CleanupInterval: flow.DefaultStoreConfig().CleanupInterval,
	}, flow.Deps{
		Validator: validator,
		Registrar: registrar,
		Auth:      authService,
		Metrics:   mc,
	})

	renderer, err := site.NewRenderer()
	if err != nil {
		flowStore.Stop()
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitAuth))

	deps := &handler.RouterDeps{
		SessionLoader: authService,
		RateLimiter:   rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			// 書類3件とテキスト項目を受け付けられる上限
			MaxBodyBytes: 3*cfg.MaxUploadSize + 1<<20,
		},
		Logger: slog.Default(),

		HealthChecker:  db,
		Metrics:        mc,
		MetricsHandler: metrics.Handler(registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		FlowStore: flowStore,

		Registrations: registrationRepo,
		Renderer:      renderer,
	}

	return &services{
		registry: registry,
		router:   handler.NewRouter(deps),
		cleanup: func() {
			rateLimiter.Stop()
			flowStore.Stop()
		},
	}, nil
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	svc, err := buildServices(cfg, db)
	if err != nil {
		return err
	}
	defer svc.cleanup()

	// 書類のアップロードを含むため書き込みタイムアウトは長めにする
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           svc.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションと古い登録試行のクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(db, slog.Default())
	job.SessionMaxAge = time.Duration(cfg.SessionMaxAge) * time.Second
	job.RetentionDays = cfg.JournalRetentionDays

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("interval", cleanupInterval),
		slog.Int("journal_retention_days", cfg.JournalRetentionDays),
	)

	job.Start(ctx, cleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
