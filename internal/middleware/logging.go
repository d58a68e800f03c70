package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pawrest/pawrest/internal/metrics"
)

// statusRecorder はhttp.ResponseWriterをラップし、最初に書き込まれたステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

// ヘルスチェック、メトリクス、静的ファイルは成功時にDEBUGで記録する。
var quietPaths = map[string]bool{"/health": true, "/metrics": true}

const staticPrefix = "/static/"

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力し、ステータスコードをメトリクスに記録するミドルウェアを返す。
// ログにはmethod、path、route、status、duration_ms、account_id（ログイン済みの場合）を含む。
// account_idを出すため、SessionMiddlewareの内側に配置する。
func NewLoggingMiddleware(logger *slog.Logger, mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
			}
			// ルーティング後はchiのコンテキストにパターンが入る
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
			}
			if accountID, ok := AccountIDFromContext(r.Context()); ok {
				attrs = append(attrs, slog.String("account_id", accountID))
			}

			logger.Log(r.Context(), levelFor(r.URL.Path, rec.statusCode), "http_request", attrs...)
			mc.RecordHTTPStatus(rec.statusCode)
		})
	}
}

// levelFor はステータスコードとパスからログレベルを決める。
func levelFor(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	if quietPaths[path] || strings.HasPrefix(path, staticPrefix) {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
