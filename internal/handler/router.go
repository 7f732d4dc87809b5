package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/briefly/internal/metrics"
	"github.com/hitoshi/briefly/internal/middleware"
)

// healthCheckTimeout は/healthでのDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はDBの疎通確認を行うインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	TokenValidator    middleware.TokenValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス
	Metrics         middleware.StatusRecorder
	MetricsGatherer prometheus.Gatherer

	// サービス
	SummaryService SummaryServiceInterface
	ShareService   ShareServiceInterface
	UserService    UserServiceInterface
	AuthService    AuthServiceInterface

	MaxUploadSize int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → Auth → RateLimit(General)
//
// 登録とログインは認証ミドルウェアの外に配置する。
// AIを呼び出すエンドポイントには生成用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	summaryHandler := NewSummaryHandler(deps.SummaryService, deps.MaxUploadSize)
	shareHandler := NewShareHandler(deps.ShareService)
	authHandler := NewAuthHandler(deps.UserService, deps.AuthService)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Post("/api/users", authHandler.Register)
	r.Post("/api/auth/login", authHandler.Login)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		generation := deps.RateLimiter.GenerationMiddleware()

		r.Get("/api/auth/me", authHandler.Me)

		r.Route("/api/summaries", func(r chi.Router) {
			r.With(generation).Post("/", summaryHandler.CreateSummary)
			r.With(generation).Post("/upload", summaryHandler.UploadSummary)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", summaryHandler.GetSummary)
				r.Delete("/", summaryHandler.DeleteSummary)
				r.With(generation).Post("/regenerate", summaryHandler.RegenerateSummary)
				r.Post("/share", shareHandler.ShareSummary)
			})
		})

		r.Route("/api/users/{userID}", func(r chi.Router) {
			r.Get("/summaries", summaryHandler.ListUserSummaries)
			r.Get("/shared-summaries", shareHandler.ListSharedSummaries)
		})

		r.Get("/api/files/{blobID}", summaryHandler.DownloadFile)
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// healthHandler はプロセスとDBの稼働状況を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "unchecked"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			slog.Warn("health check: database unreachable", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
	}
}
