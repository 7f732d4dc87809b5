// Package app はプロセスのエントリーポイントとサブコマンドごとの依存関係の組み立てを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/briefly/internal/auth"
	"github.com/hitoshi/briefly/internal/blobstore"
	"github.com/hitoshi/briefly/internal/config"
	"github.com/hitoshi/briefly/internal/database"
	"github.com/hitoshi/briefly/internal/handler"
	"github.com/hitoshi/briefly/internal/logger"
	"github.com/hitoshi/briefly/internal/metrics"
	"github.com/hitoshi/briefly/internal/middleware"
	"github.com/hitoshi/briefly/internal/repository"
	"github.com/hitoshi/briefly/internal/security"
	"github.com/hitoshi/briefly/internal/share"
	"github.com/hitoshi/briefly/internal/summarizer"
	"github.com/hitoshi/briefly/internal/summary"
	"github.com/hitoshi/briefly/internal/user"
	"github.com/hitoshi/briefly/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数を読み込み、LOG_LEVELに合わせてロガーを再設定する。
// wがnilの場合はos.Stdoutに出力する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで終了処理に入る。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

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
	slog.SetDefault(slog.Default().With(slog.String("command", string(cmd))))

	slog.Info("starting application",
		slog.String("port", cfg.ServerPort),
		slog.String("blob_backend", cfg.BlobBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はDB接続を開き疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database connection established")
	return db, nil
}

// newBlobStore はBLOB_BACKENDに応じたBlobストアを生成する。
func newBlobStore(cfg *config.Config, db *sql.DB) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendFilesystem:
		store, err := blobstore.NewFileStore(cfg.BlobDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open blob directory: %w", err)
		}
		return store, nil
	case config.BlobBackendPostgres:
		return blobstore.NewPostgresStore(db, cfg.BlobChunkSize), nil
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.BlobBackend)
	}
}

// newMetrics はプロセス専用のレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouter は全依存関係をワイヤリングしてルーターを構築する。
func buildRouter(cfg *config.Config, db *sql.DB, blobs blobstore.Store, reg *prometheus.Registry, mc *metrics.Collector, rl *middleware.RateLimiter) http.Handler {
	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	summaryRepo := repository.NewPostgresSummaryRepo(db)
	shareRepo := repository.NewPostgresShareRepo(db)

	// AIゲートウェイ
	aiCfg := summarizer.Config{
		APIKey:       cfg.AIAPIKey,
		BaseURL:      cfg.AIBaseURL,
		GeneralModel: cfg.AIGeneralModel,
		CodeModel:    cfg.AICodeModel,
		Timeout:      cfg.AITimeout,
	}
	gateway := summarizer.NewGateway(summarizer.NewOpenAIClient(aiCfg), aiCfg, security.NewSummarySanitizer(), mc)

	// ドメインサービス
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	authService := auth.NewService(userRepo, tokens)
	userService := user.NewService(userRepo)
	summaryService := summary.NewService(summaryRepo, blobs, gateway, mc)
	shareService := share.NewService(summaryRepo, userRepo, shareRepo, mc)

	return handler.NewRouter(&handler.RouterDeps{
		HealthChecker:     db,
		TokenValidator:    authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		Logger:            slog.Default(),

		Metrics:         mc,
		MetricsGatherer: reg,

		SummaryService: handler.NewSummaryServiceAdapter(summaryService),
		ShareService:   handler.NewShareServiceAdapter(shareService),
		UserService:    handler.NewUserServiceAdapter(userService),
		AuthService:    handler.NewAuthServiceAdapter(authService),

		MaxUploadSize: cfg.MaxUploadSize,
	})
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := newBlobStore(cfg, db)
	if err != nil {
		return err
	}

	reg, mc := newMetrics()
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitGeneration))
	defer rl.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           buildRouter(cfg, db, blobs, reg, mc, rl),
		ReadHeaderTimeout: 10 * time.Second,
		// アップロード本文の受信とAI呼び出しの待ち時間を含める
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: cfg.AITimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 孤立ファイル回収ジョブをCLEANUP_INTERVALごとに実行し、ctxがキャンセルされると終了する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := newBlobStore(cfg, db)
	if err != nil {
		return err
	}

	_, mc := newMetrics()
	job := cleanup.NewCleanupJob(
		blobs,
		repository.NewPostgresSummaryRepo(db),
		mc,
		slog.Default(),
		cfg.OrphanBlobGrace,
	)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("orphan_blob_grace", cfg.OrphanBlobGrace),
	)

	// ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.CleanupInterval)

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

	version, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// パースできない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
