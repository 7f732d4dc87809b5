package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Blobバックエンドの種別
const (
	BlobBackendPostgres   = "postgres"
	BlobBackendFilesystem = "filesystem"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret string
	JWTExpiry time.Duration

	// AI gateway
	AIAPIKey       string
	AIBaseURL      string
	AIGeneralModel string
	AICodeModel    string
	AITimeout      time.Duration

	// Upload / Blob
	MaxUploadSize int64
	BlobBackend   string
	BlobDir       string
	BlobChunkSize int

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral    int
	RateLimitGeneration int

	// Cleanup worker
	OrphanBlobGrace time.Duration
	CleanupInterval time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Logging（debug, info, warn, error）
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.AIAPIKey = os.Getenv("AI_API_KEY")
	if cfg.AIAPIKey == "" {
		missing = append(missing, "AI_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTExpiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)
	cfg.AIBaseURL = strings.TrimRight(getEnvString("AI_BASE_URL", "https://api.mistral.ai/v1"), "/")
	cfg.AIGeneralModel = getEnvString("AI_GENERAL_MODEL", "open-mistral-nemo")
	cfg.AICodeModel = getEnvString("AI_CODE_MODEL", "open-codestral-mamba")
	cfg.AITimeout = getEnvDuration("AI_TIMEOUT", 60*time.Second)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 20971520)
	cfg.BlobBackend = strings.ToLower(getEnvString("BLOB_BACKEND", BlobBackendPostgres))
	cfg.BlobDir = getEnvString("BLOB_DIR", "./data/blobs")
	cfg.BlobChunkSize = getEnvInt("BLOB_CHUNK_SIZE", 261120)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGeneration = getEnvInt("RATE_LIMIT_GENERATION", 10)
	cfg.OrphanBlobGrace = getEnvDuration("ORPHAN_BLOB_GRACE", 24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))

	switch cfg.BlobBackend {
	case BlobBackendPostgres, BlobBackendFilesystem:
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND %q: use %s or %s",
			cfg.BlobBackend, BlobBackendPostgres, BlobBackendFilesystem)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
