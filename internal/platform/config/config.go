package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// ストア種別 ("postgres" or "memory")
	StoreDriver string

	// memory ストアへ起動時に読み込む銘柄CSV
	StockFile string

	// Database設定
	Database DatabaseConfig

	// HTTPサーバー設定
	Server ServerConfig

	// スキャン実行設定
	Scan ScanConfig

	// 缠论計算サービス設定
	Engine EngineConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ServerConfig はHTTPサーバー設定
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// ScanConfig はスキャンの並列度や周期の設定
type ScanConfig struct {
	MaxWorkers       int
	UnitTimeout      time.Duration
	FlushInterval    time.Duration
	ProgressInterval time.Duration
	TaskRetention    time.Duration
	ReaperSchedule   string
}

// EngineConfig は解析エンジンへの接続設定
type EngineConfig struct {
	URL     string
	Timeout time.Duration
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
	File   string // 空なら標準出力のみ
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		StockFile:   getEnv("STOCK_FILE", ""),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "bspscan"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "bspscan"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8000),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scan: ScanConfig{
			MaxWorkers:       getEnvAsInt("SCAN_MAX_WORKERS", 15),
			UnitTimeout:      getEnvAsDuration("SCAN_UNIT_TIMEOUT", 30*time.Second),
			FlushInterval:    getEnvAsDuration("SCAN_FLUSH_INTERVAL", 5*time.Second),
			ProgressInterval: getEnvAsDuration("SCAN_PROGRESS_INTERVAL", 500*time.Millisecond),
			TaskRetention:    getEnvAsDuration("SCAN_TASK_RETENTION", time.Hour),
			ReaperSchedule:   getEnv("SCAN_REAPER_SCHEDULE", "@every 10m"),
		},
		Engine: EngineConfig{
			URL:     getEnv("CHAN_ENGINE_URL", "http://localhost:8001"),
			Timeout: getEnvAsDuration("CHAN_ENGINE_TIMEOUT", 60*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}
	if c.Scan.MaxWorkers <= 0 {
		return fmt.Errorf("SCAN_MAX_WORKERS must be positive: %d", c.Scan.MaxWorkers)
	}
	if c.Scan.UnitTimeout <= 0 {
		return fmt.Errorf("SCAN_UNIT_TIMEOUT must be positive: %s", c.Scan.UnitTimeout)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します ("30s", "5m" など)
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
