// Package config loads process configuration from the environment.
// A .env file is honored when present. Values that can change at runtime
// (target allocations, schedules) live in the settings repository instead.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all process-level configuration.
type Config struct {
	Port      int
	LogLevel  string
	LogPretty bool
	DataDir   string

	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceBaseURL   string

	CMCAPIKey string

	Backup BackupConfig
}

// BackupConfig holds the S3 backup target. Disabled unless a bucket is set.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	KeepArchives    int
}

// Load reads configuration from the environment, loading .env first if one
// exists.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be fully populated already.
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnvInt("PORT", 8000),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),
		DataDir:   getEnv("DATA_DIR", "./data"),

		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		BinanceBaseURL:   os.Getenv("BINANCE_BASE_URL"),

		CMCAPIKey: os.Getenv("CMC_API_KEY"),

		Backup: BackupConfig{
			Endpoint:        os.Getenv("BACKUP_S3_ENDPOINT"),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     os.Getenv("BACKUP_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("BACKUP_S3_SECRET_ACCESS_KEY"),
			Bucket:          os.Getenv("BACKUP_S3_BUCKET"),
			KeepArchives:    getEnvInt("BACKUP_KEEP_ARCHIVES", 7),
		},
	}
	cfg.Backup.Enabled = cfg.Backup.Bucket != ""

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d", cfg.Port)
	}

	return cfg, nil
}

// DatabasePath returns the path of a named database file under the data dir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}
