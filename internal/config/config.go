package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const webpMaxDimension = 16383

type Config struct {
	DSN      string
	LogLevel string
	DryRun   bool

	StorageMode     string
	StorageBucket   string
	LocalStorageDir string
	PublicBaseURL   string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioUseSSL     bool

	CodecBackend     string
	WebPQuality      int
	MaxWidth         int
	MaxHeight        int
	WatermarkText    string
	WatermarkOpacity float64
	BatchConcurrency int
	FetchTimeout     time.Duration
	PresetsFile      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	InflightTTL   time.Duration

	KafkaBrokers string
	KafkaTopic   string

	HTTPAddr string

	SchedulerTick    string
	JanitorSchedule  string
	JanitorThreshold time.Duration
	OrphanSchedule   string
	OrphanBatchSize  int
	OrphanMaxRetries int
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return 0, fmt.Errorf("env var %s: invalid integer value '%s'", key, strValue)
	}
	return value, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return false, fmt.Errorf("env var %s: invalid boolean value '%s'", key, strValue)
	}
	return value, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return 0, fmt.Errorf("env var %s: invalid float value '%s'", key, strValue)
	}
	return value, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("env var %s: invalid duration value '%s'", key, strValue)
	}
	return value, nil
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.DSN = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_USER", "user"),
		getEnv("DB_PASSWORD", "password"),
		getEnv("DB_NAME", "dbname"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_SSLMODE", "disable"),
	)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.StorageMode = getEnv("STORAGE_MODE", "local")
	cfg.StorageBucket = getEnv("STORAGE_BUCKET", "images")
	cfg.LocalStorageDir = getEnv("LOCAL_STORAGE_DIR", "./storage")
	cfg.PublicBaseURL = getEnv("PUBLIC_BASE_URL", "")
	cfg.S3Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", "")
	cfg.MinioEndpoint = getEnv("MINIO_ENDPOINT", "localhost:9000")
	cfg.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", "")
	cfg.MinioSecretKey = getEnv("MINIO_SECRET_KEY", "")
	cfg.CodecBackend = getEnv("CODEC_BACKEND", "libwebp")
	cfg.WatermarkText = getEnv("WATERMARK_TEXT", "")
	cfg.PresetsFile = getEnv("PRESETS_FILE", "")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.KafkaBrokers = getEnv("KAFKA_BROKERS", "")
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "image.conversions")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.SchedulerTick = getEnv("SCHEDULER_TICK", "* * * * *")
	cfg.JanitorSchedule = getEnv("JANITOR_SCHEDULE", "")
	cfg.OrphanSchedule = getEnv("ORPHAN_SCHEDULE", "")

	if cfg.DryRun, err = getEnvAsBool("DRY_RUN", false); err != nil {
		return nil, err
	}
	if cfg.MinioUseSSL, err = getEnvAsBool("MINIO_USE_SSL", false); err != nil {
		return nil, err
	}
	if cfg.WebPQuality, err = getEnvAsInt("WEBP_QUALITY", 85); err != nil {
		return nil, err
	}
	if cfg.MaxWidth, err = getEnvAsInt("MAX_WIDTH", 1200); err != nil {
		return nil, err
	}
	if cfg.MaxHeight, err = getEnvAsInt("MAX_HEIGHT", 900); err != nil {
		return nil, err
	}
	if cfg.WatermarkOpacity, err = getEnvAsFloat("WATERMARK_OPACITY", 0.5); err != nil {
		return nil, err
	}
	if cfg.BatchConcurrency, err = getEnvAsInt("BATCH_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvAsInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.InflightTTL, err = getEnvAsDuration("INFLIGHT_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JanitorThreshold, err = getEnvAsDuration("JANITOR_THRESHOLD", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.OrphanBatchSize, err = getEnvAsInt("ORPHAN_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.OrphanMaxRetries, err = getEnvAsInt("ORPHAN_MAX_RETRIES", 3); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.WebPQuality < 50 || cfg.WebPQuality > 100 {
		return fmt.Errorf("WEBP_QUALITY harus di antara 50 dan 100")
	}
	if cfg.MaxWidth < 0 || cfg.MaxHeight < 0 {
		return fmt.Errorf("MAX_WIDTH dan MAX_HEIGHT tidak boleh negatif")
	}
	if (cfg.MaxWidth == 0) != (cfg.MaxHeight == 0) {
		return fmt.Errorf("MAX_WIDTH dan MAX_HEIGHT harus sama-sama 0 (ukuran asli) atau sama-sama lebih besar dari 0")
	}
	if cfg.MaxWidth > webpMaxDimension || cfg.MaxHeight > webpMaxDimension {
		return fmt.Errorf("MAX_WIDTH atau MAX_HEIGHT melebihi batas WebP (%dpx)", webpMaxDimension)
	}
	if cfg.WatermarkOpacity < 0 || cfg.WatermarkOpacity > 1 {
		return fmt.Errorf("WATERMARK_OPACITY harus di antara 0 dan 1")
	}
	if cfg.BatchConcurrency <= 0 {
		return fmt.Errorf("BATCH_CONCURRENCY harus lebih besar dari 0")
	}
	if cfg.OrphanBatchSize <= 0 {
		return fmt.Errorf("ORPHAN_BATCH_SIZE harus lebih besar dari 0")
	}
	if cfg.OrphanMaxRetries < 0 {
		return fmt.Errorf("ORPHAN_MAX_RETRIES tidak boleh negatif")
	}

	switch cfg.StorageMode {
	case "local":
		if cfg.LocalStorageDir == "" {
			return fmt.Errorf("LOCAL_STORAGE_DIR wajib diisi untuk STORAGE_MODE=local")
		}
	case "s3", "minio":
		if cfg.StorageBucket == "" {
			return fmt.Errorf("STORAGE_BUCKET wajib diisi untuk STORAGE_MODE=%s", cfg.StorageMode)
		}
	default:
		return fmt.Errorf("STORAGE_MODE tidak valid: '%s'. Gunakan salah satu dari: local, s3, minio", cfg.StorageMode)
	}

	switch cfg.CodecBackend {
	case "libwebp", "vips":
	default:
		return fmt.Errorf("CODEC_BACKEND tidak valid: '%s'. Gunakan salah satu dari: libwebp, vips", cfg.CodecBackend)
	}

	validLogLevels := map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}
	if !validLogLevels[strings.ToUpper(cfg.LogLevel)] {
		return fmt.Errorf("LOG_LEVEL tidak valid: '%s'. Gunakan salah satu dari: debug, info, warn, error", cfg.LogLevel)
	}

	return nil
}
