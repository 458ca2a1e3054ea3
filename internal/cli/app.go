package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"webpsync/internal/adapter"
	"webpsync/internal/codec"
	"webpsync/internal/codec/vipsenc"
	"webpsync/internal/codec/webpenc"
	"webpsync/internal/config"
	"webpsync/internal/database"
	"webpsync/internal/inflight"
	"webpsync/internal/metrics"
	"webpsync/internal/notify"
	"webpsync/internal/registry"
	"webpsync/internal/repository"
	"webpsync/internal/schedule"
	"webpsync/internal/source"
)

type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Storage     *adapter.StorageAdapter
	Codec       *codec.Codec
	Registry    *registry.Manager
	Scanner     *source.Scanner
	Schedules   *schedule.Store
	Metrics     *metrics.Aggregator
	Conversions *repository.ConversionRepository
	Orphans     *repository.OrphanRepository
	Notifier    notify.Notifier
	Presets     []config.Preset

	redis *redis.Client
}

func parseLogLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}))
	slog.SetDefault(logger)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("konfigurasi tidak valid: %w", err)
	}
	setupLogger(cfg.LogLevel)
	return cfg, nil
}

func newEncoder(backend string) codec.Encoder {
	if backend == "vips" {
		return vipsenc.New()
	}
	return webpenc.New()
}

func newStorage(ctx context.Context, cfg *config.Config) (*adapter.StorageAdapter, error) {
	var s3Client *s3.Client
	var minioClient *minio.Client
	var err error

	switch cfg.StorageMode {
	case "s3":
		if s3Client, err = adapter.NewS3Client(ctx, cfg); err != nil {
			return nil, err
		}
	case "minio":
		if minioClient, err = adapter.NewMinioClient(cfg); err != nil {
			return nil, err
		}
	}
	return adapter.NewStorageAdapter(cfg, s3Client, minioClient), nil
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.ConnectDB(cfg.DSN, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:      cfg,
		DB:          db,
		Storage:     storage,
		Codec:       codec.New(newEncoder(cfg.CodecBackend)),
		Conversions: repository.NewConversionRepository(db),
		Orphans:     repository.NewOrphanRepository(db),
		Schedules:   schedule.NewStore(repository.NewScheduleRepository(db)),
		Metrics:     metrics.NewAggregator(repository.NewMetricRepository(db)),
		Notifier:    notify.Nop{},
		Presets:     presets,
	}

	var guard inflight.Guard = inflight.NewMemoryGuard()
	if cfg.RedisAddr != "" {
		app.redis = inflight.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("gagal terhubung ke redis: %w", err)
		}
		guard = inflight.NewRedisGuard(app.redis, cfg.InflightTTL)
	}

	if cfg.KafkaBrokers != "" {
		app.Notifier = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	content := repository.NewContentRepository(db)
	app.Scanner = source.NewScanner(content)
	app.Registry = registry.NewManager(registry.Deps{
		Fetcher: adapter.NewFetcher(cfg.FetchTimeout),
		Storage: storage,
		Codec:   app.Codec,
		Content: content,
		Records: app.Conversions,
		Metrics: app.Metrics,
		Guard:   guard,
		Orphans: app.Orphans,
	})

	slog.Info("Aplikasi siap",
		slog.Group("backend",
			slog.String("storage", storage.Mode()),
			slog.String("codec", app.Codec.EncoderName()),
			slog.Bool("redis_guard", app.redis != nil),
			slog.Bool("kafka", cfg.KafkaBrokers != ""),
		),
	)
	return app, nil
}

func (a *App) Close() {
	if err := a.Notifier.Close(); err != nil {
		slog.Warn("Gagal menutup notifier", "error", err)
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *App) options(preset string) (codec.Options, error) {
	opts := a.Config.CodecDefaults()
	if preset == "" {
		return opts, nil
	}
	p, ok := config.FindPreset(a.Presets, preset)
	if !ok {
		return opts, fmt.Errorf("preset '%s' tidak ditemukan", preset)
	}
	return p.Apply(opts), nil
}

// withApp loads the configuration, builds the application and runs fn.
func withApp(ctx context.Context, fn func(*App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
