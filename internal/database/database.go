package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationDir = "migrations"

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug", "DEBUG":
		return logger.Info
	case "error", "ERROR":
		return logger.Error
	default:
		return logger.Warn
	}
}

func ConnectDB(dsn, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.New(slogWriter{}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormLogLevel(logLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("gagal terhubung ke database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gagal mengambil koneksi sql: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	slog.Info("Koneksi database berhasil.")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	const op = "database.Migrate"

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := goose.Up(sqlDB, migrationDir); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			slog.Info("Tidak ada migrasi yang perlu dijalankan.")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	slog.Info("Migrasi database berhasil dijalankan.")
	return nil
}

type slogWriter struct{}

func (slogWriter) Printf(format string, args ...interface{}) {
	slog.Log(context.Background(), gormMessageLevel(format, args), fmt.Sprintf(format, args...), "component", "gorm")
}

// gormMessageLevel recovers the level of a gorm log line. Slow and failed
// statements share one trace format and differ only in the second argument.
func gormMessageLevel(format string, args []interface{}) slog.Level {
	switch {
	case strings.Contains(format, "[error]"):
		return slog.LevelError
	case strings.Contains(format, "[warn]"):
		return slog.LevelWarn
	case strings.HasPrefix(format, "%s %s\n"):
		if len(args) > 1 {
			if _, ok := args[1].(error); ok {
				return slog.LevelError
			}
		}
		return slog.LevelWarn
	}
	return slog.LevelDebug
}
