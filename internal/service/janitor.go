package service

import (
	"context"
	"log/slog"
	"time"

	"webpsync/internal/model"
)

type JanitorRepository interface {
	FindSupersededFailures(ctx context.Context, cutoff time.Time, limit int) ([]model.ConversionRecord, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}

// RunJanitor prunes failed conversion records older than threshold whose
// image was converted successfully later on.
func RunJanitor(ctx context.Context, repo JanitorRepository, threshold time.Duration, batchSize int, now time.Time) (int64, error) {
	slog.Info("Memulai scheduler janitor...")

	cutoff := now.Add(-threshold)
	stale, err := repo.FindSupersededFailures(ctx, cutoff, batchSize)
	if err != nil {
		slog.Error("Scheduler janitor gagal saat query database", "error", err)
		return 0, err
	}

	if len(stale) == 0 {
		slog.Info("Janitor: Tidak ada catatan gagal yang usang.")
		return 0, nil
	}

	ids := make([]string, 0, len(stale))
	for _, rec := range stale {
		ids = append(ids, rec.ID)
	}

	deleted, err := repo.DeleteMany(ctx, ids)
	if err != nil {
		slog.Error("Janitor: Gagal menghapus catatan gagal", "error", err)
		return 0, err
	}

	slog.Warn("Janitor: Menghapus catatan konversi gagal yang sudah tergantikan", "jumlah", deleted)
	slog.Info("Scheduler janitor selesai.")
	return deleted, nil
}
