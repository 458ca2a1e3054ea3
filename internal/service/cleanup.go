package service

import (
	"context"
	"log/slog"

	"webpsync/internal/model"
)

type OrphanStore interface {
	Pending(ctx context.Context, maxRetries, limit int) ([]model.OrphanedBlob, error)
	Remove(ctx context.Context, id int32) error
	MarkFailed(ctx context.Context, id int32, cause string) error
}

type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

type CleanupResult struct {
	Deleted int
	Failed  int
}

// ProcessOrphanQueue deletes converted blobs that no source row references.
// Entries that keep failing are left in place once maxRetries is reached.
func ProcessOrphanQueue(ctx context.Context, queue OrphanStore, storage BlobDeleter, batchSize, maxRetries int) (CleanupResult, error) {
	slog.Info("Memulai pemroses antrean blob yatim...", "batch_size", batchSize)

	var result CleanupResult
	items, err := queue.Pending(ctx, maxRetries, batchSize)
	if err != nil {
		slog.Error("Antrean Hapus: Gagal mengambil data.", "error", err)
		return result, err
	}

	if len(items) == 0 {
		return result, nil
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		err := storage.Delete(ctx, item.Path)
		if err == nil {
			if err := queue.Remove(ctx, item.ID); err != nil {
				slog.Error("Antrean Hapus: Gagal menghapus entri antrean.", "id", item.ID, "error", err)
			}
			result.Deleted++
			continue
		}

		slog.Error("Antrean Hapus: Gagal menghapus blob.", "path", item.Path, "error", err)
		if err := queue.MarkFailed(ctx, item.ID, err.Error()); err != nil {
			slog.Error("Antrean Hapus: Gagal mencatat kegagalan.", "id", item.ID, "error", err)
		}
		result.Failed++
	}

	slog.Info("Pemroses antrean blob yatim selesai.", "berhasil", result.Deleted, "gagal", result.Failed)
	return result, nil
}
