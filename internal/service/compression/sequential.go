package compression

import (
	"context"
	"log/slog"

	"webpsync/internal/analysis"
	"webpsync/internal/codec"
)

func runSequential(ctx context.Context, enc Encoder, files []analysis.File, opts codec.Options, cb *callbacks) []FileResult {
	results := make([]FileResult, 0, len(files))

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			slog.Info("Proses sekuensial dibatalkan.", "remaining", len(files)-i)
			for _, rest := range files[i:] {
				r := cancelled(rest, err)
				results = append(results, r)
				cb.complete(r)
			}
			break
		}

		cb.progress(progressFor(i, len(files), f.Name))
		slog.Debug("Memproses file", "mode", "sekuensial", "file_name", f.Name)

		r := convertFile(enc, f, opts)
		results = append(results, r)
		cb.complete(r)
	}

	succeeded, failedCount := summarize(results)
	slog.Info("Proses sekuensial selesai.",
		"berhasil", succeeded,
		"gagal", failedCount,
	)
	return results
}
