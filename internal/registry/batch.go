package registry

import (
	"context"
	"log/slog"

	"webpsync/internal/apperr"
	"webpsync/internal/codec"
	"webpsync/internal/model"
)

type ItemResult struct {
	ImageID string                  `json:"image_id"`
	Record  *model.ConversionRecord `json:"record,omitempty"`
	Error   string                  `json:"error,omitempty"`
	Kind    apperr.Kind             `json:"kind,omitempty"`
}

type BatchReport struct {
	Processed  int          `json:"processed"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Cancelled  int          `json:"cancelled"`
	SavedBytes int64        `json:"saved_bytes"`
	Items      []ItemResult `json:"items"`
}

type BatchProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	ImageID string `json:"image_id"`
}

// BatchConvertAll converts every non-WebP record one after another. A
// failing item is reported and the loop moves on; cancellation is only
// observed between items.
func (m *Manager) BatchConvertAll(ctx context.Context, records []model.ImageRecord, opts codec.Options, onProgress func(BatchProgress)) (BatchReport, error) {
	var report BatchReport
	if err := opts.Validate(); err != nil {
		return report, err
	}

	pending := make([]model.ImageRecord, 0, len(records))
	for _, r := range records {
		if r.IsWebP {
			report.Skipped++
			continue
		}
		pending = append(pending, r)
	}

	for i, img := range pending {
		if err := ctx.Err(); err != nil {
			report.Cancelled = len(pending) - i
			slog.Warn("Konversi massal dihentikan", "remaining", report.Cancelled, "reason", err)
			break
		}

		if onProgress != nil {
			onProgress(BatchProgress{Current: i + 1, Total: len(pending), ImageID: img.ID})
		}

		report.Processed++
		rec, err := m.ConvertOne(ctx, img, opts)
		item := ItemResult{ImageID: img.ID, Record: rec}
		if err != nil {
			report.Failed++
			item.Error = apperr.Message(err)
			item.Kind = apperr.KindOf(err)
		} else {
			report.Succeeded++
			if rec.OriginalSize != nil && rec.ConvertedSize != nil {
				report.SavedBytes += *rec.OriginalSize - *rec.ConvertedSize
			}
		}
		report.Items = append(report.Items, item)
	}

	slog.Info("Konversi massal selesai",
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"saved_bytes", report.SavedBytes,
	)
	return report, nil
}
