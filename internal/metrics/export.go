package metrics

import (
	"fmt"

	"github.com/parquet-go/parquet-go"

	"webpsync/internal/model"
)

type Row struct {
	RecordedAt               string `parquet:"recorded_at"`
	TotalImages              int64  `parquet:"total_images"`
	WebPImages               int64  `parquet:"webp_images"`
	OtherImages              int64  `parquet:"other_images"`
	ConversionsCount         int64  `parquet:"conversions_count"`
	SavingsBytes             int64  `parquet:"savings_bytes"`
	AverageSavingsPercentage int64  `parquet:"average_savings_percentage"`
}

func toRows(metrics []model.StorageMetric) []Row {
	rows := make([]Row, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, Row{
			RecordedAt:               m.RecordedAt.Format("2006-01-02"),
			TotalImages:              int64(m.TotalImages),
			WebPImages:               int64(m.WebPImages),
			OtherImages:              int64(m.OtherImages),
			ConversionsCount:         int64(m.ConversionsCount),
			SavingsBytes:             m.SavingsBytes,
			AverageSavingsPercentage: int64(m.AverageSavingsPercentage),
		})
	}
	return rows
}

func ExportParquet(path string, metrics []model.StorageMetric) error {
	if err := parquet.WriteFile(path, toRows(metrics)); err != nil {
		return fmt.Errorf("gagal menulis parquet '%s': %w", path, err)
	}
	return nil
}
