package metrics

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"webpsync/internal/model"
)

type memRepo struct {
	rows map[time.Time]*model.StorageMetric
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[time.Time]*model.StorageMetric)}
}

func (r *memRepo) FindByDay(_ context.Context, day time.Time) (*model.StorageMetric, error) {
	m, ok := r.rows[day]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *memRepo) Create(_ context.Context, m *model.StorageMetric) error {
	cp := *m
	r.rows[m.RecordedAt] = &cp
	return nil
}

func (r *memRepo) Update(_ context.Context, m *model.StorageMetric) error {
	cp := *m
	r.rows[m.RecordedAt] = &cp
	return nil
}

func (r *memRepo) Range(_ context.Context, from, to time.Time) ([]model.StorageMetric, error) {
	var out []model.StorageMetric
	for day, m := range r.rows {
		if !day.Before(from) && !day.After(to) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name     string
		avg      int
		count    int
		sample   int
		expected int
	}{
		{name: "documented example", avg: 50, count: 2, sample: 80, expected: 60},
		{name: "first sample", avg: 0, count: 0, sample: 42, expected: 42},
		{name: "rounds half up", avg: 10, count: 1, sample: 11, expected: 11},
		{name: "rounds down", avg: 33, count: 2, sample: 34, expected: 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeightedAverage(tt.avg, tt.count, tt.sample); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestRecordConversion(t *testing.T) {
	repo := newMemRepo()
	agg := NewAggregator(repo)
	ctx := context.Background()
	morning := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	if err := agg.RecordConversion(ctx, morning, 1000, 40); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := agg.RecordConversion(ctx, morning.Add(2*time.Hour), 3000, 60); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := agg.RecordConversion(ctx, morning.Add(4*time.Hour), 500, 80); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	m := repo.rows[Day(morning)]
	if m == nil {
		t.Fatal("Expected a metric row for the day")
	}
	if len(repo.rows) != 1 {
		t.Errorf("Expected a single row per day, got %d", len(repo.rows))
	}
	if m.ConversionsCount != 3 || m.SavingsBytes != 4500 {
		t.Errorf("Unexpected totals: %+v", m)
	}
	if m.AverageSavingsPercentage != 60 {
		t.Errorf("Expected average 60, got %d", m.AverageSavingsPercentage)
	}

	nextDay := morning.Add(24 * time.Hour)
	if err := agg.RecordConversion(ctx, nextDay, 10, 5); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(repo.rows) != 2 || repo.rows[Day(nextDay)].ConversionsCount != 1 {
		t.Error("Expected a fresh row on a new calendar day")
	}
}

func TestRecordInventoryKeepsConversionTotals(t *testing.T) {
	repo := newMemRepo()
	agg := NewAggregator(repo)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	agg.RecordConversion(ctx, now, 100, 50)
	if err := agg.RecordInventory(ctx, now, 40, 25); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	m := repo.rows[Day(now)]
	if m.TotalImages != 40 || m.WebPImages != 25 || m.OtherImages != 15 {
		t.Errorf("Unexpected inventory: %+v", m)
	}
	if m.ConversionsCount != 1 || m.AverageSavingsPercentage != 50 {
		t.Errorf("Inventory update must not touch conversion totals: %+v", m)
	}
}

func TestLastDaysAndExport(t *testing.T) {
	repo := newMemRepo()
	agg := NewAggregator(repo)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		agg.RecordConversion(ctx, now.AddDate(0, 0, -i), int64(100*(i+1)), 10*(i+1))
	}

	rows, err := agg.LastDays(ctx, now, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}

	path := filepath.Join(t.TempDir(), "metrics.parquet")
	if err := ExportParquet(path, rows); err != nil {
		t.Fatalf("Unexpected export error: %v", err)
	}

	read, err := parquet.ReadFile[Row](path)
	if err != nil {
		t.Fatalf("Unexpected read error: %v", err)
	}
	if len(read) != 3 || read[2].RecordedAt != "2026-03-14" || read[2].SavingsBytes != 100 {
		t.Errorf("Unexpected exported rows: %+v", read)
	}
}
