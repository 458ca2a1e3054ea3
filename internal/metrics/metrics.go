package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"webpsync/internal/model"
)

type Repository interface {
	// FindByDay returns nil, nil when no row exists for day.
	FindByDay(ctx context.Context, day time.Time) (*model.StorageMetric, error)
	Create(ctx context.Context, m *model.StorageMetric) error
	Update(ctx context.Context, m *model.StorageMetric) error
	Range(ctx context.Context, from, to time.Time) ([]model.StorageMetric, error)
}

type Aggregator struct {
	repo Repository
}

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeightedAverage folds one more sample into a rounded running average.
func WeightedAverage(oldAvg, oldCount, sample int) int {
	if oldCount <= 0 {
		return sample
	}
	return int(math.Round(float64(oldAvg*oldCount+sample) / float64(oldCount+1)))
}

func (a *Aggregator) RecordConversion(ctx context.Context, at time.Time, savedBytes int64, savingsPercentage int) error {
	day := Day(at)
	m, err := a.repo.FindByDay(ctx, day)
	if err != nil {
		return fmt.Errorf("gagal membaca metrik harian: %w", err)
	}

	if m == nil {
		return a.repo.Create(ctx, &model.StorageMetric{
			RecordedAt:               day,
			ConversionsCount:         1,
			SavingsBytes:             savedBytes,
			AverageSavingsPercentage: savingsPercentage,
		})
	}

	m.AverageSavingsPercentage = WeightedAverage(m.AverageSavingsPercentage, m.ConversionsCount, savingsPercentage)
	m.ConversionsCount++
	m.SavingsBytes += savedBytes
	return a.repo.Update(ctx, m)
}

// RecordInventory stores the image census for the day of at.
func (a *Aggregator) RecordInventory(ctx context.Context, at time.Time, total, webp int) error {
	day := Day(at)
	m, err := a.repo.FindByDay(ctx, day)
	if err != nil {
		return fmt.Errorf("gagal membaca metrik harian: %w", err)
	}

	if m == nil {
		return a.repo.Create(ctx, &model.StorageMetric{
			RecordedAt:  day,
			TotalImages: total,
			WebPImages:  webp,
			OtherImages: total - webp,
		})
	}

	m.TotalImages = total
	m.WebPImages = webp
	m.OtherImages = total - webp
	return a.repo.Update(ctx, m)
}

// LastDays returns the rows of the last n calendar days up to now, oldest first.
func (a *Aggregator) LastDays(ctx context.Context, now time.Time, n int) ([]model.StorageMetric, error) {
	if n <= 0 {
		n = 30
	}
	to := Day(now)
	from := to.AddDate(0, 0, -(n - 1))
	return a.repo.Range(ctx, from, to)
}
