package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"webpsync/internal/model"
)

type MetricRepository struct {
	db *gorm.DB
}

func NewMetricRepository(db *gorm.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

func (r *MetricRepository) FindByDay(ctx context.Context, day time.Time) (*model.StorageMetric, error) {
	var m model.StorageMetric
	err := r.db.WithContext(ctx).Where("recorded_at = ?", day.Format(time.DateOnly)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository.FindMetricByDay: %w", err)
	}
	return &m, nil
}

func (r *MetricRepository) Create(ctx context.Context, m *model.StorageMetric) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("repository.CreateMetric: %w", err)
	}
	return nil
}

func (r *MetricRepository) Update(ctx context.Context, m *model.StorageMetric) error {
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("repository.UpdateMetric: %w", err)
	}
	return nil
}

func (r *MetricRepository) Range(ctx context.Context, from, to time.Time) ([]model.StorageMetric, error) {
	var metrics []model.StorageMetric
	err := r.db.WithContext(ctx).
		Where("recorded_at BETWEEN ? AND ?", from.Format(time.DateOnly), to.Format(time.DateOnly)).
		Order("recorded_at").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("repository.MetricRange: %w", err)
	}
	return metrics, nil
}
