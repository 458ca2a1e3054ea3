package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"webpsync/internal/apperr"
	"webpsync/internal/model"
)

const defaultListLimit = 500

type ConversionRepository struct {
	db *gorm.DB
}

func NewConversionRepository(db *gorm.DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

func (r *ConversionRepository) Create(ctx context.Context, rec *model.ConversionRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("repository.CreateConversion: %w", err)
	}
	return nil
}

func (r *ConversionRepository) Get(ctx context.Context, id string) (*model.ConversionRecord, error) {
	const op = "repository.GetConversion"

	var rec model.ConversionRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("catatan konversi '%s' tidak ditemukan", id))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "gagal membaca catatan konversi", err)
	}
	return &rec, nil
}

func (r *ConversionRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ConversionRecord{}).Error; err != nil {
		return fmt.Errorf("repository.DeleteConversion: %w", err)
	}
	return nil
}

func (r *ConversionRepository) UpdateStatus(ctx context.Context, id string, status model.ConversionStatus) error {
	const op = "repository.UpdateConversionStatus"

	res := r.db.WithContext(ctx).Model(&model.ConversionRecord{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, op, fmt.Sprintf("catatan konversi '%s' tidak ditemukan", id))
	}
	return nil
}

func (r *ConversionRepository) List(ctx context.Context, filter model.ConversionFilter) ([]model.ConversionRecord, error) {
	q := r.db.WithContext(ctx).Model(&model.ConversionRecord{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.SourceTable != "" {
		q = q.Where("source_table = ?", filter.SourceTable)
	}
	if filter.SourceID != "" {
		q = q.Where("source_id = ?", filter.SourceID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var records []model.ConversionRecord
	if err := q.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("repository.ListConversions: %w", err)
	}
	return records, nil
}

// FindSupersededFailures returns failed records created before cutoff for
// which the same source has a later converted record.
func (r *ConversionRepository) FindSupersededFailures(ctx context.Context, cutoff time.Time, limit int) ([]model.ConversionRecord, error) {
	var records []model.ConversionRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.StatusFailed, cutoff).
		Where(`EXISTS (
			SELECT 1 FROM image_conversions later
			WHERE later.source_table = image_conversions.source_table
			AND later.source_id = image_conversions.source_id
			AND later.status = ?
			AND later.created_at > image_conversions.created_at
		)`, model.StatusConverted).
		Order("created_at").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("repository.FindSupersededFailures: %w", err)
	}
	return records, nil
}

func (r *ConversionRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.ConversionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("repository.DeleteConversions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
