package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"webpsync/internal/model"
)

type OrphanRepository struct {
	db *gorm.DB
}

func NewOrphanRepository(db *gorm.DB) *OrphanRepository {
	return &OrphanRepository{db: db}
}

func (r *OrphanRepository) Enqueue(ctx context.Context, path, reason string) error {
	entry := model.OrphanedBlob{Path: path, Reason: reason}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("repository.EnqueueOrphan: %w", err)
	}
	return nil
}

func (r *OrphanRepository) Pending(ctx context.Context, maxRetries, limit int) ([]model.OrphanedBlob, error) {
	var blobs []model.OrphanedBlob
	err := r.db.WithContext(ctx).
		Where("failed_attempts < ?", maxRetries).
		Order("created_at").
		Limit(limit).
		Find(&blobs).Error
	if err != nil {
		return nil, fmt.Errorf("repository.PendingOrphans: %w", err)
	}
	return blobs, nil
}

func (r *OrphanRepository) Remove(ctx context.Context, id int32) error {
	if err := r.db.WithContext(ctx).Delete(&model.OrphanedBlob{}, id).Error; err != nil {
		return fmt.Errorf("repository.RemoveOrphan: %w", err)
	}
	return nil
}

func (r *OrphanRepository) MarkFailed(ctx context.Context, id int32, cause string) error {
	err := r.db.WithContext(ctx).Model(&model.OrphanedBlob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"failed_attempts": gorm.Expr("failed_attempts + 1"),
		"last_error":      &cause,
	}).Error
	if err != nil {
		return fmt.Errorf("repository.MarkOrphanFailed: %w", err)
	}
	return nil
}
