package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"webpsync/internal/apperr"
	"webpsync/internal/source"
)

// ContentRepository reads and patches the listing and gallery tables owned
// by the site. Only the image column of a row is ever written.
type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

func (r *ContentRepository) ListImageRefs(ctx context.Context, kind source.Kind) ([]source.Ref, error) {
	const op = "repository.ListImageRefs"
	if !kind.Valid() {
		return nil, apperr.New(apperr.KindValidation, op, fmt.Sprintf("jenis sumber tidak valid: %s", kind))
	}

	field := kind.Field()
	var refs []source.Ref
	err := r.db.WithContext(ctx).
		Table(kind.Table()).
		Select(fmt.Sprintf("CAST(id AS TEXT) AS id, %s AS url", field)).
		Where(fmt.Sprintf("%s IS NOT NULL AND %s <> ''", field, field)).
		Order("id").
		Scan(&refs).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, kind.Table(), err)
	}
	return refs, nil
}

func (r *ContentRepository) UpdateImageURL(ctx context.Context, kind source.Kind, sourceID, url string) error {
	const op = "repository.UpdateImageURL"
	if !kind.Valid() {
		return apperr.New(apperr.KindValidation, op, fmt.Sprintf("jenis sumber tidak valid: %s", kind))
	}

	res := r.db.WithContext(ctx).
		Table(kind.Table()).
		Where("id = ?", sourceID).
		Update(kind.Field(), url)
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, op, fmt.Sprintf("baris %s dengan id %s tidak ditemukan", kind.Table(), sourceID))
	}
	return nil
}
