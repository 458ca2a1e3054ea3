package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"webpsync/internal/model"
)

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) Get(ctx context.Context) (*model.ConversionSchedule, error) {
	var s model.ConversionSchedule
	err := r.db.WithContext(ctx).Where("id = ?", model.ScheduleID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository.GetSchedule: %w", err)
	}
	return &s, nil
}

func (r *ScheduleRepository) Save(ctx context.Context, s *model.ConversionSchedule) error {
	s.ID = model.ScheduleID
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return fmt.Errorf("repository.SaveSchedule: %w", err)
	}
	return nil
}
