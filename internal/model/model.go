package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type ConversionStatus string

const (
	StatusConverted ConversionStatus = "converted"
	StatusFailed    ConversionStatus = "failed"
	StatusRestored  ConversionStatus = "restored"
)

// ImageRecord is computed by scanning the content tables and never persisted.
type ImageRecord struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	SourceTable string `json:"source_table"`
	SourceID    string `json:"source_id"`
	Format      string `json:"format"`
	IsWebP      bool   `json:"is_webp"`
}

type ConversionRecord struct {
	ID                string           `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	SourceTable       string           `json:"source_table" gorm:"column:source_table;type:varchar(64);index:idx_conversion_source"`
	SourceID          string           `json:"source_id" gorm:"column:source_id;type:varchar(64);index:idx_conversion_source"`
	OriginalURL       string           `json:"original_url" gorm:"column:original_url;type:text"`
	ConvertedURL      *string          `json:"converted_url" gorm:"column:converted_url;type:text"`
	BackupURL         *string          `json:"backup_url" gorm:"column:backup_url;type:text"`
	OriginalFormat    string           `json:"original_format" gorm:"column:original_format;type:varchar(16)"`
	OriginalSize      *int64           `json:"original_size" gorm:"column:original_size"`
	ConvertedSize     *int64           `json:"converted_size" gorm:"column:converted_size"`
	SavingsPercentage *int             `json:"savings_percentage" gorm:"column:savings_percentage"`
	Status            ConversionStatus `json:"status" gorm:"column:status;type:varchar(16);index"`
	ErrorMessage      *string          `json:"error_message" gorm:"column:error_message;type:text"`
	ConvertedAt       *time.Time       `json:"converted_at" gorm:"column:converted_at"`
	CreatedAt         time.Time        `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (ConversionRecord) TableName() string {
	return "image_conversions"
}

// ConversionFilter narrows registry listings; zero fields match everything.
type ConversionFilter struct {
	Status      ConversionStatus
	SourceTable string
	SourceID    string
	Limit       int
}

// ScheduleID is the well-known key of the singleton schedule row.
const ScheduleID int32 = 1

type ConversionSchedule struct {
	ID                 int32          `json:"id" gorm:"column:id;primaryKey"`
	ScheduleTime       string         `json:"schedule_time" gorm:"column:schedule_time;type:varchar(5)"`
	DaysOfWeek         pq.Int64Array  `json:"days_of_week" gorm:"column:days_of_week;type:integer[]"`
	IsActive           bool           `json:"is_active" gorm:"column:is_active"`
	MaxImagesPerRun    int            `json:"max_images_per_run" gorm:"column:max_images_per_run"`
	Quality            int            `json:"quality" gorm:"column:quality"`
	TargetWidth        int            `json:"target_width" gorm:"column:target_width"`
	TargetHeight       int            `json:"target_height" gorm:"column:target_height"`
	ApplyWatermark     bool           `json:"apply_watermark" gorm:"column:apply_watermark"`
	WatermarkPosition  string         `json:"watermark_position" gorm:"column:watermark_position;type:varchar(16)"`
	NotifyOnCompletion bool           `json:"notify_on_completion" gorm:"column:notify_on_completion"`
	NotifyOnError      bool           `json:"notify_on_error" gorm:"column:notify_on_error"`
	LastRunAt          *time.Time     `json:"last_run_at" gorm:"column:last_run_at"`
	NextRunAt          *time.Time     `json:"next_run_at" gorm:"column:next_run_at"`
	Stats              datatypes.JSON `json:"stats" gorm:"column:stats"`
	CreatedAt          time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (ConversionSchedule) TableName() string {
	return "conversion_schedules"
}

type StorageMetric struct {
	ID                       int32     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	RecordedAt               time.Time `json:"recorded_at" gorm:"column:recorded_at;type:date;uniqueIndex"`
	TotalImages              int       `json:"total_images" gorm:"column:total_images"`
	WebPImages               int       `json:"webp_images" gorm:"column:webp_images"`
	OtherImages              int       `json:"other_images" gorm:"column:other_images"`
	ConversionsCount         int       `json:"conversions_count" gorm:"column:conversions_count"`
	SavingsBytes             int64     `json:"savings_bytes" gorm:"column:savings_bytes"`
	AverageSavingsPercentage int       `json:"average_savings_percentage" gorm:"column:average_savings_percentage"`
}

func (StorageMetric) TableName() string {
	return "storage_metrics"
}

type OrphanedBlob struct {
	ID             int32   `gorm:"column:id;primaryKey;autoIncrement"`
	Path           string  `gorm:"column:path;type:varchar(512)"`
	Reason         string  `gorm:"column:reason;type:varchar(255)"`
	FailedAttempts int     `gorm:"column:failed_attempts;default:0"`
	LastError      *string `gorm:"column:last_error;type:varchar(255)"`
	CreatedAt      int64   `gorm:"column:created_at;autoCreateTime:unixtime"`
}

func (OrphanedBlob) TableName() string {
	return "orphaned_blobs"
}
