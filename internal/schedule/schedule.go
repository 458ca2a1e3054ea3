package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"webpsync/internal/apperr"
	"webpsync/internal/codec"
	"webpsync/internal/model"
)

type Repository interface {
	// Get returns nil, nil while no schedule row exists.
	Get(ctx context.Context) (*model.ConversionSchedule, error)
	Save(ctx context.Context, s *model.ConversionSchedule) error
}

type Patch struct {
	ScheduleTime       *string `json:"schedule_time"`
	DaysOfWeek         *[]int  `json:"days_of_week"`
	IsActive           *bool   `json:"is_active"`
	MaxImagesPerRun    *int    `json:"max_images_per_run"`
	Quality            *int    `json:"quality"`
	TargetWidth        *int    `json:"target_width"`
	TargetHeight       *int    `json:"target_height"`
	ApplyWatermark     *bool   `json:"apply_watermark"`
	WatermarkPosition  *string `json:"watermark_position"`
	NotifyOnCompletion *bool   `json:"notify_on_completion"`
	NotifyOnError      *bool   `json:"notify_on_error"`
}

func Defaults() model.ConversionSchedule {
	return model.ConversionSchedule{
		ID:                model.ScheduleID,
		ScheduleTime:      "02:00",
		DaysOfWeek:        pq.Int64Array{0, 1, 2, 3, 4, 5, 6},
		IsActive:          false,
		MaxImagesPerRun:   50,
		Quality:           85,
		TargetWidth:       1200,
		TargetHeight:      900,
		ApplyWatermark:    false,
		WatermarkPosition: string(codec.BottomRight),
	}
}

type Store struct {
	repo Repository
	now  func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

// Now is the clock NextRunAt is computed on. Unattended ticks use it too.
func (s *Store) Now() time.Time {
	return s.now()
}

// Get returns the stored schedule, or the unsaved defaults when none exists.
func (s *Store) Get(ctx context.Context) (*model.ConversionSchedule, error) {
	sch, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "schedule.Get", "gagal membaca jadwal konversi", err)
	}
	if sch == nil {
		d := Defaults()
		return &d, nil
	}
	return sch, nil
}

// Update inserts the defaults on first use and then applies only the fields
// present in p.
func (s *Store) Update(ctx context.Context, p Patch) (*model.ConversionSchedule, error) {
	const op = "schedule.Update"

	sch, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "gagal membaca jadwal konversi", err)
	}
	if sch == nil {
		d := Defaults()
		sch = &d
	}

	apply(sch, p)
	if err := Validate(sch); err != nil {
		return nil, err
	}

	sch.NextRunAt = nil
	if sch.IsActive {
		if next, ok := NextRun(sch, s.now()); ok {
			sch.NextRunAt = &next
		}
	}

	if err := s.repo.Save(ctx, sch); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "gagal menyimpan jadwal konversi", err)
	}
	return sch, nil
}

// MarkRun records a finished unattended run.
func (s *Store) MarkRun(ctx context.Context, sch *model.ConversionSchedule, at time.Time, stats any) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("gagal serialisasi statistik: %w", err)
	}

	sch.LastRunAt = &at
	sch.Stats = datatypes.JSON(raw)
	sch.NextRunAt = nil
	if next, ok := NextRun(sch, at); ok {
		sch.NextRunAt = &next
	}

	if err := s.repo.Save(ctx, sch); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "schedule.MarkRun", "gagal menyimpan hasil eksekusi", err)
	}
	return nil
}

func apply(sch *model.ConversionSchedule, p Patch) {
	if p.ScheduleTime != nil {
		sch.ScheduleTime = *p.ScheduleTime
	}
	if p.DaysOfWeek != nil {
		days := make(pq.Int64Array, 0, len(*p.DaysOfWeek))
		for _, d := range *p.DaysOfWeek {
			days = append(days, int64(d))
		}
		slices.Sort(days)
		sch.DaysOfWeek = days
	}
	if p.IsActive != nil {
		sch.IsActive = *p.IsActive
	}
	if p.MaxImagesPerRun != nil {
		sch.MaxImagesPerRun = *p.MaxImagesPerRun
	}
	if p.Quality != nil {
		sch.Quality = *p.Quality
	}
	if p.TargetWidth != nil {
		sch.TargetWidth = *p.TargetWidth
	}
	if p.TargetHeight != nil {
		sch.TargetHeight = *p.TargetHeight
	}
	if p.ApplyWatermark != nil {
		sch.ApplyWatermark = *p.ApplyWatermark
	}
	if p.WatermarkPosition != nil {
		sch.WatermarkPosition = *p.WatermarkPosition
	}
	if p.NotifyOnCompletion != nil {
		sch.NotifyOnCompletion = *p.NotifyOnCompletion
	}
	if p.NotifyOnError != nil {
		sch.NotifyOnError = *p.NotifyOnError
	}
}

func Validate(sch *model.ConversionSchedule) error {
	const op = "schedule.Validate"
	invalid := func(format string, args ...any) error {
		return apperr.New(apperr.KindValidation, op, fmt.Sprintf(format, args...))
	}

	if sch.Quality < codec.MinQuality || sch.Quality > codec.MaxQuality {
		return invalid("kualitas harus di antara %d dan %d", codec.MinQuality, codec.MaxQuality)
	}
	if sch.TargetWidth < 0 || sch.TargetHeight < 0 || (sch.TargetWidth == 0) != (sch.TargetHeight == 0) {
		return invalid("dimensi target tidak valid: %dx%d", sch.TargetWidth, sch.TargetHeight)
	}
	if sch.MaxImagesPerRun <= 0 {
		return invalid("maksimal gambar per eksekusi harus lebih besar dari 0")
	}
	if len(sch.DaysOfWeek) == 0 {
		return invalid("minimal satu hari harus dipilih")
	}
	seen := make(map[int64]bool, len(sch.DaysOfWeek))
	for _, d := range sch.DaysOfWeek {
		if d < 0 || d > 6 {
			return invalid("hari tidak valid: %d", d)
		}
		if seen[d] {
			return invalid("hari %d dipilih lebih dari sekali", d)
		}
		seen[d] = true
	}
	if _, _, err := ParseClock(sch.ScheduleTime); err != nil {
		return err
	}
	if sch.ApplyWatermark || sch.WatermarkPosition != "" {
		if _, err := codec.ParsePosition(sch.WatermarkPosition); err != nil {
			return err
		}
	}
	return nil
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.KindValidation, "schedule.ParseClock", fmt.Sprintf("format waktu tidak valid: '%s'", s), err)
	}
	return t.Hour(), t.Minute(), nil
}

func hasDay(sch *model.ConversionSchedule, wd time.Weekday) bool {
	return slices.Contains(sch.DaysOfWeek, int64(wd))
}

// NextRun returns the first slot strictly after after, in after's location.
func NextRun(sch *model.ConversionSchedule, after time.Time) (time.Time, bool) {
	h, m, err := ParseClock(sch.ScheduleTime)
	if err != nil || len(sch.DaysOfWeek) == 0 {
		return time.Time{}, false
	}
	for offset := 0; offset <= 7; offset++ {
		d := after.AddDate(0, 0, offset)
		candidate := time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, after.Location())
		if candidate.After(after) && hasDay(sch, candidate.Weekday()) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// Due reports whether an unattended run should start in the minute of now.
func Due(sch *model.ConversionSchedule, now time.Time) bool {
	if sch == nil || !sch.IsActive || !hasDay(sch, now.Weekday()) {
		return false
	}
	h, m, err := ParseClock(sch.ScheduleTime)
	if err != nil || now.Hour() != h || now.Minute() != m {
		return false
	}
	if sch.LastRunAt != nil && sch.LastRunAt.Truncate(time.Minute).Equal(now.Truncate(time.Minute)) {
		return false
	}
	return true
}

// CodecOptions turns the stored policy into encoder settings.
func CodecOptions(sch *model.ConversionSchedule, watermarkText string, opacity float64) codec.Options {
	return codec.Options{
		Quality:      sch.Quality,
		TargetWidth:  sch.TargetWidth,
		TargetHeight: sch.TargetHeight,
		Watermark: codec.WatermarkConfig{
			Enabled:  sch.ApplyWatermark,
			Position: codec.Position(sch.WatermarkPosition),
			Text:     watermarkText,
			Opacity:  opacity,
		},
	}
}
