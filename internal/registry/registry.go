package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"webpsync/internal/adapter"
	"webpsync/internal/apperr"
	"webpsync/internal/codec"
	"webpsync/internal/inflight"
	"webpsync/internal/model"
	"webpsync/internal/source"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, opts adapter.UploadOptions) (string, error)
	PublicURL(path string) string
}

type Encoder interface {
	Encode(data []byte, opts codec.Options) ([]byte, error)
}

// ContentStore mutates the image field of a single source row.
type ContentStore interface {
	UpdateImageURL(ctx context.Context, kind source.Kind, sourceID, url string) error
}

type Repository interface {
	Create(ctx context.Context, rec *model.ConversionRecord) error
	// Get returns a NotFound error when id is unknown.
	Get(ctx context.Context, id string) (*model.ConversionRecord, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status model.ConversionStatus) error
	List(ctx context.Context, filter model.ConversionFilter) ([]model.ConversionRecord, error)
}

type MetricsRecorder interface {
	RecordConversion(ctx context.Context, at time.Time, savedBytes int64, savingsPercentage int) error
}

type OrphanQueue interface {
	Enqueue(ctx context.Context, path, reason string) error
}

type Deps struct {
	Fetcher Fetcher
	Storage BlobStore
	Codec   Encoder
	Content ContentStore
	Records Repository
	Metrics MetricsRecorder
	Guard   inflight.Guard
	Orphans OrphanQueue
	Now     func() time.Time
	NewID   func() string
}

type Manager struct {
	fetcher Fetcher
	storage BlobStore
	codec   Encoder
	content ContentStore
	records Repository
	metrics MetricsRecorder
	guard   inflight.Guard
	orphans OrphanQueue
	now     func() time.Time
	newID   func() string
}

func NewManager(d Deps) *Manager {
	m := &Manager{
		fetcher: d.Fetcher,
		storage: d.Storage,
		codec:   d.Codec,
		content: d.Content,
		records: d.Records,
		metrics: d.Metrics,
		guard:   d.Guard,
		orphans: d.Orphans,
		now:     d.Now,
		newID:   d.NewID,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.NewString() }
	}
	return m
}

// Savings is the rounded byte reduction in percent. It is negative when
// the converted blob is larger than the original.
func Savings(originalSize, convertedSize int64) int {
	if originalSize <= 0 {
		return 0
	}
	return int(math.Round(float64(originalSize-convertedSize) / float64(originalSize) * 100))
}

// BackupPath and ConvertedPath carry the attempt id next to the stamp so two
// attempts started in the same millisecond never share a key.
func BackupPath(table, sourceID string, stamp int64, attemptID, format string) string {
	return fmt.Sprintf("backups/%s/%s/%d-%s-original.%s", table, sourceID, stamp, attemptID, source.ExtForFormat(format))
}

func ConvertedPath(table, sourceID string, stamp int64, attemptID string) string {
	return fmt.Sprintf("converted/%s/%s/%d-%s.webp", table, sourceID, stamp, attemptID)
}

func guardKey(table, sourceID string) string {
	return table + "-" + sourceID
}

func (m *Manager) Get(ctx context.Context, id string) (*model.ConversionRecord, error) {
	return m.records.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, filter model.ConversionFilter) ([]model.ConversionRecord, error) {
	return m.records.List(ctx, filter)
}

func (m *Manager) lock(ctx context.Context, op, key string) (func(), error) {
	if m.guard == nil {
		return func() {}, nil
	}

	ok, err := m.guard.TryAcquire(ctx, key)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, "gagal memeriksa konversi yang sedang berjalan", err)
	}
	if !ok {
		return nil, apperr.New(apperr.KindConflict, op, fmt.Sprintf("konversi untuk '%s' sedang berjalan", key))
	}

	return func() {
		if err := m.guard.Release(context.WithoutCancel(ctx), key); err != nil {
			slog.Warn("Gagal melepas penanda konversi", "key", key, "error", err)
		}
	}, nil
}

// ConvertOne replaces the image of one source row with a WebP rendition.
// Failures after the arguments were accepted are logged as a failed record,
// which is returned together with the error.
func (m *Manager) ConvertOne(ctx context.Context, img model.ImageRecord, opts codec.Options) (*model.ConversionRecord, error) {
	const op = "registry.ConvertOne"

	kind, err := checkImage(op, img)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	release, err := m.lock(ctx, op, guardKey(img.SourceTable, img.SourceID))
	if err != nil {
		return nil, err
	}
	defer release()

	return m.convert(ctx, kind, img, opts)
}

func checkImage(op string, img model.ImageRecord) (source.Kind, error) {
	kind, err := source.ParseKind(img.SourceTable)
	if err != nil {
		return 0, err
	}
	if err := source.ValidateSourceID(img.SourceID); err != nil {
		return 0, err
	}
	if img.URL == "" {
		return 0, apperr.New(apperr.KindValidation, op, "url gambar kosong")
	}
	return kind, nil
}

type attempt struct {
	id           string
	img          model.ImageRecord
	format       string
	originalSize *int64
	backupURL    *string
}

func (m *Manager) convert(ctx context.Context, kind source.Kind, img model.ImageRecord, opts codec.Options) (*model.ConversionRecord, error) {
	const op = "registry.convert"

	started := m.now()
	stamp := started.UnixMilli()
	a := attempt{id: m.newID(), img: img, format: img.Format}
	if a.format == "" {
		a.format = source.FormatFromURL(img.URL)
	}

	data, err := m.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Wrap(apperr.KindStorage, op, "gagal mengunduh gambar asli", err)
		}
		return m.fail(ctx, a, err)
	}
	originalSize := int64(len(data))
	a.originalSize = &originalSize

	backupPath := BackupPath(img.SourceTable, img.SourceID, stamp, a.id, a.format)
	_, err = m.storage.Upload(ctx, backupPath, data, adapter.UploadOptions{
		ContentType: mimetype.Detect(data).String(),
	})
	if err != nil {
		slog.Warn("Gagal mengunggah backup, restore tidak tersedia untuk konversi ini", "image_id", img.ID, "path", backupPath, "error", err)
	} else {
		backupURL := m.storage.PublicURL(backupPath)
		a.backupURL = &backupURL
	}

	converted, err := m.codec.Encode(data, opts)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Wrap(apperr.KindCodec, op, "gagal mengonversi gambar", err)
		}
		return m.fail(ctx, a, err)
	}

	convertedPath := ConvertedPath(img.SourceTable, img.SourceID, stamp, a.id)
	if _, err := m.storage.Upload(ctx, convertedPath, converted, adapter.UploadOptions{ContentType: codec.ContentType}); err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Wrap(apperr.KindStorage, op, "gagal mengunggah hasil konversi", err)
		}
		return m.fail(ctx, a, err)
	}
	convertedURL := m.storage.PublicURL(convertedPath)

	if err := m.content.UpdateImageURL(ctx, kind, img.SourceID, convertedURL); err != nil {
		m.enqueueOrphan(ctx, convertedPath, "pembaruan baris sumber gagal")
		return m.fail(ctx, a, apperr.Wrap(apperr.KindPersistence, op, fmt.Sprintf("gagal memperbarui %s.%s", kind.Table(), kind.Field()), err))
	}

	convertedSize := int64(len(converted))
	savings := Savings(originalSize, convertedSize)
	finished := m.now()
	rec := &model.ConversionRecord{
		ID:                a.id,
		SourceTable:       img.SourceTable,
		SourceID:          img.SourceID,
		OriginalURL:       img.URL,
		ConvertedURL:      &convertedURL,
		BackupURL:         a.backupURL,
		OriginalFormat:    a.format,
		OriginalSize:      &originalSize,
		ConvertedSize:     &convertedSize,
		SavingsPercentage: &savings,
		Status:            model.StatusConverted,
		ConvertedAt:       &finished,
		CreatedAt:         finished,
	}
	if err := m.records.Create(ctx, rec); err != nil {
		cause := apperr.Wrap(apperr.KindPersistence, op, "gagal mencatat riwayat konversi", err)
		if rbErr := m.content.UpdateImageURL(context.WithoutCancel(ctx), kind, img.SourceID, img.URL); rbErr != nil {
			slog.Error("KRITIS: Baris sumber menunjuk hasil konversi tanpa riwayat", "image_id", img.ID, "converted_url", convertedURL, "error", rbErr)
		} else {
			m.enqueueOrphan(ctx, convertedPath, "pencatatan riwayat konversi gagal")
		}
		return m.fail(ctx, a, cause)
	}

	if m.metrics != nil {
		if err := m.metrics.RecordConversion(ctx, finished, originalSize-convertedSize, savings); err != nil {
			slog.Warn("Gagal memperbarui metrik penyimpanan", "image_id", img.ID, "error", err)
		}
	}

	slog.Debug("Konversi selesai", "image_id", img.ID, "old_size", originalSize, "new_size", convertedSize, "savings", savings)
	return rec, nil
}

func (m *Manager) fail(ctx context.Context, a attempt, cause error) (*model.ConversionRecord, error) {
	msg := apperr.Message(cause)
	now := m.now()
	rec := &model.ConversionRecord{
		ID:             a.id,
		SourceTable:    a.img.SourceTable,
		SourceID:       a.img.SourceID,
		OriginalURL:    a.img.URL,
		BackupURL:      a.backupURL,
		OriginalFormat: a.format,
		OriginalSize:   a.originalSize,
		Status:         model.StatusFailed,
		ErrorMessage:   &msg,
		CreatedAt:      now,
	}

	slog.Warn("Konversi gagal", "image_id", a.img.ID, "kind", apperr.KindOf(cause), "error", cause)
	if err := m.records.Create(ctx, rec); err != nil {
		slog.Error("KRITIS: Gagal mencatat konversi yang gagal", "image_id", a.img.ID, "error", err)
		return nil, cause
	}
	return rec, cause
}

func (m *Manager) enqueueOrphan(ctx context.Context, path, reason string) {
	if m.orphans == nil {
		slog.Warn("Blob hasil konversi tidak direferensikan", "path", path, "reason", reason)
		return
	}
	if err := m.orphans.Enqueue(context.WithoutCancel(ctx), path, reason); err != nil {
		slog.Error("Gagal memasukkan blob yatim ke antrean", "path", path, "error", err)
	}
}

// Retry deletes a failed record and converts its image again.
func (m *Manager) Retry(ctx context.Context, id string, opts codec.Options) (*model.ConversionRecord, error) {
	const op = "registry.Retry"

	rec, err := m.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.StatusFailed {
		return nil, apperr.New(apperr.KindPolicy, op, fmt.Sprintf("hanya konversi gagal yang dapat diulang (status: %s)", rec.Status))
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	format := rec.OriginalFormat
	img := model.ImageRecord{
		URL:         rec.OriginalURL,
		SourceTable: rec.SourceTable,
		SourceID:    rec.SourceID,
		Format:      format,
		IsWebP:      format == "webp",
	}
	kind, err := checkImage(op, img)
	if err != nil {
		return nil, err
	}
	img.ID = source.RecordID(kind, rec.SourceID)

	release, err := m.lock(ctx, op, guardKey(rec.SourceTable, rec.SourceID))
	if err != nil {
		return nil, err
	}
	defer release()

	if err := m.records.Delete(ctx, rec.ID); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "gagal menghapus catatan konversi gagal", err)
	}

	return m.convert(ctx, kind, img, opts)
}

// Restore points the source row back at the backup of a converted record.
func (m *Manager) Restore(ctx context.Context, id string) (*model.ConversionRecord, error) {
	const op = "registry.Restore"

	rec, err := m.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.StatusConverted {
		return nil, apperr.New(apperr.KindPolicy, op, fmt.Sprintf("hanya konversi berhasil yang dapat dipulihkan (status: %s)", rec.Status))
	}
	if rec.BackupURL == nil || *rec.BackupURL == "" {
		return nil, apperr.New(apperr.KindPolicy, op, "backup tidak tersedia untuk konversi ini")
	}
	kind, err := source.ParseKind(rec.SourceTable)
	if err != nil {
		return nil, err
	}

	release, err := m.lock(ctx, op, guardKey(rec.SourceTable, rec.SourceID))
	if err != nil {
		return nil, err
	}
	defer release()

	if err := m.content.UpdateImageURL(ctx, kind, rec.SourceID, *rec.BackupURL); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, fmt.Sprintf("gagal memulihkan %s.%s", kind.Table(), kind.Field()), err)
	}
	if err := m.records.UpdateStatus(ctx, rec.ID, model.StatusRestored); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "gagal memperbarui status konversi", err)
	}

	rec.Status = model.StatusRestored
	slog.Info("Gambar dipulihkan dari backup", "conversion_id", rec.ID, "source_table", rec.SourceTable, "source_id", rec.SourceID)
	return rec, nil
}
