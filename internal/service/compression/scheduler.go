package compression

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"webpsync/internal/codec"
	"webpsync/internal/model"
	"webpsync/internal/notify"
	"webpsync/internal/registry"
	"webpsync/internal/schedule"
	"webpsync/internal/source"
)

type ImageScanner interface {
	Scan(ctx context.Context) ([]model.ImageRecord, error)
}

type BatchConverter interface {
	BatchConvertAll(ctx context.Context, records []model.ImageRecord, opts codec.Options, onProgress func(registry.BatchProgress)) (registry.BatchReport, error)
}

type InventoryRecorder interface {
	RecordInventory(ctx context.Context, at time.Time, total, webp int) error
}

type SchedulerDeps struct {
	Schedules        *schedule.Store
	Scanner          ImageScanner
	Converter        BatchConverter
	Metrics          InventoryRecorder
	Notifier         notify.Notifier
	WatermarkText    string
	WatermarkOpacity float64
	DryRun           bool
}

type RunStats struct {
	Candidates  int     `json:"candidates"`
	Processed   int     `json:"processed"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	SavedBytes  int64   `json:"saved_bytes"`
	DurationMs  int64   `json:"duration_ms"`
	CPUPercent  float64 `json:"cpu_percent"`
	PeakRAMByte uint64  `json:"peak_ram_bytes"`
	DryRun      bool    `json:"dry_run,omitempty"`
}

func monitorPeakRAM(p *process.Process, done <-chan struct{}) (peakRAM uint64) {
	var currentPeakRAM uint64
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			peakRAM = currentPeakRAM
			return
		case <-ticker.C:
			if p == nil {
				continue
			}
			memInfo, err := p.MemoryInfo()
			if err == nil && memInfo.RSS > currentPeakRAM {
				currentPeakRAM = memInfo.RSS
			}
		}
	}
}

func cpuSeconds(p *process.Process) float64 {
	if p == nil {
		return 0
	}
	t, err := p.Times()
	if err != nil {
		return 0
	}
	return t.User + t.System
}

func cpuPercent(duration time.Duration, before, after float64) float64 {
	if duration.Seconds() <= 0 {
		return 0
	}
	return (after - before) / duration.Seconds() * 100.0
}

func logResourceUsage(stats RunStats) {
	slog.Info("Metrik Kinerja Proses Selesai",
		"total_duration", (time.Duration(stats.DurationMs) * time.Millisecond).String(),
		"cpu_utilization_percent", fmt.Sprintf("%.2f%%", stats.CPUPercent),
		"peak_ram_mb", fmt.Sprintf("%.2f MB", float64(stats.PeakRAMByte)/1024/1024),
	)
}

// RunScheduler performs one unattended conversion run when the stored
// schedule is due at now. It returns nil stats when nothing was due.
func RunScheduler(ctx context.Context, deps SchedulerDeps, now time.Time) (*RunStats, error) {
	sch, err := deps.Schedules.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !schedule.Due(sch, now) {
		slog.Debug("Jadwal konversi belum jatuh tempo.", "now", now.Format(time.RFC3339))
		return nil, nil
	}

	slog.Info("Scheduler dimulai.", "max_images", sch.MaxImagesPerRun, "quality", sch.Quality, "dry_run", deps.DryRun)

	records, err := deps.Scanner.Scan(ctx)
	if err != nil {
		slog.Error("Gagal memindai gambar", "error", err)
		if sch.NotifyOnError {
			publish(ctx, deps.Notifier, notify.Event{Type: notify.EventConversionFailed, Message: err.Error(), OccurredAt: now})
		}
		return nil, err
	}

	total, webp := source.Count(records)
	if deps.Metrics != nil {
		if err := deps.Metrics.RecordInventory(ctx, now, total, webp); err != nil {
			slog.Warn("Gagal mencatat inventaris gambar", "error", err)
		}
	}

	candidates := source.ApplyFilter(records, source.FilterOther)
	if len(candidates) > sch.MaxImagesPerRun {
		candidates = candidates[:sch.MaxImagesPerRun]
	}
	stats := RunStats{Candidates: len(candidates), Skipped: webp, DryRun: deps.DryRun}

	if len(candidates) == 0 {
		slog.Info("Tidak ada gambar non-WebP yang perlu dikonversi.", "total", total)
	}

	if deps.DryRun {
		for _, c := range candidates {
			slog.Info("Mode Tes: kandidat konversi", "image_id", c.ID, "url", c.URL, "format", c.Format)
		}
		return &stats, nil
	}

	if len(candidates) > 0 {
		report, err := runMeasured(ctx, deps, sch, candidates, &stats)
		if err != nil {
			return nil, err
		}
		notifyRun(ctx, deps.Notifier, sch, report, stats, now)
	}

	if err := deps.Schedules.MarkRun(ctx, sch, now, stats); err != nil {
		slog.Error("Gagal menyimpan hasil eksekusi jadwal", "error", err)
		return &stats, err
	}

	slog.Info("Scheduler selesai.", "succeeded", stats.Succeeded, "failed", stats.Failed)
	return &stats, nil
}

func runMeasured(ctx context.Context, deps SchedulerDeps, sch *model.ConversionSchedule, candidates []model.ImageRecord, stats *RunStats) (registry.BatchReport, error) {
	startTime := time.Now()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		slog.Warn("Gagal mendapatkan info proses untuk metrik", "error", err)
		p = nil
	}
	cpuBefore := cpuSeconds(p)

	doneMonitoring := make(chan struct{})
	peakCh := make(chan uint64, 1)
	go func() {
		peakCh <- monitorPeakRAM(p, doneMonitoring)
	}()

	opts := schedule.CodecOptions(sch, deps.WatermarkText, deps.WatermarkOpacity)
	report, err := deps.Converter.BatchConvertAll(ctx, candidates, opts, func(bp registry.BatchProgress) {
		slog.Debug("Konversi terjadwal", "current", bp.Current, "total", bp.Total, "image_id", bp.ImageID)
	})

	close(doneMonitoring)
	peak := <-peakCh
	duration := time.Since(startTime)

	if err != nil {
		return report, err
	}

	stats.Processed = report.Processed
	stats.Succeeded = report.Succeeded
	stats.Failed = report.Failed
	stats.SavedBytes = report.SavedBytes
	stats.DurationMs = duration.Milliseconds()
	stats.CPUPercent = cpuPercent(duration, cpuBefore, cpuSeconds(p))
	stats.PeakRAMByte = peak
	logResourceUsage(*stats)
	return report, nil
}

func notifyRun(ctx context.Context, n notify.Notifier, sch *model.ConversionSchedule, report registry.BatchReport, stats RunStats, now time.Time) {
	if sch.NotifyOnError {
		for _, item := range report.Items {
			if item.Error == "" {
				continue
			}
			e := notify.Event{Type: notify.EventConversionFailed, Message: item.Error, OccurredAt: now}
			if item.Record != nil {
				e.SourceTable = item.Record.SourceTable
				e.SourceID = item.Record.SourceID
			}
			publish(ctx, n, e)
		}
	}

	if sch.NotifyOnCompletion {
		publish(ctx, n, notify.Event{
			Type:       notify.EventRunCompleted,
			Processed:  stats.Processed,
			Succeeded:  stats.Succeeded,
			Failed:     stats.Failed,
			SavedBytes: stats.SavedBytes,
			OccurredAt: now,
		})
	}
}

func publish(ctx context.Context, n notify.Notifier, e notify.Event) {
	if n == nil {
		return
	}
	if err := n.Publish(ctx, e); err != nil {
		slog.Warn("Gagal mengirim notifikasi", "type", e.Type, "error", err)
	}
}
