package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"webpsync/internal/server"
	"webpsync/internal/service"
	"webpsync/internal/service/compression"
)

const janitorBatchSize = 200

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the admin API and the scheduled jobs",
		Example: `  # Serve on HTTP_ADDR with the schedule checked every minute
  webpsync serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(app *App) error {
				c, err := newCron(ctx, app)
				if err != nil {
					return err
				}
				c.Start()
				defer c.Stop()

				srv := server.NewServer(app.Config.HTTPAddr, serverDeps(app))
				serverErr := make(chan error, 1)
				go func() {
					serverErr <- srv.Start()
				}()

				select {
				case <-ctx.Done():
					slog.Info("Sinyal berhenti diterima, menghentikan server...")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						slog.Error("Server gagal berhenti dengan baik", "error", err)
						return err
					}
					slog.Info("Server berhenti.")
					return nil
				case err := <-serverErr:
					return err
				}
			})
		},
	}
}

func serverDeps(app *App) server.Deps {
	deps := server.Deps{
		Scanner:     app.Scanner,
		Registry:    app.Registry,
		Schedules:   app.Schedules,
		Metrics:     app.Metrics,
		Encoder:     app.Codec,
		Presets:     app.Presets,
		Defaults:    app.Config.CodecDefaults(),
		Concurrency: app.Config.BatchConcurrency,
	}
	if app.Storage.Mode() == "local" {
		deps.Files = app.Storage
	}
	return deps
}

func schedulerDeps(app *App) compression.SchedulerDeps {
	return compression.SchedulerDeps{
		Schedules:        app.Schedules,
		Scanner:          app.Scanner,
		Converter:        app.Registry,
		Metrics:          app.Metrics,
		Notifier:         app.Notifier,
		WatermarkText:    app.Config.WatermarkText,
		WatermarkOpacity: app.Config.WatermarkOpacity,
		DryRun:           app.Config.DryRun,
	}
}

func newCron(ctx context.Context, app *App) (*cron.Cron, error) {
	cfg := app.Config
	c := cron.New()

	slog.Info("Aplikasi dimulai dengan konfigurasi dari environment variables",
		slog.Group("schedules",
			slog.String("conversion_tick", cfg.SchedulerTick),
			slog.String("janitor", cfg.JanitorSchedule),
			slog.String("orphan_queue", cfg.OrphanSchedule),
		),
		slog.String("log_level", cfg.LogLevel),
	)

	if cfg.SchedulerTick != "" {
		deps := schedulerDeps(app)
		_, err := c.AddFunc(cfg.SchedulerTick, func() {
			jobCtx, jobCancel := context.WithCancel(ctx)
			defer jobCancel()
			if _, err := compression.RunScheduler(jobCtx, deps, app.Schedules.Now()); err != nil {
				slog.Error("Eksekusi jadwal konversi gagal", "error", err)
			}
		})
		if err != nil {
			slog.Error("Tidak dapat menambahkan cron job konversi", "error", err)
			return nil, err
		}
	}

	if cfg.JanitorSchedule != "" {
		slog.Info("Menjadwalkan Janitor runner", "schedule", cfg.JanitorSchedule)
		_, err := c.AddFunc(cfg.JanitorSchedule, func() {
			slog.Info("Cron job janitor terpicu.")
			service.RunJanitor(ctx, app.Conversions, cfg.JanitorThreshold, janitorBatchSize, time.Now().UTC())
		})
		if err != nil {
			slog.Error("Tidak dapat menambahkan cron job janitor", "error", err)
			return nil, err
		}
	}

	if cfg.OrphanSchedule != "" {
		slog.Info("Menjadwalkan proses antrean blob yatim", "schedule", cfg.OrphanSchedule)
		_, err := c.AddFunc(cfg.OrphanSchedule, func() {
			slog.Info("Cron job antrean blob yatim terpicu.")
			service.ProcessOrphanQueue(ctx, app.Orphans, app.Storage, cfg.OrphanBatchSize, cfg.OrphanMaxRetries)
		})
		if err != nil {
			slog.Error("Tidak dapat menambahkan cron job antrean blob yatim", "error", err)
			return nil, err
		}
	}

	return c, nil
}
