package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"webpsync/internal/database"
	"webpsync/internal/metrics"
	"webpsync/internal/model"
	"webpsync/internal/registry"
	"webpsync/internal/schedule"
	"webpsync/internal/source"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newImagesCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "images",
		Short: "List images referenced by the content tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := source.ParseFilter(filter)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(app *App) error {
				records, err := app.Scanner.Scan(cmd.Context())
				if err != nil {
					return err
				}
				return writeImages(cmd.OutOrStdout(), records, f)
			})
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "Filter images: all, webp or other")
	return cmd
}

func writeImages(w io.Writer, records []model.ImageRecord, f source.Filter) error {
	total, webp := source.Count(records)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFORMAT\tWEBP\tURL")
	for _, r := range source.ApplyFilter(records, f) {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", r.ID, r.Format, r.IsWebP, r.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\ntotal=%d webp=%d other=%d\n", total, webp, total-webp)
	return err
}

func newConvertAllCmd() *cobra.Command {
	var preset string
	var limit int

	cmd := &cobra.Command{
		Use:   "convert-all",
		Short: "Convert every non-WebP image one after another",
		Example: `  # Convert with the listing preset, at most 20 images
  webpsync convert-all --preset listing --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(app *App) error {
				opts, err := app.options(preset)
				if err != nil {
					return err
				}

				records, err := app.Scanner.Scan(ctx)
				if err != nil {
					return err
				}
				records = source.ApplyFilter(records, source.FilterOther)
				if limit > 0 && len(records) > limit {
					records = records[:limit]
				}

				out := cmd.ErrOrStderr()
				report, err := app.Registry.BatchConvertAll(ctx, records, opts, func(p registry.BatchProgress) {
					fmt.Fprintf(out, "[%d/%d] %s\n", p.Current, p.Total, p.ImageID)
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().StringVarP(&preset, "preset", "p", "", "Quality/dimension preset name")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of images to convert (0 = all)")
	return cmd
}

func newRetryCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "retry <conversion-id>",
		Short: "Retry a failed conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				opts, err := app.options(preset)
				if err != nil {
					return err
				}
				rec, err := app.Registry.Retry(cmd.Context(), args[0], opts)
				if rec != nil {
					if perr := printJSON(cmd.OutOrStdout(), rec); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&preset, "preset", "p", "", "Quality/dimension preset name")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <conversion-id>",
		Short: "Point the source row back at the backup of a conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				rec, err := app.Registry.Restore(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show or change the unattended conversion policy",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				sch, err := app.Schedules.Get(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sch)
			})
		},
	}

	cmd.AddCommand(show, newScheduleSetCmd())
	return cmd
}

type scheduleFlags struct {
	scheduleTime   string
	days           []int
	active         bool
	maxImages      int
	quality        int
	width          int
	height         int
	watermark      bool
	position       string
	notifyComplete bool
	notifyError    bool
}

func newScheduleSetCmd() *cobra.Command {
	var f scheduleFlags

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update only the given schedule fields",
		Example: `  # Run every weekday at 02:30 with at most 100 images
  webpsync schedule set --time 02:30 --days 1,2,3,4,5 --max-images 100 --active`,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := buildPatch(cmd, f)
			return withApp(cmd.Context(), func(app *App) error {
				sch, err := app.Schedules.Update(cmd.Context(), patch)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sch)
			})
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.scheduleTime, "time", "", "Time of day, HH:MM")
	fl.IntSliceVar(&f.days, "days", nil, "Days of week, 0=Sunday .. 6=Saturday")
	fl.BoolVar(&f.active, "active", false, "Enable unattended runs")
	fl.IntVar(&f.maxImages, "max-images", 0, "Maximum images per run")
	fl.IntVar(&f.quality, "quality", 0, "WebP quality (50-100)")
	fl.IntVar(&f.width, "width", 0, "Target width, 0 with --height 0 keeps the original size")
	fl.IntVar(&f.height, "height", 0, "Target height")
	fl.BoolVar(&f.watermark, "watermark", false, "Apply the watermark")
	fl.StringVar(&f.position, "position", "", "Watermark position")
	fl.BoolVar(&f.notifyComplete, "notify-complete", false, "Publish an event after each run")
	fl.BoolVar(&f.notifyError, "notify-error", false, "Publish an event for each failed conversion")
	return cmd
}

func buildPatch(cmd *cobra.Command, f scheduleFlags) schedule.Patch {
	var p schedule.Patch
	changed := cmd.Flags().Changed

	if changed("time") {
		p.ScheduleTime = &f.scheduleTime
	}
	if changed("days") {
		p.DaysOfWeek = &f.days
	}
	if changed("active") {
		p.IsActive = &f.active
	}
	if changed("max-images") {
		p.MaxImagesPerRun = &f.maxImages
	}
	if changed("quality") {
		p.Quality = &f.quality
	}
	if changed("width") {
		p.TargetWidth = &f.width
	}
	if changed("height") {
		p.TargetHeight = &f.height
	}
	if changed("watermark") {
		p.ApplyWatermark = &f.watermark
	}
	if changed("position") {
		p.WatermarkPosition = &f.position
	}
	if changed("notify-complete") {
		p.NotifyOnCompletion = &f.notifyComplete
	}
	if changed("notify-error") {
		p.NotifyOnError = &f.notifyError
	}
	return p
}

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect daily storage metrics",
	}

	var out string
	var days int
	export := &cobra.Command{
		Use:     "export",
		Short:   "Write daily storage metrics to a Parquet file",
		Example: `  webpsync metrics export --out metrics.parquet --days 90`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *App) error {
				rows, err := app.Metrics.LastDays(cmd.Context(), time.Now().UTC(), days)
				if err != nil {
					return err
				}
				if err := metrics.ExportParquet(out, rows); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d baris metrik ditulis ke %s\n", len(rows), out)
				return nil
			})
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "storage_metrics.parquet", "Output file")
	export.Flags().IntVarP(&days, "days", "d", 30, "Number of days to export")

	cmd.AddCommand(export)
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.ConnectDB(cfg.DSN, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() {
				if sqlDB, err := db.DB(); err == nil {
					sqlDB.Close()
				}
			}()
			return database.Migrate(db)
		},
	}
}
