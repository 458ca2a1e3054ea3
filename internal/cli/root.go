package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webpsync",
		Short: "WebP conversion and storage sync for the listing back-office",
		Long: `webpsync converts listing and gallery images to WebP, keeps a backup of
every original in object storage and records each attempt so it can be
retried or restored later.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		newServeCmd(),
		newImagesCmd(),
		newConvertAllCmd(),
		newRetryCmd(),
		newRestoreCmd(),
		newScheduleCmd(),
		newMetricsCmd(),
		newMigrateCmd(),
	)

	return cmd
}
