package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-profiles/internal/app"
	"github.com/mrcode/nightscout-profiles/internal/notifications"
)

var serveSources sourceFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll Nightscout and report therapy changes",
	Long: `Poll Nightscout for profiles and treatments on the refresh interval, keep the
resolution engine current and log a notification whenever the active profile or the
effective basal rate changes.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveSources.profilesFile, "profiles-file", "", "Read profiles from an export file instead of the API")
	serveCmd.Flags().StringVar(&serveSources.treatmentsFile, "treatments-file", "", "Read treatments from an export file (requires --profiles-file)")
}

func serve(ctx context.Context) error {
	source, err := newSource(settings, serveSources)
	if err != nil {
		return err
	}
	engine, err := newEngine(settings)
	if err != nil {
		return err
	}
	defer engine.Close()

	manager := notifications.NewManager(notifications.LogNotifier{Logger: slog.Default()}, settings.Notifications.Repeat)
	svc := app.NewService(settings, source, engine, manager, slog.Default())

	slog.Info("starting",
		slog.String("nightscout", settings.Nightscout.URL),
		slog.Duration("interval", settings.Refresh.Interval),
	)
	return svc.Run(ctx)
}
