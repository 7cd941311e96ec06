package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"earnings-tracker/internal/scheduler"
	"earnings-tracker/internal/server"
)

const shutdownTimeout = 30 * time.Second

func addServeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	var port int
	var schedule string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and refresh data on a schedule",
		Long: `Serve the JSON API over HTTP. When an API key is configured, every
registered company is refreshed on the cron schedule (seconds field first;
prefix with CRON_TZ=<zone> to pin a time zone). Use --refresh-schedule=off
to disable refreshing.`,
		Example: `  earnings serve
  earnings serve --port 8080 --refresh-schedule "CRON_TZ=America/New_York 0 30 17 * * MON-FRI"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(false); err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = app.Config.Server.Port
			}
			if !cmd.Flags().Changed("refresh-schedule") {
				schedule = app.Config.Server.RefreshSchedule
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sched := scheduler.New(app.Logger)
			switch {
			case schedule == "" || schedule == "off":
				app.Logger.Info().Msg("Scheduled refresh disabled")
			case !app.Service.HasProvider():
				app.Logger.Warn().Msg("No API key configured; scheduled refresh disabled")
			default:
				job := scheduler.NewRefreshJob(scheduler.RefreshConfig{
					Context: ctx,
					Syncer:  app.Service,
					Log:     app.Logger,
				})
				if err := sched.AddJob(schedule, job); err != nil {
					return err
				}
			}
			sched.Start()
			// cancel before Stop so a running refresh aborts and Stop can return
			defer sched.Stop()
			defer cancel()

			srv := server.New(server.Config{
				Port:    port,
				Log:     app.Logger,
				Service: app.Service,
			})

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 5000, "HTTP port")
	cmd.Flags().StringVar(&schedule, "refresh-schedule", "", "cron schedule for refreshing all companies, or 'off'")
	return cmd
}
