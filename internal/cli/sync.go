package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"earnings-tracker/internal/models"
	"earnings-tracker/internal/performance"
	"earnings-tracker/internal/service"
)

func addSyncCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSyncCmd(app))
}

func newSyncCmd(app *App) *cobra.Command {
	var force, restart bool

	cmd := &cobra.Command{
		Use:   "sync [symbols...]",
		Short: "Fetch earnings and prices from the provider",
		Long: `Fetch earnings and daily prices for the given symbols, or for every
registered company when none are given.

A full sync persists its progress after each symbol. If it is interrupted,
or stops because the provider quota is exhausted, running it again resumes
where it left off. Use --restart to start over.`,
		Example: `  earnings sync
  earnings sync AAPL MSFT --force
  earnings sync --restart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(true); err != nil {
				return err
			}
			output := NewOutput(cmd)

			opts := service.SyncOptions{Symbols: args, Restart: restart, Force: force}
			if !output.IsJSON() {
				opts.Progress = func(run *models.SyncRun, result models.SymbolSyncResult) {
					printSymbolResult(output, run, result)
				}
			}

			run, err := app.Service.SyncAll(cmd.Context(), opts)
			mem := performance.MemoryStats()
			app.Logger.Debug().
				Str("heap", performance.FormatBytes(mem.HeapAlloc)).
				Int("goroutines", mem.Goroutines).
				Msg("Sync finished")
			if run != nil {
				if output.IsJSON() {
					if jerr := output.JSON(run); jerr != nil {
						return jerr
					}
				} else {
					printRunSummary(output, run)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "refetch symbols whose stored data is still fresh")
	cmd.Flags().BoolVar(&restart, "restart", false, "ignore an interrupted run and start over")
	return cmd
}

func printSymbolResult(output *Output, run *models.SyncRun, result models.SymbolSyncResult) {
	prefix := output.DimText(fmt.Sprintf("[%d/%d]", run.Processed, run.Total))
	switch {
	case result.Error != "":
		output.Printf("%s %-6s %s %s\n", prefix, result.Symbol, output.Red("failed"), result.Error)
	case result.SkippedFresh:
		output.Printf("%s %-6s %s\n", prefix, result.Symbol, output.DimText("fresh"))
	case result.FromCache:
		output.Printf("%s %-6s %s %d earnings, %d prices\n", prefix, result.Symbol, output.Yellow("cached"), result.Earnings, result.Prices)
	default:
		output.Printf("%s %-6s %s %d earnings, %d prices\n", prefix, result.Symbol, output.Green("synced"), result.Earnings, result.Prices)
	}
}

func printRunSummary(output *Output, run *models.SyncRun) {
	output.Println()
	switch run.Status {
	case models.SyncCompleted:
		output.Success("✓ Sync completed: %d of %d symbols succeeded", run.Succeeded, run.Total)
	default:
		output.Warning("Sync %s after %d of %d symbols; run 'earnings sync' to resume", run.Status, run.Processed, run.Total)
	}
	if run.Cached > 0 {
		output.Dim("%d symbols served from cached provider data", run.Cached)
	}
	if len(run.Failures) == 0 {
		return
	}

	output.Println()
	output.Bold("Failed symbols")
	table := NewTable(output, "SYMBOL", "ATTEMPTS", "ERROR")
	for _, f := range run.Failures {
		table.AddRow(f.Symbol, fmt.Sprintf("%d", f.Attempts), TruncateString(f.Error, 80))
	}
	table.Render()
}
