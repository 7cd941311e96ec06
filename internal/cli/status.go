package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"earnings-tracker/internal/models"
	"earnings-tracker/pkg/utils"
)

func addStatusCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatusCmd(app))
}

func newStatusCmd(app *App) *cobra.Command {
	var checkKey bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored data, sync progress and consistency issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(false); err != nil {
				return err
			}
			output := NewOutput(cmd)

			if checkKey && !app.Service.HasProvider() {
				output.Warning("No API key configured; skipping key check")
			}

			status, err := app.Service.Status(cmd.Context(), checkKey)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(status)
			}
			printStatus(output, status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkKey, "check-key", false, "check the API key against the provider (uses one call)")
	return cmd
}

func printStatus(output *Output, s *models.SystemStatus) {
	output.Bold("Stored data")
	output.Printf("  Companies:      %s\n", utils.FormatCount(int64(s.Counts.Companies)))
	output.Printf("  Earnings:       %s\n", utils.FormatCount(int64(s.Counts.Earnings)))
	output.Printf("  Price bars:     %s\n", utils.FormatCount(int64(s.Counts.Prices)))
	output.Println()

	output.Bold("Provider")
	output.Printf("  Last call:      %s", FormatDateTime(s.LastProviderAt))
	if !s.LastProviderAt.IsZero() {
		output.Printf(" (%s ago)", FormatDuration(time.Since(s.LastProviderAt)))
	}
	output.Println()
	circuit := s.QuotaCircuit
	if circuit != "CLOSED" {
		circuit = output.Yellow(circuit)
	}
	output.Printf("  Quota circuit:  %s\n", circuit)
	if s.ProviderHealthy != nil {
		health := output.Green("ok")
		if !*s.ProviderHealthy {
			health = output.Red("failed")
		}
		output.Printf("  API key:        %s\n", health)
	}
	output.Printf("  US market:      %s", output.MarketStatus(s.MarketStatus))
	if s.MarketStatus != models.MarketOpen {
		output.Printf(" (opens %s)", utils.GetNextMarketOpen(time.Now()).Format("Mon Jan 2 15:04 MST"))
	}
	output.Println()
	output.Println()

	if run := s.LastSyncRun; run != nil {
		output.Bold("Last sync run")
		output.Printf("  ID:             %s\n", run.ID)
		output.Printf("  Status:         %s\n", run.Status)
		output.Printf("  Progress:       %d/%d (%d succeeded, %d cached, %d failed)\n",
			run.Processed, run.Total, run.Succeeded, run.Cached, len(run.Failures))
		if run.LastSymbol != "" {
			output.Printf("  Last symbol:    %s\n", run.LastSymbol)
		}
		output.Printf("  Started:        %s\n", FormatDateTime(run.StartedAt))
		output.Printf("  Updated:        %s\n", FormatDateTime(run.UpdatedAt))
		output.Println()
	}

	if len(s.Issues) == 0 {
		output.Success("✓ No consistency issues")
		return
	}
	output.Bold("Consistency issues")
	table := NewTable(output, "SYMBOL", "ISSUE", "COUNT")
	for _, issue := range s.Issues {
		count := ""
		if issue.Count > 0 {
			count = fmt.Sprintf("%d", issue.Count)
		}
		table.AddRow(issue.Symbol, issue.Issue, count)
	}
	table.Render()
}
