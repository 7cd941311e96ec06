package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"earnings-tracker/internal/analysis"
	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/models"
	"earnings-tracker/internal/service"
)

// displayPlaces is the rounding applied to JSON output.
const displayPlaces = 2

func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newEffectsCmd(app))
	rootCmd.AddCommand(newStatsCmd(app))
	rootCmd.AddCommand(newLeaderboardCmd(app))
	rootCmd.AddCommand(newCalculatorCmd(app))
}

// rangeFlags adds --start and --end, a 1-based window over the newest-first
// event list.
func rangeFlags(cmd *cobra.Command, r *models.Range) {
	cmd.Flags().IntVar(&r.Start, "start", 0, "first event to include, 1 = most recent (0 = from the newest)")
	cmd.Flags().IntVar(&r.End, "end", 0, "last event to include (0 = through the oldest)")
}

func symbolArg(args []string) (string, error) {
	return service.ValidateSymbol(args[0])
}

func newEffectsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "effects <symbol>",
		Short:   "Show the price move around each earnings announcement",
		Example: "  earnings effects AAPL",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolArg(args)
			if err != nil {
				return err
			}
			if err := app.open(false); err != nil {
				return err
			}
			output := NewOutput(cmd)

			report, err := app.Service.AlignedEffects(cmd.Context(), symbol)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				for i := range report.Effects {
					report.Effects[i] = analysis.RoundEffect(report.Effects[i], displayPlaces)
				}
				return output.JSON(report)
			}

			output.Bold("Earnings effects - %s", symbol)
			table := NewTable(output, "DATE", "TIMING", "BEFORE", "", "AFTER", "", "CHANGE", "STATUS")
			for _, e := range report.Effects {
				table.AddRow(
					FormatDate(e.Date),
					string(e.Timing),
					FormatDate(e.BeforeDate), FormatPrice(e.Before),
					FormatDate(e.AfterDate), FormatPrice(e.After),
					output.Change(e.PercentChange),
					output.EffectStatus(e.Status),
				)
			}
			table.Render()

			r := report.Report
			output.Println()
			output.Dim("%d events: %d complete, %d partial, %d missing", r.Total, r.Complete, r.Partial, r.Missing)
			return nil
		},
	}
}

func newStatsCmd(app *App) *cobra.Command {
	var rng models.Range

	cmd := &cobra.Command{
		Use:   "stats <symbol>",
		Short: "Summarize the earnings moves of a symbol",
		Example: `  earnings stats AAPL
  earnings stats AAPL --start 1 --end 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolArg(args)
			if err != nil {
				return err
			}
			if err := app.open(false); err != nil {
				return err
			}
			output := NewOutput(cmd)

			stats, err := app.Service.AggregateStats(cmd.Context(), symbol, rng)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(analysis.Round(stats, displayPlaces))
			}
			printStats(output, stats)
			return nil
		},
	}

	rangeFlags(cmd, &rng)
	return cmd
}

func printStats(output *Output, s models.AggregateStats) {
	output.Bold("Earnings statistics - %s", s.Symbol)
	output.Printf("  Events analyzed:   %d (%d with a valid move)\n", s.EventsAnalyzed, s.ValidMoves)
	output.Printf("  Up / down / flat:  %d / %d / %d\n", s.UpMoves, s.DownMoves, s.FlatMoves)
	output.Printf("  Win rate:          %s\n", FormatRate(s.WinRate))
	output.Printf("  Average move:      %s\n", output.Change(s.AvgMove))
	output.Printf("  Average up move:   %s\n", output.Change(s.AvgUpMove))
	output.Printf("  Average down move: %s\n", output.Change(s.AvgDownMove))
	output.Printf("  Best move:         %s\n", output.Change(s.BestMove))
	output.Printf("  Worst move:        %s\n", output.Change(s.WorstMove))
	output.Printf("  Last quarter:      %s\n", output.Change(s.LastQuarterMove))
	output.Printf("  Volatility:        %s\n", FormatRate(s.Volatility))
	output.Printf("  Streaks:           %d up, %d down\n", s.MaxPositiveStreak, s.MaxNegativeStreak)
	output.Printf("  Recovery:          %d of %d drops (%s), avg %s quarters\n",
		s.RecoveredDrops, s.Drops, FormatRate(s.RecoveryRate), formatPeriods(s.AvgRecoveryPeriods))
}

func formatPeriods(d decimal.NullDecimal) string {
	if !d.Valid {
		return notAvailable
	}
	return d.Decimal.StringFixed(1)
}

func newLeaderboardCmd(app *App) *cobra.Command {
	var rng models.Range
	var sortBy string
	var limit int

	keys := make([]string, len(analysis.SortKeys))
	for i, k := range analysis.SortKeys {
		keys[i] = string(k)
	}

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank companies by their earnings behavior",
		Example: `  earnings leaderboard
  earnings leaderboard --sort win_rate --start 1 --end 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := analysis.ParseSortKey(sortBy)
			if err != nil {
				return apperrors.NewValidationError("sort", sortBy, err.Error())
			}
			if err := app.open(false); err != nil {
				return err
			}
			output := NewOutput(cmd)

			entries, err := app.Service.Leaderboard(cmd.Context(), rng, key)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if output.IsJSON() {
				for i := range entries {
					entries[i].Stats = analysis.Round(entries[i].Stats, displayPlaces)
				}
				return output.JSON(entries)
			}

			output.Bold("Leaderboard by %s", key)
			table := NewTable(output, "#", "SYMBOL", "NAME", "EVENTS", "WIN RATE", "AVG MOVE", "LAST QTR", "RECOVERY")
			for _, e := range entries {
				table.AddRow(
					fmt.Sprintf("%d", e.Rank),
					e.Company.Symbol,
					TruncateString(e.Company.Name, 24),
					fmt.Sprintf("%d", e.Stats.EventsAnalyzed),
					FormatRate(e.Stats.WinRate),
					output.Change(e.Stats.AvgMove),
					output.Change(e.Stats.LastQuarterMove),
					FormatRate(e.Stats.RecoveryRate),
				)
			}
			table.Render()
			return nil
		},
	}

	rangeFlags(cmd, &rng)
	cmd.Flags().StringVar(&sortBy, "sort", string(analysis.SortRecoveryRate), "sort key: "+strings.Join(keys, ", "))
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many rows (0 = all)")
	return cmd
}

func newCalculatorCmd(app *App) *cobra.Command {
	var rng models.Range
	var amountStr string
	var limit int

	cmd := &cobra.Command{
		Use:   "calculator",
		Short: "Compare trading around earnings with buy-and-hold",
		Long: `Replay an investment through each company's earnings: buy at the close
before every announcement and sell at the close after it, compounding, and
compare the result with holding from the first event to the last.`,
		Example: `  earnings calculator --amount 10000
  earnings calculator --amount 5000 --start 1 --end 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(amountStr)
			if err != nil {
				return apperrors.NewValidationError("amount", amountStr, "must be a number")
			}
			if err := app.open(false); err != nil {
				return err
			}
			output := NewOutput(cmd)

			results, err := app.Service.Calculator(cmd.Context(), amount, rng)
			if err != nil {
				return err
			}
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			if output.IsJSON() {
				for i := range results {
					results[i] = analysis.RoundResult(results[i], displayPlaces)
				}
				return output.JSON(results)
			}

			output.Bold("Investing %s around earnings", FormatCurrency(amount))
			table := NewTable(output, "SYMBOL", "TRADES", "TRADE RETURN", "TRADE %", "HOLD RETURN", "HOLD %", "PERIOD")
			for _, r := range results {
				trade := output.Money(r.TradeReturn)
				if r.BeatsHolding {
					trade += " ★"
				}
				table.AddRow(
					r.Symbol,
					fmt.Sprintf("%d", r.Trades),
					trade,
					output.Change(r.TradePercent),
					output.Money(r.HoldReturn),
					output.Change(r.HoldPercent),
					FormatDate(r.FirstDate)+" → "+FormatDate(r.LastDate),
				)
			}
			table.Render()
			output.Println()
			output.Dim("★ trading around earnings beat holding")
			return nil
		},
	}

	rangeFlags(cmd, &rng)
	cmd.Flags().StringVar(&amountStr, "amount", "1000", "amount invested per company")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many rows (0 = all)")
	return cmd
}
