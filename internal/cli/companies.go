package cli

import (
	"github.com/spf13/cobra"

	"earnings-tracker/internal/models"
	"earnings-tracker/internal/store"
)

func addCompanyCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCompaniesCmd(app))
}

func newCompaniesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "companies",
		Aliases: []string{"company"},
		Short:   "Manage the tracked companies",
	}

	cmd.AddCommand(newCompaniesListCmd(app))
	cmd.AddCommand(newCompaniesAddCmd(app))
	cmd.AddCommand(newCompaniesRemoveCmd(app))
	cmd.AddCommand(newCompaniesSeedCmd(app))
	cmd.AddCommand(newCompaniesSearchCmd(app))
	return cmd
}

func newCompaniesListCmd(app *App) *cobra.Command {
	var exchange string
	var sp500 bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(false); err != nil {
				return err
			}

			filter := store.CompanyFilter{Limit: limit}
			if exchange != "" {
				filter.Exchange = models.ParseExchange(exchange)
			}
			if cmd.Flags().Changed("sp500") {
				filter.SP500 = &sp500
			}

			companies, err := app.Service.ListCompanies(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printCompanies(NewOutput(cmd), companies)
		},
	}

	cmd.Flags().StringVar(&exchange, "exchange", "", "only companies listed on this exchange (NYSE, NASDAQ)")
	cmd.Flags().BoolVar(&sp500, "sp500", false, "only S&P 500 members (--sp500=false for non-members)")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many companies (0 = all)")
	return cmd
}

func newCompaniesAddCmd(app *App) *cobra.Command {
	var name string
	var sp500 bool

	cmd := &cobra.Command{
		Use:   "add <symbol>",
		Short: "Track a company",
		Long: `Track a company. Without --name and with an API key configured, the
company overview is fetched from the provider to fill in name, exchange and sector.`,
		Example: `  earnings companies add SHOP
  earnings companies add BRK.B --name "Berkshire Hathaway" --sp500`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(false); err != nil {
				return err
			}
			output := NewOutput(cmd)

			company, err := app.Service.AddCompany(cmd.Context(), args[0], name, sp500)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(company)
			}
			output.Success("✓ Tracking %s (%s)", company.Symbol, company.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().BoolVar(&sp500, "sp500", false, "mark as an S&P 500 member")
	return cmd
}

func newCompaniesRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <symbol>",
		Aliases: []string{"rm"},
		Short:   "Stop tracking a company and delete its stored data",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(false); err != nil {
				return err
			}
			output := NewOutput(cmd)

			symbol := models.NormalizeSymbol(args[0])
			if err := app.Service.RemoveCompany(cmd.Context(), symbol); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"removed": symbol})
			}
			output.Success("✓ Removed %s", symbol)
			return nil
		},
	}
}

func newCompaniesSeedCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Register the default watch list of large caps",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(false); err != nil {
				return err
			}
			output := NewOutput(cmd)

			n, err := app.Service.Seed(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"seeded": n})
			}
			output.Success("✓ Registered %d companies", n)
			output.Dim("Run 'earnings sync' to fetch their earnings and prices")
			return nil
		},
	}
}

func newCompaniesSearchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "search <query>",
		Short:   "Search tracked companies by symbol or name",
		Example: "  earnings companies search apple",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(false); err != nil {
				return err
			}

			companies, err := app.Service.SearchCompanies(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCompanies(NewOutput(cmd), companies)
		},
	}
}

func printCompanies(output *Output, companies []models.Company) error {
	if output.IsJSON() {
		if companies == nil {
			companies = []models.Company{}
		}
		return output.JSON(companies)
	}
	if len(companies) == 0 {
		output.Warning("No companies found")
		return nil
	}

	table := NewTable(output, "SYMBOL", "NAME", "EXCHANGE", "SECTOR", "S&P 500")
	for _, c := range companies {
		member := ""
		if c.IsSP500 {
			member = "yes"
		}
		table.AddRow(c.Symbol, TruncateString(c.Name, 32), string(c.Exchange), c.Sector, member)
	}
	table.Render()
	return nil
}
