package cli

import (
	"context"
	"fmt"
	"io"

	coinapp "github.com/famcoin/backend/internal/application/coin"
	"github.com/spf13/cobra"
)

func newDistributeCommand(r *runner) *cobra.Command {
	var (
		familyID string
		userID   string
		date     string
		timezone string
	)
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Grant a user's daily coins",
		Long: `Grant a user's daily coins for every active coin type with a daily distribution.
Each user and calendar day is distributed at most once. Without --date the user's
current date in --timezone is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				var (
					result *coinapp.DistributionResult
					err    error
				)
				if date == "" {
					result, err = app.Distribution.DistributeToday(ctx, familyID, userID, timezone)
				} else {
					result, err = app.Distribution.DistributeDaily(ctx, familyID, userID, date, timezone)
				}
				if err != nil {
					return err
				}
				return out.Success(result, func(w io.Writer) {
					fmt.Fprintf(w, "Distributed %d coins to %s for %s\n",
						result.Record.Total(), userID, result.Record.SummaryDate)
					for _, c := range result.Balances {
						fmt.Fprintf(w, "  %s: %d\n", c.CoinTypeID, c.Amount)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&familyID, "family", "", "family id")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&date, "date", "", "summary date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA time zone of the user")
	return cmd
}
