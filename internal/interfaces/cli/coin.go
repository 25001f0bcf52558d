package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/spf13/cobra"
)

func newCoinCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coin",
		Short: "Read and adjust coin balances",
	}
	cmd.AddCommand(
		newBalanceCommand(r),
		newOpenCommand(r),
		newAdjustCommand(r, "increase", "Add coins to a balance", coin.TransactionTypeStampReward, false),
		newAdjustCommand(r, "decrease", "Remove coins from a balance", coin.TransactionTypeUse, true),
		newSpendCommand(r),
		newHistoryCommand(r),
	)
	return cmd
}

func printCoin(c *coin.Coin) func(io.Writer) {
	return func(w io.Writer) {
		fmt.Fprintf(w, "%s: %d coins (updated %s)\n", c.Owner(), c.Amount, c.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func newBalanceCommand(r *runner) *cobra.Command {
	var owner ownerFlags
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the current balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				c, err := app.Coins.Balance(ctx, owner.owner())
				if err != nil {
					return err
				}
				return out.Success(c, printCoin(c))
			})
		},
	}
	owner.register(cmd)
	return cmd
}

func newOpenCommand(r *runner) *cobra.Command {
	var (
		owner  ownerFlags
		amount int64
	)
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Create a balance with an opening amount",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				c, err := app.Coins.OpenBalance(ctx, owner.owner(), amount)
				if err != nil {
					return err
				}
				return out.Success(c, printCoin(c))
			})
		},
	}
	owner.register(cmd)
	cmd.Flags().Int64Var(&amount, "amount", 0, "opening amount")
	return cmd
}

func newAdjustCommand(r *runner, use, short string, defaultKind coin.TransactionType, decrease bool) *cobra.Command {
	var (
		owner  ownerFlags
		detail detailFlags
		amount int64
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `. The sign of --amount is ignored.

Example:
  coinctl coin ` + use + ` --user u1 --family f1 --coin-type tv --amount 3 --kind stamp_reward --stamp-card card-7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				d, err := detail.detail()
				if err != nil {
					return err
				}
				var c *coin.Coin
				if decrease {
					c, err = app.Coins.DecreaseBy(ctx, owner.owner(), amount, d)
				} else {
					c, err = app.Coins.IncreaseBy(ctx, owner.owner(), amount, d)
				}
				if err != nil {
					return err
				}
				return out.Success(c, printCoin(c))
			})
		},
	}
	owner.register(cmd)
	detail.register(cmd, defaultKind)
	cmd.Flags().Int64Var(&amount, "amount", 0, "number of coins")
	return cmd
}

func newSpendCommand(r *runner) *cobra.Command {
	var (
		owner   ownerFlags
		amount  int64
		session string
	)
	cmd := &cobra.Command{
		Use:   "spend",
		Short: "Consume coins for a screen time session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				c, err := app.Coins.Spend(ctx, owner.owner(), amount, session)
				if err != nil {
					return err
				}
				return out.Success(c, printCoin(c))
			})
		},
	}
	owner.register(cmd)
	cmd.Flags().Int64Var(&amount, "amount", 1, "number of coins")
	cmd.Flags().StringVar(&session, "session", "", "timer session id")
	return cmd
}

func newHistoryCommand(r *runner) *cobra.Command {
	var owner ownerFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the transactions of a balance, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				txs, err := app.Coins.History(ctx, owner.owner())
				if err != nil {
					return err
				}
				return out.Success(txs, func(w io.Writer) {
					if len(txs) == 0 {
						fmt.Fprintln(w, "No transactions")
						return
					}
					for _, tx := range txs {
						fmt.Fprintf(w, "%s  %-18s %+6d  -> %d\n",
							tx.CreatedAt.Format("2006-01-02 15:04:05"), tx.TransactionType(), tx.Amount, tx.Balance)
					}
				})
			})
		},
	}
	owner.register(cmd)
	return cmd
}
