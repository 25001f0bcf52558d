package cli

import (
	"context"
	"fmt"
	"io"

	coinapp "github.com/famcoin/backend/internal/application/coin"
	"github.com/famcoin/backend/internal/domain/coin"
	"github.com/spf13/cobra"
)

func newCoinTypeCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "coin-type",
		Aliases: []string{"ct"},
		Short:   "Manage the coin types of a family",
	}
	cmd.AddCommand(
		newCoinTypeCreateCommand(r),
		newCoinTypeGetCommand(r),
		newCoinTypeListCommand(r),
		newCoinTypeUpdateCommand(r),
		newCoinTypeDeleteCommand(r),
	)
	return cmd
}

func printCoinType(w io.Writer, ct *coin.CoinType) {
	status := "active"
	if !ct.Active {
		status = "inactive"
	}
	fmt.Fprintf(w, "%s  %-20s %3d min  %2d/day  %s\n", ct.ID, ct.Name, ct.DurationMinutes, ct.DailyDistribution, status)
}

func newCoinTypeCreateCommand(r *runner) *cobra.Command {
	var (
		familyID string
		input    coinapp.CreateCoinTypeInput
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new coin type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				ct, err := app.CoinTypes.Create(ctx, familyID, input)
				if err != nil {
					return err
				}
				return out.Success(ct, func(w io.Writer) { printCoinType(w, ct) })
			})
		},
	}
	cmd.Flags().StringVar(&familyID, "family", "", "family id")
	cmd.Flags().StringVar(&input.Name, "name", "", "display name")
	cmd.Flags().IntVar(&input.DurationMinutes, "duration", 0, "screen time minutes one coin buys")
	cmd.Flags().Int64Var(&input.DailyDistribution, "daily", 0, "coins granted every day")
	return cmd
}

func newCoinTypeGetCommand(r *runner) *cobra.Command {
	var familyID string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one coin type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				ct, err := app.CoinTypes.Get(ctx, familyID, args[0])
				if err != nil {
					return err
				}
				return out.Success(ct, func(w io.Writer) { printCoinType(w, ct) })
			})
		},
	}
	cmd.Flags().StringVar(&familyID, "family", "", "family id")
	return cmd
}

func newCoinTypeListCommand(r *runner) *cobra.Command {
	var familyID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the coin types of a family",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				types, err := app.CoinTypes.List(ctx, familyID)
				if err != nil {
					return err
				}
				return out.Success(types, func(w io.Writer) {
					if len(types) == 0 {
						fmt.Fprintln(w, "No coin types")
						return
					}
					for _, ct := range types {
						printCoinType(w, ct)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&familyID, "family", "", "family id")
	return cmd
}

func newCoinTypeUpdateCommand(r *runner) *cobra.Command {
	var (
		familyID string
		name     string
		duration int
		daily    int64
		active   bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change selected fields of a coin type",
		Long: `Change selected fields of a coin type. Only the flags given are written.

Example:
  coinctl coin-type update 0190... --family f1 --daily 0 --active=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input coinapp.UpdateCoinTypeInput
			flags := cmd.Flags()
			if flags.Changed("name") {
				input.Name = &name
			}
			if flags.Changed("duration") {
				input.DurationMinutes = &duration
			}
			if flags.Changed("daily") {
				input.DailyDistribution = &daily
			}
			if flags.Changed("active") {
				input.Active = &active
			}
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				ct, err := app.CoinTypes.Update(ctx, familyID, args[0], input)
				if err != nil {
					return err
				}
				return out.Success(ct, func(w io.Writer) { printCoinType(w, ct) })
			})
		},
	}
	cmd.Flags().StringVar(&familyID, "family", "", "family id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().IntVar(&duration, "duration", 0, "screen time minutes one coin buys")
	cmd.Flags().Int64Var(&daily, "daily", 0, "coins granted every day")
	cmd.Flags().BoolVar(&active, "active", true, "whether the coin type is in use")
	return cmd
}

func newCoinTypeDeleteCommand(r *runner) *cobra.Command {
	var familyID string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a coin type; deleting an unknown id succeeds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if err := app.CoinTypes.Discard(ctx, familyID, args[0]); err != nil {
					return err
				}
				deleted := map[string]string{"id": args[0]}
				return out.Success(deleted, func(w io.Writer) { fmt.Fprintf(w, "Deleted %s\n", args[0]) })
			})
		},
	}
	cmd.Flags().StringVar(&familyID, "family", "", "family id")
	return cmd
}
