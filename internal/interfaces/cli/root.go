// Package cli is the coinctl command line: a thin presentation layer over the coin services.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// AppLoader builds the services for one command invocation
type AppLoader func(ctx context.Context, opts *RootOptions) (*App, error)

// NewRootCommand creates the root command. load is called once per executed subcommand.
func NewRootCommand(load AppLoader) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "coinctl",
		Short: "Family coin ledger",
		Long:  "Manage coin types, balances and daily coin distribution for a family.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./config.toml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	r := &runner{opts: opts, load: load}
	cmd.AddCommand(newCoinCommand(r))
	cmd.AddCommand(newCoinTypeCommand(r))
	cmd.AddCommand(newDistributeCommand(r))
	cmd.AddCommand(newScheduleCommand(r))

	return cmd
}

// runner opens the App around a command body and renders its failure
type runner struct {
	opts *RootOptions
	load AppLoader
}

func (r *runner) run(cmd *cobra.Command, body func(ctx context.Context, app *App, out *OutputFormatter) error) error {
	out := &OutputFormatter{
		Format:    r.opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := r.load(ctx, r.opts)
	if err != nil {
		_ = out.Error(err)
		return WrapExitError(ExitCommandError, "startup failed", err)
	}
	defer func() {
		if cerr := app.Close(context.Background()); cerr != nil {
			app.Logger.Warn("Shutdown incomplete", zap.Error(cerr))
		}
	}()

	if err := body(ctx, app, out); err != nil {
		_ = out.Error(err)
		return WrapExitError(exitCodeFor(err), cmd.CommandPath()+" failed", err)
	}
	return nil
}
