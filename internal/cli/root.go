// Package cli implements birthdayctl, an operator tool that runs single
// discovery or delivery passes and inspects notification records.
package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/lalithlochan/birthdays/internal/app"
	"github.com/lalithlochan/birthdays/internal/birthday"
	"github.com/lalithlochan/birthdays/internal/config"
	"github.com/lalithlochan/birthdays/internal/observ"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	At      string // RFC3339 instant to run at instead of the current time

	// LoadConfig defaults to config.Load
	LoadConfig func() (*config.Config, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for birthdayctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "birthdayctl",
		Short: "Operate the birthday greeting service",
		Long:  "Run discovery and delivery passes by hand and inspect birthday notification records.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid --format", fmt.Errorf("%q is not one of %v", opts.Format, ValidFormats))
			}
			if opts.At != "" {
				if _, err := time.Parse(time.RFC3339, opts.At); err != nil {
					return WrapExitError(ExitCommandError, "invalid --at", err)
				}
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.At, "at", "", "run as if the current time were this RFC3339 instant")

	cmd.AddCommand(NewDiscoverCommand(opts))
	cmd.AddCommand(NewDeliverCommand(opts))
	cmd.AddCommand(NewNotificationsCommand(opts))

	return cmd
}

// openApp builds the service from configuration. Logs stay quiet unless
// --verbose is set.
func openApp(ctx context.Context, opts *RootOptions) (*app.App, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger, err := observ.NewLogger(cfg.Env, level)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create logger", err)
	}

	var clock birthday.Clock
	if opts.At != "" {
		at, _ := time.Parse(time.RFC3339, opts.At)
		clock = birthday.NewFixedClock(at)
	}

	a, err := app.New(ctx, cfg, logger, clock)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start service", err)
	}
	return a, nil
}
