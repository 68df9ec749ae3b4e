package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery pass",
		Long: `Create this year's PENDING notification for every user whose
birthday is today in UTC. Running it again on the same day changes nothing.

Examples:
  birthdayctl discover
  birthdayctl discover --at 2024-05-30T00:00:00Z --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(rootOpts, cmd)
		},
	}
}

func runDiscover(opts *RootOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	a, err := openApp(cmd.Context(), opts)
	if err != nil {
		out.Error(err)
		return err
	}
	defer a.Close()

	res, err := a.Discoverer.Run(cmd.Context())
	if err != nil {
		err = WrapExitError(ExitFailure, "discovery pass failed", err)
		out.Error(err)
		return err
	}

	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Discovery at %s: scanned=%d matched=%d created=%d existing=%d failed=%d\n",
			a.Clock.Now().UTC().Format("2006-01-02"), res.Scanned, res.Matched, res.Created, res.Existing, res.Failed)
	})
}

// NewDeliverCommand creates the deliver command.
func NewDeliverCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deliver",
		Short: "Run one delivery pass",
		Long: `Attempt every due PENDING notification whose user is at 09:00 local
time right now. Failed attempts are retried on a later pass.

Examples:
  birthdayctl deliver
  birthdayctl deliver --at 2024-05-30T09:00:00+07:00`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliver(rootOpts, cmd)
		},
	}
}

func runDeliver(opts *RootOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	a, err := openApp(cmd.Context(), opts)
	if err != nil {
		out.Error(err)
		return err
	}
	defer a.Close()

	res, err := a.Worker.RunOnce(cmd.Context())
	if err != nil {
		err = WrapExitError(ExitFailure, "delivery pass failed", err)
		out.Error(err)
		return err
	}

	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Delivery via %s: due=%d sent=%d retrying=%d failed=%d skipped=%d errors=%d\n",
			a.Sender.Name(), res.Due, res.Sent, res.Retrying, res.Failed, res.Skipped, res.Errors)
	})
}
