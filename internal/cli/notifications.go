package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lalithlochan/birthdays/internal/db"
)

// NotificationsOptions holds flags for the notifications command.
type NotificationsOptions struct {
	*RootOptions
	Status string
	Year   int
	Limit  int
}

// NewNotificationsCommand creates the notifications command.
func NewNotificationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NotificationsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List birthday notification records",
		Long: `List birthday notification records, newest first.

Examples:
  birthdayctl notifications --status FAILED
  birthdayctl notifications --year 2024 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifications(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (PENDING|SENT|FAILED)")
	cmd.Flags().IntVar(&opts.Year, "year", 0, "filter by year")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum records to list (0 for all)")

	return cmd
}

func runNotifications(opts *NotificationsOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	switch opts.Status {
	case "", db.StatusPending, db.StatusSent, db.StatusFailed:
	default:
		err := WrapExitError(ExitCommandError, "invalid --status", fmt.Errorf("%q is not one of PENDING, SENT, FAILED", opts.Status))
		out.Error(err)
		return err
	}

	a, err := openApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		out.Error(err)
		return err
	}
	defer a.Close()

	records, err := a.Store.ListNotifications(cmd.Context(), db.NotificationFilter{
		Status: opts.Status,
		Year:   opts.Year,
		Limit:  opts.Limit,
	})
	if err != nil {
		err = WrapExitError(ExitCommandError, "failed to list notifications", err)
		out.Error(err)
		return err
	}

	return out.Success(records, func(w io.Writer) {
		if len(records) == 0 {
			fmt.Fprintln(w, "No notifications found")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSER\tYEAR\tSTATUS\tRETRIES\tLAST ATTEMPT\tLAST ERROR")
		for _, n := range records {
			lastAttempt, lastError := "-", "-"
			if n.LastAttemptAt != nil {
				lastAttempt = n.LastAttemptAt.UTC().Format(time.RFC3339)
			}
			if n.LastError != nil {
				lastError = *n.LastError
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
				n.ID, n.UserID, n.Year, n.Status, n.RetryCount, lastAttempt, lastError)
		}
		_ = tw.Flush()
	})
}
