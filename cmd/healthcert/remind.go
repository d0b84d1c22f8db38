package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrtools/healthcert/pkg/reminder"
)

const dateLayout = "2006-01-02"

func newRemindCmd() *cobra.Command {
	var (
		day    string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send expiry reminders due today",
		Long: `Send reminders for current approved certificates expiring on one of the
configured reminder days, plus weekly reminders for expired ones. Use --dry-run
to list the notices without delivering them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			today, err := parseDay(day)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			planner := a.planner(reminder.LogNotifier{Logger: a.logger})
			if dryRun {
				notices, err := planner.Plan(cmd.Context(), today)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(notices))
				for _, n := range notices {
					rows = append(rows, []string{
						string(n.Kind), n.SfUserID, truncate(n.EmployeeName, 24), n.CertNumber,
						n.ExpiryDate.Format(dateLayout), strconv.Itoa(n.DaysLeft), strconv.FormatBool(n.MissingContact),
					})
				}
				return printRows(cmd.OutOrStdout(), notices,
					[]string{"kind", "sf user id", "name", "certificate", "expires", "days left", "no mobile"}, rows)
			}

			res, err := planner.Run(cmd.Context(), today)
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), res,
				[]string{"enabled", "planned", "sent", "failed", "no mobile"},
				[][]string{{strconv.FormatBool(res.Enabled), strconv.Itoa(res.Planned), strconv.Itoa(res.Sent),
					strconv.Itoa(res.Failed), strconv.Itoa(res.MissingContact)}})
		},
	}

	cmd.Flags().StringVar(&day, "date", "", "Day to plan for, YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List notices without sending them")

	return cmd
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", s, err)
	}
	return t, nil
}
