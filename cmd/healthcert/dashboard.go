package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newDashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the compliance overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			o, err := a.dashboard().Overview(cmd.Context())
			if err != nil {
				return err
			}
			return printStructured(cmd.OutOrStdout(), o)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "breakdown",
		Short: "Split current certificates by expiry urgency",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			b, err := a.dashboard().StatusBreakdown(cmd.Context())
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), b,
				[]string{"valid", "expiring", "urgent", "expired"},
				[][]string{{fmt.Sprint(b.Valid), fmt.Sprint(b.Expiring), fmt.Sprint(b.Urgent), fmt.Sprint(b.Expired)}})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "departments",
		Short: "Show certificate coverage per department",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			cov, err := a.dashboard().DepartmentCoverage(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(cov))
			for _, d := range cov {
				rows = append(rows, []string{d.Department, fmt.Sprint(d.Active), fmt.Sprint(d.Covered),
					strconv.FormatFloat(d.CoverageRate, 'f', 2, 64) + "%"})
			}
			return printRows(cmd.OutOrStdout(), cov, []string{"department", "active", "covered", "coverage"}, rows)
		},
	})

	return cmd
}
