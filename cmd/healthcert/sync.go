package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrtools/healthcert/pkg/directory"
)

func newSyncCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile employees and departments with the HR roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			engine, err := a.engine()
			if err != nil {
				return err
			}
			return runSync(cmd, engine, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Run even if the sync flag says a pass is in progress")

	cmd.AddCommand(newSyncStatusCmd())
	cmd.AddCommand(newSyncResetCmd())
	cmd.AddCommand(newSyncImportCmd())
	cmd.AddCommand(newDepartmentsCmd())

	return cmd
}

func runSync(cmd *cobra.Command, engine *directory.Engine, force bool) error {
	if !force {
		if err := engine.Guard(cmd.Context()); err != nil {
			return fmt.Errorf("%w (use --force or 'healthcert sync reset' if no pass is running)", err)
		}
	}
	res, err := engine.Sync(cmd.Context())
	if err != nil {
		return err
	}
	return printRows(cmd.OutOrStdout(), res,
		[]string{"run", "added", "updated", "deactivated", "skipped", "departments", "duration"},
		[][]string{{
			res.RunID,
			strconv.Itoa(res.Added),
			strconv.Itoa(res.Updated),
			strconv.Itoa(res.Deactivated),
			strconv.Itoa(res.Skipped),
			strconv.Itoa(res.Departments),
			(time.Duration(res.DurationMs) * time.Millisecond).String(),
		}})
}

func newSyncResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear a sync flag left set by a pass that did not finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			engine := directory.NewEngine(a.db, nil, a.flag, directory.WithLogger(a.logger))
			if err := engine.ResetSyncFlag(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sync flag cleared")
			return nil
		},
	}
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a reconciliation pass is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			inProgress, err := a.flag.InProgress(cmd.Context())
			if err != nil {
				return err
			}
			status := map[string]bool{"inProgress": inProgress}
			return printRows(cmd.OutOrStdout(), status,
				[]string{"in progress"}, [][]string{{strconv.FormatBool(inProgress)}})
		},
	}
}

func newSyncImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <sf-user-id>",
		Short: "Create or refresh one employee from the roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			engine, err := a.engine()
			if err != nil {
				return err
			}
			emp, err := engine.ImportEmployee(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), emp,
				[]string{"id", "sf user id", "name", "department", "active"},
				[][]string{{fmt.Sprint(emp.ID), emp.SfUserID, emp.Name, emp.DepartName, strconv.FormatBool(emp.IsActive)}})
		},
	}
}

func newDepartmentsCmd() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "departments",
		Short: "Show the department tree derived from the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			// Reads only touch the local mirror.
			engine := a.engineWith(nil)
			tree, err := engine.DepartmentTree(cmd.Context(), activeOnly)
			if err != nil {
				return err
			}
			var rows [][]string
			var walk func(nodes []*directory.DepartmentNode, depth int)
			walk = func(nodes []*directory.DepartmentNode, depth int) {
				for _, n := range nodes {
					rows = append(rows, []string{strings.Repeat("  ", depth) + n.Name, strconv.Itoa(n.EmployeeCount), strconv.FormatBool(n.IsActive)})
					walk(n.Children, depth+1)
				}
			}
			walk(tree, 0)
			return printRows(cmd.OutOrStdout(), tree, []string{"department", "employees", "active"}, rows)
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only show active departments")

	return cmd
}
