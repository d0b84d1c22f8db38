package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrtools/healthcert/pkg/jobs"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsTriggerCmd())
	cmd.AddCommand(newJobsCancelCmd())

	return cmd
}

func newJobsListCmd() *cobra.Command {
	var (
		filter    jobs.JobListFilter
		pageSize  int
		pageToken string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List background jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			records, next, total, err := jobs.NewJobStore(a.db).List(cmd.Context(), filter, pageSize, pageToken)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(records))
			for _, j := range records {
				rows = append(rows, []string{
					j.ID, j.Task, j.Trigger, string(j.State), strconv.Itoa(j.AttemptCount),
					j.RequestedAt.Local().Format(time.DateTime), truncate(j.Message+j.LastError, 48),
				})
			}
			if err := printRows(cmd.OutOrStdout(), records,
				[]string{"id", "task", "trigger", "state", "attempts", "requested", "message"}, rows); err != nil {
				return err
			}
			if outputFlag == "table" {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d", len(records), total)
				if next != "" {
					fmt.Fprintf(cmd.OutOrStdout(), ", next page: --page-token %s", next)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Task, "task", "", "Filter by task: employee-sync, cert-reminder")
	cmd.Flags().StringVar(&filter.State, "state", "", "Filter by state")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Page size (max 100)")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Token from a previous page")

	return cmd
}

func newJobsTriggerCmd() *cobra.Command {
	var requestedBy string

	cmd := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Queue a task for the workers",
		Long:      "Queue a task for the workers. A queued or running job of the same task is reused.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskEmployeeSync, jobs.TaskCertReminder},
		RunE: func(cmd *cobra.Command, args []string) error {
			task := args[0]
			if task != jobs.TaskEmployeeSync && task != jobs.TaskCertReminder {
				return fmt.Errorf("unknown task %q", task)
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			job, err := jobs.Trigger(cmd.Context(), jobs.NewJobStore(a.db), task, requestedBy)
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), job,
				[]string{"id", "task", "state"}, [][]string{{job.ID, job.Task, string(job.State)}})
		},
	}

	cmd.Flags().StringVar(&requestedBy, "requested-by", "cli", "Who requested the job")

	return cmd
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			return jobs.NewJobStore(a.db).Cancel(cmd.Context(), args[0])
		},
	}
}
