package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrtools/healthcert/pkg/certificate"
	"github.com/hrtools/healthcert/pkg/directory"
)

func newCertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Review and submit health certificates",
	}

	cmd.AddCommand(newCertListCmd())
	cmd.AddCommand(newCertLockCmd())
	cmd.AddCommand(newCertUnlockCmd())
	cmd.AddCommand(newCertAuditCmd())
	cmd.AddCommand(newCertSubmitCmd())

	return cmd
}

// adminFlags identify the reviewing admin.
type adminFlags struct {
	id   uint
	name string
}

func (f *adminFlags) register(cmd *cobra.Command) {
	cmd.Flags().UintVar(&f.id, "admin-id", 0, "Reviewing admin id (required)")
	cmd.Flags().StringVar(&f.name, "admin-name", "", "Reviewing admin display name")
	_ = cmd.MarkFlagRequired("admin-id")
}

func parseCertID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid certificate id %q", s)
	}
	return uint(id), nil
}

func certRows(certs []certificate.Certificate) [][]string {
	rows := make([][]string, 0, len(certs))
	for _, c := range certs {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(c.ID), 10), c.CertNumber, truncate(c.EmployeeName, 24), string(c.Status),
			c.ExpiryDate.Format(dateLayout), strconv.FormatBool(c.IsCurrent), strconv.Itoa(c.Version),
		})
	}
	return rows
}

var certHeaders = []string{"id", "number", "employee", "status", "expires", "current", "version"}

func newCertListCmd() *cobra.Command {
	var (
		status   string
		name     string
		number   string
		current  bool
		pageNum  int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List certificates",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			filter := certificate.Filter{
				Status:       certificate.Status(status),
				EmployeeName: name,
				CertNumber:   number,
				CurrentOnly:  current,
			}
			rows, total, err := a.manager().List(cmd.Context(), filter, certificate.Page{Number: pageNum, Size: pageSize})
			if err != nil {
				return err
			}
			if err := printRows(cmd.OutOrStdout(), rows, certHeaders, certRows(rows)); err != nil {
				return err
			}
			if outputFlag == "table" {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d\n", len(rows), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status: draft, pending, approved, rejected")
	cmd.Flags().StringVar(&name, "name", "", "Filter by employee name substring")
	cmd.Flags().StringVar(&number, "number", "", "Filter by certificate number")
	cmd.Flags().BoolVar(&current, "current", false, "Only current certificates")
	cmd.Flags().IntVar(&pageNum, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Page size (max 100)")

	return cmd
}

func newCertLockCmd() *cobra.Command {
	var admin adminFlags

	cmd := &cobra.Command{
		Use:   "lock <certificate-id>",
		Short: "Reserve a certificate for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCertID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			lock, err := a.manager().Lock(cmd.Context(), id, admin.id, admin.name)
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), lock,
				[]string{"certificate", "admin", "expires"},
				[][]string{{strconv.FormatUint(uint64(lock.CertID), 10), lock.AdminName, lock.ExpiresAt.Format(time.RFC3339)}})
		},
	}
	admin.register(cmd)

	return cmd
}

func newCertUnlockCmd() *cobra.Command {
	var admin adminFlags

	cmd := &cobra.Command{
		Use:   "unlock <certificate-id>",
		Short: "Release a review lock held by the admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCertID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			return a.manager().Unlock(cmd.Context(), id, admin.id)
		},
	}
	admin.register(cmd)

	return cmd
}

func newCertAuditCmd() *cobra.Command {
	var (
		admin  adminFlags
		action string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "audit <certificate-id>",
		Short: "Approve or reject a locked certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCertID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			cert, err := a.manager().Audit(cmd.Context(), id, certificate.Action(action), reason, admin.id, admin.name)
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), cert, certHeaders, certRows([]certificate.Certificate{*cert}))
		},
	}
	admin.register(cmd)
	cmd.Flags().StringVar(&action, "action", "", "approve or reject (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reject reason (required when rejecting)")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

func newCertSubmitCmd() *cobra.Command {
	var (
		employeeID  uint
		submittedBy string
		data        certificate.Submission
		issue       string
		expiry      string
		age         int
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a certificate on behalf of an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			if issue != "" {
				t, err := time.Parse(dateLayout, issue)
				if err != nil {
					return fmt.Errorf("invalid --issue-date: %w", err)
				}
				data.IssueDate = &t
			}
			if expiry != "" {
				t, err := time.Parse(dateLayout, expiry)
				if err != nil {
					return fmt.Errorf("invalid --expiry-date: %w", err)
				}
				data.ExpiryDate = &t
			}
			if cmd.Flags().Changed("age") {
				data.Age = &age
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if data.EmployeeName == "" {
				emp, err := directory.NewEmployeeStore(a.db).GetByID(cmd.Context(), employeeID)
				if err != nil {
					return err
				}
				if emp != nil {
					data.EmployeeName = emp.Name
				}
			}
			cert, err := a.manager().SubmitCertificate(cmd.Context(), data, employeeID, submittedBy)
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), cert, certHeaders, certRows([]certificate.Certificate{*cert}))
		},
	}

	cmd.Flags().UintVar(&employeeID, "employee-id", 0, "Owning employee id (required)")
	cmd.Flags().StringVar(&submittedBy, "submitted-by", "cli", "Who submitted the certificate")
	cmd.Flags().StringVar(&data.CertNumber, "number", "", "Certificate number")
	cmd.Flags().StringVar(&data.EmployeeName, "employee-name", "", "Name printed on the certificate (default: the employee's name)")
	cmd.Flags().StringVar(&data.Gender, "gender", "", "Gender printed on the certificate")
	cmd.Flags().IntVar(&age, "age", 0, "Age printed on the certificate")
	cmd.Flags().StringVar(&data.IDCard, "id-card", "", "Identity card number")
	cmd.Flags().StringVar(&data.ImagePath, "image", "", "Stored image path")
	cmd.Flags().StringVar(&data.Category, "category", "", "Certificate category")
	cmd.Flags().StringVar(&data.IssuingAuthority, "authority", "", "Issuing authority")
	cmd.Flags().StringVar(&issue, "issue-date", "", "Issue date, YYYY-MM-DD")
	cmd.Flags().StringVar(&expiry, "expiry-date", "", "Expiry date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("employee-id")

	return cmd
}
