// Package reminder plans and delivers certificate expiry reminders.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hrtools/healthcert/pkg/certificate"
	"github.com/hrtools/healthcert/pkg/directory"
	"github.com/hrtools/healthcert/pkg/metrics"
	"github.com/hrtools/healthcert/pkg/sysconfig"
)

// Setting keys read from system_configs.
const (
	KeyDays    = "reminder.days"
	KeyEnabled = "reminder.enabled"
)

// ExpiredCadenceDays is how often an expired certificate is re-announced.
const ExpiredCadenceDays = 7

// DefaultDays are the days-before-expiry on which reminders go out.
var DefaultDays = []int{30, 15, 7, 3, 1}

// Result summarizes one reminder pass.
type Result struct {
	Enabled        bool `json:"enabled"`
	Planned        int  `json:"planned"`
	Sent           int  `json:"sent"`
	Failed         int  `json:"failed"`
	MissingContact int  `json:"missingContact"`
}

// Planner selects certificates due for a reminder and hands them to a Notifier.
type Planner struct {
	employees *directory.EmployeeStore
	certs     *certificate.CertificateStore
	settings  *sysconfig.Store
	notifier  Notifier
	days      []int
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Option customizes a Planner.
type Option func(*Planner)

// WithDays sets the fallback reminder days used when no setting is stored.
func WithDays(days []int) Option {
	return func(p *Planner) {
		if len(days) > 0 {
			p.days = days
		}
	}
}

// WithSettings lets stored settings override the configured days and disable
// reminders altogether.
func WithSettings(s *sysconfig.Store) Option {
	return func(p *Planner) { p.settings = s }
}

// WithMetrics sets the collectors the planner reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithLogger sets the planner logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPlanner creates a reminder planner. A nil notifier logs notices.
func NewPlanner(db *gorm.DB, notifier Notifier, opts ...Option) *Planner {
	p := &Planner{
		employees: directory.NewEmployeeStore(db),
		certs:     certificate.NewCertificateStore(db),
		notifier:  notifier,
		days:      DefaultDays,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "reminder"))
	if p.notifier == nil {
		p.notifier = LogNotifier{Logger: p.logger}
	}
	return p
}

func (p *Planner) enabled(ctx context.Context) (bool, error) {
	if p.settings == nil {
		return true, nil
	}
	return p.settings.GetBool(ctx, KeyEnabled, true)
}

func (p *Planner) reminderDays(ctx context.Context) (mapset.Set[int], error) {
	days := p.days
	if p.settings != nil {
		var err error
		if days, err = p.settings.GetIntList(ctx, KeyDays, p.days); err != nil {
			return nil, err
		}
	}
	return mapset.NewThreadUnsafeSet(days...), nil
}

// Plan returns the notices due on today, ordered by expiry date. It returns
// nil when reminders are disabled.
func (p *Planner) Plan(ctx context.Context, today time.Time) ([]Notice, error) {
	on, err := p.enabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("read reminder switch: %w", err)
	}
	if !on {
		return nil, nil
	}
	days, err := p.reminderDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("read reminder days: %w", err)
	}

	current, err := p.certs.ListCurrentApproved(ctx)
	if err != nil {
		return nil, err
	}
	active, err := p.employees.List(ctx, directory.EmployeeFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*directory.Employee, len(active))
	for i := range active {
		byID[active[i].ID] = &active[i]
	}

	var notices []Notice
	for _, c := range current {
		emp, ok := byID[c.EmployeeID]
		if !ok {
			continue
		}
		left := certificate.DaysUntilExpiry(c.ExpiryDate, today)
		var kind Kind
		switch {
		case left >= 0 && days.Contains(left):
			kind = KindExpiring
		case left < 0 && dueOverdue(-left):
			kind = KindExpired
		default:
			continue
		}
		notices = append(notices, newNotice(kind, emp, &c, left))
	}
	return notices, nil
}

// dueOverdue reports whether an expired certificate should be re-announced
// after overdue days: the first day after expiry and weekly from then on.
func dueOverdue(overdue int) bool {
	return overdue >= 1 && (overdue-1)%ExpiredCadenceDays == 0
}

func newNotice(kind Kind, emp *directory.Employee, c *certificate.Certificate, left int) Notice {
	name := emp.Name
	if name == "" {
		name = c.EmployeeName
	}
	return Notice{
		Kind:           kind,
		EmployeeID:     emp.ID,
		SfUserID:       emp.SfUserID,
		EmployeeName:   name,
		DepartName:     emp.DepartName,
		Mobile:         emp.Mobile,
		Email:          emp.Email,
		DingTalkUserID: emp.DingTalkUserID,
		CertificateID:  c.ID,
		CertNumber:     c.CertNumber,
		ExpiryDate:     c.ExpiryDate,
		DaysLeft:       left,
		MissingContact: strings.TrimSpace(emp.Mobile) == "",
	}
}

// Run plans today's notices and delivers each one. Delivery failures are
// counted and logged; only planning errors are returned.
func (p *Planner) Run(ctx context.Context, today time.Time) (*Result, error) {
	on, err := p.enabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("read reminder switch: %w", err)
	}
	res := &Result{Enabled: on}
	if !on {
		p.logger.Info("reminders disabled")
		return res, nil
	}
	notices, err := p.Plan(ctx, today)
	if err != nil {
		return nil, err
	}
	res.Planned = len(notices)
	for _, n := range notices {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if n.MissingContact {
			res.MissingContact++
		}
		if err := p.notifier.Notify(ctx, n); err != nil {
			res.Failed++
			p.metrics.Reminder("failed")
			p.logger.Warn("reminder delivery failed",
				zap.String("sfUserId", n.SfUserID),
				zap.String("certNumber", n.CertNumber),
				zap.Error(err))
			continue
		}
		res.Sent++
		p.metrics.Reminder("sent")
	}
	p.logger.Info("reminder pass finished",
		zap.Int("planned", res.Planned),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("missingContact", res.MissingContact))
	return res, nil
}
