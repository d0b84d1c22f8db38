// Package dashboard computes compliance summaries over employees and their
// current certificates.
package dashboard

import (
	"context"
	"math"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hrtools/healthcert/pkg/certificate"
	"github.com/hrtools/healthcert/pkg/directory"
)

const (
	overviewKey   = "overview"
	breakdownKey  = "breakdown"
	departmentKey = "departments"

	// UrgentWindowDays splits expiring certificates into urgent and expiring.
	UrgentWindowDays = 7
)

// Overview is the headline compliance summary.
type Overview struct {
	TotalEmployees     int64     `json:"totalEmployees"`
	ActiveEmployees    int64     `json:"activeEmployees"`
	SubmittedCount     int64     `json:"submittedCount"`
	PendingCount       int64     `json:"pendingCount"`
	ApprovedCount      int64     `json:"approvedCount"`
	Expiring30Days     int64     `json:"expiring30Days"`
	Expiring15Days     int64     `json:"expiring15Days"`
	Expiring7Days      int64     `json:"expiring7Days"`
	ExpiredCount       int64     `json:"expiredCount"`
	CoverageRate       float64   `json:"coverageRate"`
	NoCertificateCount int64     `json:"noCertificateCount"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

// StatusBreakdown splits current approved certificates by expiry urgency.
type StatusBreakdown struct {
	Valid    int64 `json:"valid"`
	Expiring int64 `json:"expiring"`
	Urgent   int64 `json:"urgent"`
	Expired  int64 `json:"expired"`
}

// DepartmentCoverage reports how many active members of a department hold a
// current approved certificate.
type DepartmentCoverage struct {
	Department   string  `json:"department"`
	Active       int64   `json:"active"`
	Covered      int64   `json:"covered"`
	CoverageRate float64 `json:"coverageRate"`
}

// Service computes dashboard figures. Results are cached for the configured TTL.
type Service struct {
	employees *directory.EmployeeStore
	certs     *certificate.CertificateStore
	cache     *gocache.Cache
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates a dashboard service. A ttl of zero disables caching.
func NewService(db *gorm.DB, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		employees: directory.NewEmployeeStore(db),
		certs:     certificate.NewCertificateStore(db),
		now:       time.Now,
		logger:    logger.With(zap.String("component", "dashboard")),
	}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

// SetClock overrides the time source used to decide "today".
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Invalidate drops every cached figure.
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

func (s *Service) cached(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Service) store(key string, v any) {
	if s.cache != nil {
		s.cache.SetDefault(key, v)
	}
}

// Overview returns the headline summary.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	if v, ok := s.cached(overviewKey); ok {
		return v.(*Overview), nil
	}

	total, err := s.employees.Count(ctx, false)
	if err != nil {
		return nil, err
	}
	active, err := s.employees.Count(ctx, true)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.certs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.certs.ListCurrentApproved(ctx)
	if err != nil {
		return nil, err
	}
	activeEmployees, err := s.employees.List(ctx, directory.EmployeeFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &Overview{
		TotalEmployees:  total,
		ActiveEmployees: active,
		PendingCount:    byStatus[certificate.StatusPending],
		ApprovedCount:   int64(len(current)),
		GeneratedAt:     now,
	}
	for st, n := range byStatus {
		if st != certificate.StatusDraft {
			o.SubmittedCount += n
		}
	}
	for _, c := range current {
		switch days := certificate.DaysUntilExpiry(c.ExpiryDate, now); {
		case days < 0:
			o.ExpiredCount++
		case days == 30:
			o.Expiring30Days++
		case days == 15:
			o.Expiring15Days++
		case days == 7:
			o.Expiring7Days++
		}
	}
	o.CoverageRate = rate(o.ApprovedCount, active)

	covered := coveredEmployees(current)
	for _, e := range activeEmployees {
		if !covered[e.ID] {
			o.NoCertificateCount++
		}
	}

	s.logger.Debug("overview computed",
		zap.Int64("activeEmployees", o.ActiveEmployees),
		zap.Float64("coverageRate", o.CoverageRate))
	s.store(overviewKey, o)
	return o, nil
}

// StatusBreakdown classifies current approved certificates as valid, expiring
// (7 to 30 days left), urgent (under 7 days) or expired.
func (s *Service) StatusBreakdown(ctx context.Context) (*StatusBreakdown, error) {
	if v, ok := s.cached(breakdownKey); ok {
		return v.(*StatusBreakdown), nil
	}
	current, err := s.certs.ListCurrentApproved(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	b := &StatusBreakdown{}
	for _, c := range current {
		days := certificate.DaysUntilExpiry(c.ExpiryDate, now)
		switch {
		case days < 0:
			b.Expired++
		case days < UrgentWindowDays:
			b.Urgent++
		case days <= certificate.ExpiringWindowDays:
			b.Expiring++
		default:
			b.Valid++
		}
	}
	s.store(breakdownKey, b)
	return b, nil
}

// DepartmentCoverage returns per-department coverage ordered by department name.
// A certificate counts as coverage only while it is not expired.
func (s *Service) DepartmentCoverage(ctx context.Context) ([]DepartmentCoverage, error) {
	if v, ok := s.cached(departmentKey); ok {
		return v.([]DepartmentCoverage), nil
	}
	activeEmployees, err := s.employees.List(ctx, directory.EmployeeFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	current, err := s.certs.ListCurrentApproved(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	valid := make(map[uint]bool, len(current))
	for _, c := range current {
		if certificate.ClassifyExpiry(c.ExpiryDate, now) != certificate.ExpiryExpired {
			valid[c.EmployeeID] = true
		}
	}

	byDept := make(map[string]*DepartmentCoverage)
	for _, e := range activeEmployees {
		d, ok := byDept[e.DepartName]
		if !ok {
			d = &DepartmentCoverage{Department: e.DepartName}
			byDept[e.DepartName] = d
		}
		d.Active++
		if valid[e.ID] {
			d.Covered++
		}
	}
	out := make([]DepartmentCoverage, 0, len(byDept))
	for _, d := range byDept {
		d.CoverageRate = rate(d.Covered, d.Active)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Department < out[j].Department })

	s.store(departmentKey, out)
	return out, nil
}

func coveredEmployees(current []certificate.Certificate) map[uint]bool {
	out := make(map[uint]bool, len(current))
	for _, c := range current {
		out[c.EmployeeID] = true
	}
	return out
}

// rate returns part/whole as a percentage rounded to two decimals.
func rate(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)*10000/float64(whole)) / 100
}
