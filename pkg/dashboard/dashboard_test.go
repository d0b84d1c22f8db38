package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hrtools/healthcert/pkg/certificate"
	"github.com/hrtools/healthcert/pkg/directory"
)

var today = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, directory.NewEmployeeStore(db).AutoMigrate())
	require.NoError(t, certificate.NewCertificateStore(db).AutoMigrate())
	return db
}

func seedEmployee(t *testing.T, db *gorm.DB, sfUserID, dept string, active bool) *directory.Employee {
	t.Helper()
	e := &directory.Employee{SfUserID: sfUserID, Name: sfUserID, DepartName: dept, IsActive: active}
	require.NoError(t, directory.NewEmployeeStore(db).Create(context.Background(), e))
	return e
}

func seedCert(t *testing.T, db *gorm.DB, emp *directory.Employee, status certificate.Status, current bool, daysLeft int) {
	t.Helper()
	expiry := certificate.Day(today).AddDate(0, 0, daysLeft)
	c := &certificate.Certificate{
		CertNumber: emp.SfUserID + "-" + string(status),
		EmployeeID: emp.ID,
		SfUserID:   emp.SfUserID,
		IssueDate:  expiry.AddDate(-1, 0, 0),
		ExpiryDate: expiry,
		Status:     status,
		IsCurrent:  current,
		Version:    1,
	}
	require.NoError(t, certificate.NewCertificateStore(db).Create(context.Background(), c))
}

func newTestService(t *testing.T, db *gorm.DB, ttl time.Duration) *Service {
	t.Helper()
	s := NewService(db, ttl, nil)
	s.SetClock(func() time.Time { return today })
	return s
}

func seedScenario(t *testing.T, db *gorm.DB) {
	t.Helper()
	a := seedEmployee(t, db, "a", "Sales", true)
	b := seedEmployee(t, db, "b", "Sales", true)
	c := seedEmployee(t, db, "c", "Ops", true)
	d := seedEmployee(t, db, "d", "Ops", true)
	e := seedEmployee(t, db, "e", "Ops", false)

	seedCert(t, db, a, certificate.StatusApproved, true, 30)
	seedCert(t, db, b, certificate.StatusApproved, true, 7)
	seedCert(t, db, c, certificate.StatusApproved, true, -3)
	seedCert(t, db, c, certificate.StatusPending, false, 200)
	seedCert(t, db, d, certificate.StatusDraft, false, 100)
	seedCert(t, db, d, certificate.StatusRejected, false, 100)
	seedCert(t, db, e, certificate.StatusApproved, true, 200)
}

func TestOverview(t *testing.T) {
	db := setupTestDB(t)
	seedScenario(t, db)
	s := newTestService(t, db, 0)

	o, err := s.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), o.TotalEmployees)
	assert.Equal(t, int64(4), o.ActiveEmployees)
	assert.Equal(t, int64(6), o.SubmittedCount, "drafts are not submissions")
	assert.Equal(t, int64(1), o.PendingCount)
	assert.Equal(t, int64(4), o.ApprovedCount)
	assert.Equal(t, int64(1), o.Expiring30Days)
	assert.Equal(t, int64(0), o.Expiring15Days)
	assert.Equal(t, int64(1), o.Expiring7Days)
	assert.Equal(t, int64(1), o.ExpiredCount)
	assert.Equal(t, 100.0, o.CoverageRate)
	assert.Equal(t, int64(1), o.NoCertificateCount)
}

func TestOverviewWithoutEmployees(t *testing.T) {
	s := newTestService(t, setupTestDB(t), 0)

	o, err := s.Overview(context.Background())
	require.NoError(t, err)
	assert.Zero(t, o.CoverageRate)
	assert.Zero(t, o.NoCertificateCount)
}

func TestStatusBreakdown(t *testing.T) {
	db := setupTestDB(t)
	seedScenario(t, db)
	s := newTestService(t, db, 0)

	b, err := s.StatusBreakdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &StatusBreakdown{Valid: 1, Expiring: 2, Urgent: 0, Expired: 1}, b)
}

func TestDepartmentCoverage(t *testing.T) {
	db := setupTestDB(t)
	seedScenario(t, db)
	s := newTestService(t, db, 0)

	rows, err := s.DepartmentCoverage(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, DepartmentCoverage{Department: "Ops", Active: 2, Covered: 0, CoverageRate: 0}, rows[0])
	assert.Equal(t, DepartmentCoverage{Department: "Sales", Active: 2, Covered: 2, CoverageRate: 100}, rows[1])
}

func TestOverviewIsCached(t *testing.T) {
	db := setupTestDB(t)
	s := newTestService(t, db, time.Minute)
	ctx := context.Background()

	first, err := s.Overview(ctx)
	require.NoError(t, err)
	assert.Zero(t, first.TotalEmployees)

	seedEmployee(t, db, "late", "Sales", true)
	cached, err := s.Overview(ctx)
	require.NoError(t, err)
	assert.Zero(t, cached.TotalEmployees)

	s.Invalidate()
	fresh, err := s.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.TotalEmployees)
}

func TestRate(t *testing.T) {
	assert.Equal(t, 33.33, rate(1, 3))
	assert.Equal(t, 66.67, rate(2, 3))
	assert.Equal(t, 0.0, rate(5, 0))
}
