package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hrtools/healthcert/pkg/database"
	"github.com/hrtools/healthcert/pkg/directory"
	"github.com/hrtools/healthcert/pkg/metrics"
)

// DefaultLockTTL is how long an audit lock stays in force.
const DefaultLockTTL = 5 * time.Minute

// EmployeeLookup resolves the owner of a submission.
type EmployeeLookup interface {
	GetByID(ctx context.Context, id uint) (*directory.Employee, error)
}

// Manager owns the certificate state machine and the audit lock discipline.
type Manager struct {
	db        *gorm.DB
	certs     *CertificateStore
	locks     *LockStore
	employees EmployeeLookup
	machine   *StateMachine
	lockTTL   time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lockTTL = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics sets the collectors the manager reports to.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a lifecycle manager over db.
func NewManager(db *gorm.DB, employees EmployeeLookup, opts ...Option) *Manager {
	m := &Manager{
		db:        db,
		certs:     NewCertificateStore(db),
		locks:     NewLockStore(db),
		employees: employees,
		machine:   NewStateMachine(),
		lockTTL:   DefaultLockTTL,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "certificate-lifecycle"))
	return m
}

// Certificates exposes the store backing the manager.
func (m *Manager) Certificates() *CertificateStore { return m.certs }

// Lock reserves a certificate for review by adminID. Re-locking by the same
// admin extends the window; a live lock held by someone else fails with a
// lock conflict naming the holder. An expired lock is taken over.
func (m *Manager) Lock(ctx context.Context, certID, adminID uint, adminName string) (*AuditLock, error) {
	lock, err := m.tryLock(ctx, certID, adminID, adminName)
	if err != nil && database.IsDuplicateKey(err) {
		// Another admin inserted the first lock row concurrently; evaluate theirs.
		lock, err = m.tryLock(ctx, certID, adminID, adminName)
	}
	return lock, err
}

func (m *Manager) tryLock(ctx context.Context, certID, adminID uint, adminName string) (*AuditLock, error) {
	var result *AuditLock
	outcome := ""
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		certs, locks := NewCertificateStore(tx), NewLockStore(tx)

		cert, err := certs.Get(ctx, certID)
		if err != nil {
			return err
		}
		if cert == nil {
			return certificateNotFound(certID)
		}

		now := m.now()
		expires := now.Add(m.lockTTL)
		existing, err := locks.getByCertForUpdate(ctx, certID)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			l := &AuditLock{CertID: certID, AdminID: adminID, AdminName: adminName, LockedAt: now, ExpiresAt: expires}
			if err := locks.Create(ctx, l); err != nil {
				return err
			}
			result, outcome = l, "acquired"
		case existing.ActiveAt(now) && existing.AdminID != adminID:
			outcome = "busy"
			return lockBusy(existing.AdminName)
		case existing.ActiveAt(now):
			if err := locks.Reassign(ctx, existing.ID, adminID, adminName, existing.LockedAt, expires); err != nil {
				return err
			}
			existing.AdminName = adminName
			existing.ExpiresAt = expires
			result, outcome = existing, "refreshed"
		default:
			if err := locks.Reassign(ctx, existing.ID, adminID, adminName, now, expires); err != nil {
				return err
			}
			existing.AdminID, existing.AdminName = adminID, adminName
			existing.LockedAt, existing.ExpiresAt = now, expires
			result, outcome = existing, "acquired"
		}
		return nil
	})
	if outcome != "" {
		m.metrics.Lock(outcome)
	}
	if err != nil {
		return nil, err
	}
	m.logger.Info("certificate locked",
		zap.Uint("certId", certID),
		zap.Uint("adminId", adminID),
		zap.String("outcome", outcome),
		zap.Time("expiresAt", result.ExpiresAt))
	return result, nil
}

// Unlock releases adminID's lock on a certificate. Releasing a lock that does
// not exist or belongs to someone else is a no-op.
func (m *Manager) Unlock(ctx context.Context, certID, adminID uint) error {
	n, err := m.locks.DeleteHeldBy(ctx, certID, adminID)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info("certificate unlocked", zap.Uint("certId", certID), zap.Uint("adminId", adminID))
	}
	return nil
}

// LockStatus returns the live lock on a certificate, or nil.
func (m *Manager) LockStatus(ctx context.Context, certID uint) (*AuditLock, error) {
	l, err := m.locks.GetByCert(ctx, certID)
	if err != nil {
		return nil, err
	}
	if !l.ActiveAt(m.now()) {
		return nil, nil
	}
	return l, nil
}

// Audit approves or rejects a locked certificate. Approval promotes the
// certificate to current and demotes every other current certificate of the
// same employee in the same transaction. The lock is released on success.
func (m *Manager) Audit(ctx context.Context, certID uint, action Action, reason string, adminID uint, adminName string) (*Certificate, error) {
	var out *Certificate
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		certs, locks := NewCertificateStore(tx), NewLockStore(tx)

		cert, err := certs.getForUpdate(ctx, certID)
		if err != nil {
			return err
		}
		if cert == nil {
			return certificateNotFound(certID)
		}

		now := m.now()
		lock, err := locks.getByCertForUpdate(ctx, certID)
		if err != nil {
			return err
		}
		if !lock.ActiveAt(now) {
			return &Error{Kind: KindLockRequired, Code: CodeLockRequired, Message: "certificate must be locked before audit"}
		}
		if lock.AdminID != adminID {
			return &Error{Kind: KindLockConflict, Code: CodeLockNotHeld, Holder: lock.AdminName,
				Message: fmt.Sprintf("certificate lock is held by %s", lock.AdminName)}
		}

		target, ok := targetStatus(action)
		if !ok {
			return &Error{Kind: KindValidation, Code: CodeInvalidAction, Field: "action",
				Message: fmt.Sprintf("invalid audit action %q", action)}
		}
		reason = strings.TrimSpace(reason)
		if action == ActionReject && reason == "" {
			return &Error{Kind: KindValidation, Code: CodeReasonRequired, Field: "reason", Message: "reject reason is required"}
		}
		if err := m.machine.Validate(cert.Status, target); err != nil {
			return err
		}

		updates := map[string]any{
			"status":       target,
			"audit_time":   now,
			"auditor_id":   adminID,
			"auditor_name": adminName,
		}
		if action == ActionApprove {
			demoted, err := certs.DemoteOtherCurrent(ctx, cert.EmployeeID, cert.ID)
			if err != nil {
				return err
			}
			if demoted > 0 {
				m.logger.Info("demoted previous current certificates",
					zap.Uint("employeeId", cert.EmployeeID), zap.Int64("count", demoted))
			}
			updates["reject_reason"] = ""
			updates["is_current"] = true
		} else {
			updates["reject_reason"] = reason
		}
		if err := certs.Update(ctx, cert.ID, updates); err != nil {
			return err
		}
		if err := locks.DeleteByCert(ctx, cert.ID); err != nil {
			return err
		}

		out, err = certs.Get(ctx, cert.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.metrics.Audit(string(action))
	m.logger.Info("certificate audited",
		zap.Uint("certId", certID),
		zap.String("action", string(action)),
		zap.Uint("adminId", adminID),
		zap.String("adminName", adminName))
	return out, nil
}

// SubmitCertificate records an employee's certificate for review. A current
// row with the same number is demoted. The most recent rejected row with the
// same number is reused in place with its version incremented; otherwise a
// new pending row is inserted.
func (m *Manager) SubmitCertificate(ctx context.Context, data Submission, employeeID uint, submittedBy string) (*Certificate, error) {
	if err := validateSubmission(data); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(data.CertNumber)

	emp, err := m.employees.GetByID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("look up employee: %w", err)
	}
	if emp == nil {
		return nil, employeeNotFound(employeeID)
	}

	var out *Certificate
	path := ""
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		certs := NewCertificateStore(tx)
		now := m.now()

		demoted, err := certs.DemoteCurrentByNumber(ctx, number)
		if err != nil {
			return err
		}
		if demoted > 0 {
			m.logger.Info("demoted current certificate with reused number",
				zap.String("certNumber", number), zap.Int64("count", demoted))
		}

		rejected, err := certs.LatestRejectedByNumber(ctx, number)
		if err != nil {
			return err
		}
		if rejected == nil {
			c := newCertificate(data, emp, now)
			if err := certs.Create(ctx, c); err != nil {
				return err
			}
			out, path = c, "created"
			return nil
		}

		if err := m.machine.Validate(rejected.Status, StatusPending); err != nil {
			return err
		}
		updates := resubmissionUpdates(data, emp, now)
		updates["version"] = rejected.Version + 1
		n, err := certs.UpdateAtVersion(ctx, rejected.ID, rejected.Version, updates)
		if err != nil {
			return err
		}
		if n == 0 {
			return &Error{Kind: KindVersionConflict, Code: CodeStaleVersion,
				Message: fmt.Sprintf("certificate %d changed while resubmitting", rejected.ID)}
		}
		out, err = certs.Get(ctx, rejected.ID)
		path = "resubmitted"
		return err
	})
	if err != nil {
		return nil, err
	}
	m.metrics.Submission(path)
	m.logger.Info("certificate submitted",
		zap.Uint("certId", out.ID),
		zap.String("certNumber", out.CertNumber),
		zap.Uint("employeeId", employeeID),
		zap.String("submittedBy", submittedBy),
		zap.String("path", path),
		zap.Int("version", out.Version))
	return out, nil
}

func validateSubmission(d Submission) error {
	switch {
	case strings.TrimSpace(d.CertNumber) == "":
		return fieldRequired("certNumber")
	case strings.TrimSpace(d.EmployeeName) == "":
		return fieldRequired("employeeName")
	case d.IssueDate == nil || d.IssueDate.IsZero():
		return fieldRequired("issueDate")
	case d.ExpiryDate == nil || d.ExpiryDate.IsZero():
		return fieldRequired("expiryDate")
	case strings.TrimSpace(d.ImagePath) == "":
		return fieldRequired("imagePath")
	}
	if Day(*d.ExpiryDate).Before(Day(*d.IssueDate)) {
		return &Error{Kind: KindValidation, Code: CodeInvalidDateRange, Field: "expiryDate",
			Message: "expiryDate must not be before issueDate"}
	}
	return nil
}

func newCertificate(d Submission, emp *directory.Employee, now time.Time) *Certificate {
	submitted := now
	return &Certificate{
		CertNumber:       strings.TrimSpace(d.CertNumber),
		EmployeeID:       emp.ID,
		SfUserID:         emp.SfUserID,
		EmployeeName:     emp.Name,
		Gender:           d.Gender,
		Age:              d.Age,
		IDCard:           d.IDCard,
		Category:         d.Category,
		IssueDate:        Day(*d.IssueDate),
		ExpiryDate:       Day(*d.ExpiryDate),
		IssuingAuthority: d.IssuingAuthority,
		ImagePath:        strings.TrimSpace(d.ImagePath),
		OCRRawData:       d.OCRRawData,
		Status:           StatusPending,
		SubmitTime:       &submitted,
		IsCurrent:        false,
		Version:          1,
	}
}

func resubmissionUpdates(d Submission, emp *directory.Employee, now time.Time) map[string]any {
	return map[string]any{
		"employee_id":       emp.ID,
		"sf_user_id":        emp.SfUserID,
		"employee_name":     emp.Name,
		"gender":            d.Gender,
		"age":               d.Age,
		"id_card":           d.IDCard,
		"category":          d.Category,
		"issue_date":        Day(*d.IssueDate),
		"expiry_date":       Day(*d.ExpiryDate),
		"issuing_authority": d.IssuingAuthority,
		"image_path":        strings.TrimSpace(d.ImagePath),
		"ocr_raw_data":      d.OCRRawData,
		"status":            StatusPending,
		"submit_time":       now,
		"audit_time":        nil,
		"auditor_id":        nil,
		"auditor_name":      "",
		"reject_reason":     "",
		"is_current":        false,
	}
}
