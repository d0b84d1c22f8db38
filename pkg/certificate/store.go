package certificate

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CertificateStore provides database operations for health_certificates.
type CertificateStore struct {
	db *gorm.DB
}

// NewCertificateStore creates a new CertificateStore.
func NewCertificateStore(db *gorm.DB) *CertificateStore {
	return &CertificateStore{db: db}
}

// AutoMigrate creates or updates the health_certificates table.
func (s *CertificateStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Certificate{}); err != nil {
		return fmt.Errorf("auto-migrate health_certificates: %w", err)
	}
	return nil
}

// Get returns the certificate with id, or nil if it does not exist.
func (s *CertificateStore) Get(ctx context.Context, id uint) (*Certificate, error) {
	return s.get(s.db.WithContext(ctx), id)
}

// getForUpdate reads a row with a row lock where the dialect supports one.
func (s *CertificateStore) getForUpdate(ctx context.Context, id uint) (*Certificate, error) {
	return s.get(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (s *CertificateStore) get(q *gorm.DB, id uint) (*Certificate, error) {
	var c Certificate
	if err := q.First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return &c, nil
}

// Create inserts a new certificate row.
func (s *CertificateStore) Create(ctx context.Context, c *Certificate) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// DemoteCurrentByNumber clears is_current on every current row carrying number.
func (s *CertificateStore) DemoteCurrentByNumber(ctx context.Context, number string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Certificate{}).
		Where("cert_number = ? AND is_current = ?", number, true).
		Update("is_current", false)
	if result.Error != nil {
		return 0, fmt.Errorf("demote certificates by number: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DemoteOtherCurrent clears is_current on every row of the employee except keepID.
func (s *CertificateStore) DemoteOtherCurrent(ctx context.Context, employeeID, keepID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Certificate{}).
		Where("employee_id = ? AND is_current = ? AND id <> ?", employeeID, true, keepID).
		Update("is_current", false)
	if result.Error != nil {
		return 0, fmt.Errorf("demote sibling certificates: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// LatestRejectedByNumber returns the most recently touched rejected row with number.
func (s *CertificateStore) LatestRejectedByNumber(ctx context.Context, number string) (*Certificate, error) {
	var c Certificate
	err := s.db.WithContext(ctx).
		Where("cert_number = ? AND status = ?", number, StatusRejected).
		Order("updated_at DESC").Order("id DESC").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find rejected certificate: %w", err)
	}
	return &c, nil
}

// UpdateAtVersion applies updates only if the row still has the given version.
// It returns the number of rows changed, which is zero when the version moved.
func (s *CertificateStore) UpdateAtVersion(ctx context.Context, id uint, version int, updates map[string]any) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Certificate{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("update certificate: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Update applies updates to the row with id.
func (s *CertificateStore) Update(ctx context.Context, id uint, updates map[string]any) error {
	if err := s.db.WithContext(ctx).Model(&Certificate{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	return nil
}

// List returns certificates matching filter, newest first, with the total match count.
func (s *CertificateStore) List(ctx context.Context, filter Filter, page Page) ([]Certificate, int64, error) {
	page = page.normalize()

	q := s.db.WithContext(ctx).Model(&Certificate{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.EmployeeName != "" {
		q = q.Where("employee_name LIKE ?", "%"+filter.EmployeeName+"%")
	}
	if filter.CertNumber != "" {
		q = q.Where("cert_number LIKE ?", "%"+filter.CertNumber+"%")
	}
	if filter.SfUserID != "" {
		q = q.Where("sf_user_id = ?", filter.SfUserID)
	}
	if filter.EmployeeID != 0 {
		q = q.Where("employee_id = ?", filter.EmployeeID)
	}
	if filter.CurrentOnly {
		q = q.Where("is_current = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}

	var rows []Certificate
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset(page.offset()).Limit(page.Size).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}
	return rows, total, nil
}

// ListPending returns pending certificates ordered by submit time, newest first.
func (s *CertificateStore) ListPending(ctx context.Context, page Page) ([]Certificate, int64, error) {
	page = page.normalize()
	q := s.db.WithContext(ctx).Model(&Certificate{}).Where("status = ?", StatusPending)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count pending certificates: %w", err)
	}
	var rows []Certificate
	if err := q.Order("submit_time DESC").Order("id DESC").
		Offset(page.offset()).Limit(page.Size).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list pending certificates: %w", err)
	}
	return rows, total, nil
}

// ListByEmployee returns all certificates of one employee, newest first.
func (s *CertificateStore) ListByEmployee(ctx context.Context, employeeID uint) ([]Certificate, error) {
	var rows []Certificate
	if err := s.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list employee certificates: %w", err)
	}
	return rows, nil
}

// ListCurrentApproved returns every approved certificate flagged as current.
func (s *CertificateStore) ListCurrentApproved(ctx context.Context) ([]Certificate, error) {
	var rows []Certificate
	if err := s.db.WithContext(ctx).
		Where("status = ? AND is_current = ?", StatusApproved, true).
		Order("expiry_date ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list current certificates: %w", err)
	}
	return rows, nil
}

// CountByStatus returns the number of rows per stored status.
func (s *CertificateStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&Certificate{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count certificates by status: %w", err)
	}
	out := make(map[Status]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
