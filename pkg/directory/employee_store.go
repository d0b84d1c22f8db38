package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EmployeeStore provides database operations for the local employee mirror.
type EmployeeStore struct {
	db *gorm.DB
}

// NewEmployeeStore creates a new EmployeeStore.
func NewEmployeeStore(db *gorm.DB) *EmployeeStore {
	return &EmployeeStore{db: db}
}

// AutoMigrate creates or updates the employees table.
func (s *EmployeeStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Employee{}); err != nil {
		return fmt.Errorf("auto-migrate employees: %w", err)
	}
	return nil
}

// GetByID returns the employee with id, or nil.
func (s *EmployeeStore) GetByID(ctx context.Context, id uint) (*Employee, error) {
	var e Employee
	if err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &e, nil
}

// GetBySfUserID returns the employee with the given domain account id, or nil.
func (s *EmployeeStore) GetBySfUserID(ctx context.Context, sfUserID string) (*Employee, error) {
	var e Employee
	if err := s.db.WithContext(ctx).Where("sf_user_id = ?", sfUserID).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get employee by sf user id: %w", err)
	}
	return &e, nil
}

// ListAll returns every local employee, active or not.
func (s *EmployeeStore) ListAll(ctx context.Context) ([]Employee, error) {
	var rows []Employee
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return rows, nil
}

// List returns employees matching filter ordered by name.
func (s *EmployeeStore) List(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	q := s.db.WithContext(ctx).Model(&Employee{})
	if filter.Name != "" {
		q = q.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.DepartName != "" {
		q = q.Where("depart_name_cn = ?", filter.DepartName)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if filter.Frontline != nil {
		q = q.Where("is_frontline_worker = ?", *filter.Frontline)
	}
	var rows []Employee
	if err := q.Order("name ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return rows, nil
}

// Create inserts a new employee.
func (s *EmployeeStore) Create(ctx context.Context, e *Employee) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("create employee: %w", err)
	}
	return nil
}

// Save writes every column of an existing employee.
func (s *EmployeeStore) Save(ctx context.Context, e *Employee) error {
	if err := s.db.WithContext(ctx).Save(e).Error; err != nil {
		return fmt.Errorf("save employee: %w", err)
	}
	return nil
}

// Deactivate marks the given employees inactive and stamps the sync time.
func (s *EmployeeStore) Deactivate(ctx context.Context, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&Employee{}).Where("id IN ?", ids).Updates(map[string]any{
		"is_active": false,
		"sync_time": at,
	}).Error
	if err != nil {
		return fmt.Errorf("deactivate employees: %w", err)
	}
	return nil
}

// UpdateContact sets the locally maintained contact fields.
func (s *EmployeeStore) UpdateContact(ctx context.Context, id uint, mobile, dingTalkUserID string) error {
	result := s.db.WithContext(ctx).Model(&Employee{}).Where("id = ?", id).Updates(map[string]any{
		"mobile":          mobile,
		"dingtalk_userid": dingTalkUserID,
	})
	if result.Error != nil {
		return fmt.Errorf("update employee contact: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		e, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return ErrEmployeeNotFound
		}
	}
	return nil
}

// Count returns the number of employees, optionally only active ones.
func (s *EmployeeStore) Count(ctx context.Context, activeOnly bool) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Employee{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count employees: %w", err)
	}
	return n, nil
}

// CountActiveByDepartment returns active head count keyed by department name.
func (s *EmployeeStore) CountActiveByDepartment(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		DepartName string `gorm:"column:depart_name_cn"`
		Count      int64  `gorm:"column:count"`
	}
	if err := s.db.WithContext(ctx).Model(&Employee{}).
		Select("depart_name_cn, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("depart_name_cn").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count employees by department: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.DepartName] = r.Count
	}
	return out, nil
}
