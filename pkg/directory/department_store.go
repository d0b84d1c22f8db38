package directory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// DepartmentStore provides database operations for departments.
type DepartmentStore struct {
	db *gorm.DB
}

// NewDepartmentStore creates a new DepartmentStore.
func NewDepartmentStore(db *gorm.DB) *DepartmentStore {
	return &DepartmentStore{db: db}
}

// AutoMigrate creates or updates the departments table.
func (s *DepartmentStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Department{}); err != nil {
		return fmt.Errorf("auto-migrate departments: %w", err)
	}
	return nil
}

// Get returns the department with id, or nil.
func (s *DepartmentStore) Get(ctx context.Context, id uint) (*Department, error) {
	var d Department
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get department: %w", err)
	}
	return &d, nil
}

// GetByName returns the department with name, or nil.
func (s *DepartmentStore) GetByName(ctx context.Context, name string) (*Department, error) {
	var d Department
	if err := s.db.WithContext(ctx).Where("dept_name = ?", name).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get department by name: %w", err)
	}
	return &d, nil
}

// List returns departments matching filter ordered by level, sort order and name.
func (s *DepartmentStore) List(ctx context.Context, filter DepartmentFilter) ([]Department, error) {
	q := s.db.WithContext(ctx).Model(&Department{})
	if filter.Name != "" {
		q = q.Where("dept_name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.Level > 0 {
		q = q.Where("dept_level = ?", filter.Level)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []Department
	if err := q.Order("dept_level ASC").Order("sort_order ASC").Order("dept_name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return rows, nil
}

// Create inserts a new department.
func (s *DepartmentStore) Create(ctx context.Context, d *Department) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// Save writes every column of an existing department.
func (s *DepartmentStore) Save(ctx context.Context, d *Department) error {
	if err := s.db.WithContext(ctx).Save(d).Error; err != nil {
		return fmt.Errorf("save department: %w", err)
	}
	return nil
}

// SetActive toggles the active flag of a department.
func (s *DepartmentStore) SetActive(ctx context.Context, id uint, active bool) error {
	result := s.db.WithContext(ctx).Model(&Department{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("set department active: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// MySQL reports zero affected rows when the value is unchanged.
		d, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDepartmentNotFound
		}
	}
	return nil
}

// SetEmployeeCount stores the member count of a department.
func (s *DepartmentStore) SetEmployeeCount(ctx context.Context, id uint, count int) error {
	if err := s.db.WithContext(ctx).Model(&Department{}).Where("id = ?", id).Update("employee_count", count).Error; err != nil {
		return fmt.Errorf("set department employee count: %w", err)
	}
	return nil
}
