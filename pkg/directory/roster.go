package directory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// DefaultRosterTable is the remote table holding the HR roster.
const DefaultRosterTable = "hr_sync"

// RosterSource is the read-only system of record for employees.
type RosterSource interface {
	// FetchAll returns the entire roster.
	FetchAll(ctx context.Context) ([]RosterEntry, error)
	// FetchOne returns a single account, or nil if the roster has none.
	FetchOne(ctx context.Context, sfUserID string) (*RosterEntry, error)
}

// GormRosterSource reads the roster from a remote database table.
type GormRosterSource struct {
	db    *gorm.DB
	table string
}

// NewGormRosterSource creates a roster source reading table on db. An empty
// table name uses DefaultRosterTable.
func NewGormRosterSource(db *gorm.DB, table string) *GormRosterSource {
	if table == "" {
		table = DefaultRosterTable
	}
	return &GormRosterSource{db: db, table: table}
}

// FetchAll implements RosterSource.
func (s *GormRosterSource) FetchAll(ctx context.Context) ([]RosterEntry, error) {
	var rows []RosterEntry
	if err := s.db.WithContext(ctx).Table(s.table).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	return rows, nil
}

// FetchOne implements RosterSource.
func (s *GormRosterSource) FetchOne(ctx context.Context, sfUserID string) (*RosterEntry, error) {
	var row RosterEntry
	err := s.db.WithContext(ctx).Table(s.table).Where("sf_user_id = ?", sfUserID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch roster entry: %w", err)
	}
	return &row, nil
}
