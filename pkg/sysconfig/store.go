package sysconfig

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store provides access to the system_configs key/value table.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the system_configs table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("auto-migrate system_configs: %w", err)
	}
	return nil
}

// Get returns the raw value for key. The boolean reports whether the key exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("config_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %s: %w", key, err)
	}
	return e.Value, true, nil
}

// Set writes value under key, creating the row if needed.
func (s *Store) Set(ctx context.Context, key, value string, typ ValueType, group string) error {
	if typ == "" {
		typ = TypeString
	}
	e := Entry{Key: key, Value: value, Type: typ, Group: group}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"config_value", "config_type", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// GetBool parses a boolean setting, returning def when the key is absent or unparsable.
func (s *Store) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, perr := strconv.ParseBool(strings.TrimSpace(v))
	if perr != nil {
		return def, nil
	}
	return b, nil
}

// GetIntList parses a comma separated list of integers such as "30,15,7".
// Unparsable items are skipped; def is returned when nothing usable remains.
func (s *Store) GetIntList(ctx context.Context, key string, def []int) ([]int, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, perr := strconv.Atoi(strings.TrimSpace(part))
		if perr != nil {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return def, nil
	}
	return out, nil
}

// ListGroup returns every entry in a group ordered by key.
func (s *Store) ListGroup(ctx context.Context, group string) ([]Entry, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).Where("group_name = ?", group).Order("config_key ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list config group %s: %w", group, err)
	}
	return entries, nil
}
