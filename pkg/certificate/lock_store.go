package certificate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockStore provides database operations for audit_locks.
type LockStore struct {
	db *gorm.DB
}

// NewLockStore creates a new LockStore.
func NewLockStore(db *gorm.DB) *LockStore {
	return &LockStore{db: db}
}

// AutoMigrate creates or updates the audit_locks table.
func (s *LockStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AuditLock{}); err != nil {
		return fmt.Errorf("auto-migrate audit_locks: %w", err)
	}
	return nil
}

// GetByCert returns the lock row for a certificate regardless of expiry, or nil.
func (s *LockStore) GetByCert(ctx context.Context, certID uint) (*AuditLock, error) {
	return s.getByCert(s.db.WithContext(ctx), certID)
}

func (s *LockStore) getByCertForUpdate(ctx context.Context, certID uint) (*AuditLock, error) {
	return s.getByCert(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), certID)
}

func (s *LockStore) getByCert(q *gorm.DB, certID uint) (*AuditLock, error) {
	var l AuditLock
	if err := q.Where("cert_id = ?", certID).First(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get audit lock: %w", err)
	}
	return &l, nil
}

// Create inserts a lock row. It fails on a duplicate cert_id.
func (s *LockStore) Create(ctx context.Context, l *AuditLock) error {
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("create audit lock: %w", err)
	}
	return nil
}

// Reassign hands the lock row to a holder with a new window.
func (s *LockStore) Reassign(ctx context.Context, id, adminID uint, adminName string, lockedAt, expiresAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&AuditLock{}).Where("id = ?", id).Updates(map[string]any{
		"admin_id":   adminID,
		"admin_name": adminName,
		"locked_at":  lockedAt,
		"expires_at": expiresAt,
	}).Error
	if err != nil {
		return fmt.Errorf("update audit lock: %w", err)
	}
	return nil
}

// DeleteByCert removes the lock row for a certificate.
func (s *LockStore) DeleteByCert(ctx context.Context, certID uint) error {
	if err := s.db.WithContext(ctx).Where("cert_id = ?", certID).Delete(&AuditLock{}).Error; err != nil {
		return fmt.Errorf("delete audit lock: %w", err)
	}
	return nil
}

// DeleteHeldBy removes the lock row only if adminID holds it.
func (s *LockStore) DeleteHeldBy(ctx context.Context, certID, adminID uint) (int64, error) {
	result := s.db.WithContext(ctx).Where("cert_id = ? AND admin_id = ?", certID, adminID).Delete(&AuditLock{})
	if result.Error != nil {
		return 0, fmt.Errorf("release audit lock: %w", result.Error)
	}
	return result.RowsAffected, nil
}
