// Package ha serializes schema migrations across replicas sharing a database.
package ha

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultLockName identifies the migration lock of this service.
const DefaultLockName = "healthcert-migration"

// ErrLockTimeout is returned when the migration lock cannot be acquired in time.
var ErrLockTimeout = errors.New("migration lock not acquired")

// MigrationLocker runs a function while holding a database-wide lock.
type MigrationLocker interface {
	// WithLock blocks until the lock is held, runs fn, then releases it.
	WithLock(ctx context.Context, fn func() error) error
}

// LockOptions tune the table-based lock used on SQLite.
type LockOptions struct {
	Name          string
	Holder        string
	MaxAttempts   int
	RetryInterval time.Duration
	StaleAfter    time.Duration
	Logger        *zap.Logger
}

func (o LockOptions) withDefaults() LockOptions {
	if o.Name == "" {
		o.Name = DefaultLockName
	}
	if o.Holder == "" {
		o.Holder, _ = os.Hostname()
		if o.Holder == "" {
			o.Holder = "unknown"
		}
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 30
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 5 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// NewMigrationLocker returns a locker for the dialect of db: advisory locks on
// PostgreSQL, GET_LOCK on MySQL and a lock table elsewhere. A nil db yields a
// locker that just runs fn.
func NewMigrationLocker(db *gorm.DB, opts LockOptions) (MigrationLocker, error) {
	if db == nil {
		return noopMigrationLock{}, nil
	}
	opts = opts.withDefaults()
	switch db.Dialector.Name() {
	case "postgres":
		return &pgAdvisoryLock{db: db, key: int64(crc32.ChecksumIEEE([]byte(opts.Name))), logger: opts.Logger}, nil
	case "mysql":
		timeout := int(opts.RetryInterval.Seconds() * float64(opts.MaxAttempts))
		return &mysqlNamedLock{db: db, name: opts.Name, timeoutSeconds: timeout, logger: opts.Logger}, nil
	}
	// The table exists before any caller races on it.
	if err := db.AutoMigrate(&migrationLockRecord{}); err != nil {
		return nil, fmt.Errorf("auto-migrate migration_locks: %w", err)
	}
	return &tableMigrationLock{db: db, opts: opts}, nil
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// pgAdvisoryLock holds a session advisory lock on one pooled connection.
type pgAdvisoryLock struct {
	db     *gorm.DB
	key    int64
	logger *zap.Logger
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.key).Error; err != nil {
			return fmt.Errorf("acquire migration advisory lock: %w", err)
		}
		l.logger.Debug("migration lock acquired", zap.Int64("key", l.key))
		defer func() {
			if err := conn.WithContext(context.WithoutCancel(ctx)).Exec("SELECT pg_advisory_unlock(?)", l.key).Error; err != nil {
				l.logger.Warn("failed to release migration advisory lock", zap.Error(err))
			}
		}()
		return fn()
	})
}

// mysqlNamedLock holds a GET_LOCK named lock on one pooled connection.
type mysqlNamedLock struct {
	db             *gorm.DB
	name           string
	timeoutSeconds int
	logger         *zap.Logger
}

func (l *mysqlNamedLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var got *int
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", l.name, l.timeoutSeconds).Scan(&got).Error; err != nil {
			return fmt.Errorf("acquire migration lock %s: %w", l.name, err)
		}
		if got == nil || *got != 1 {
			return fmt.Errorf("%w: %s busy after %ds", ErrLockTimeout, l.name, l.timeoutSeconds)
		}
		l.logger.Debug("migration lock acquired", zap.String("name", l.name))
		defer func() {
			if err := conn.WithContext(context.WithoutCancel(ctx)).Exec("SELECT RELEASE_LOCK(?)", l.name).Error; err != nil {
				l.logger.Warn("failed to release migration lock", zap.String("name", l.name), zap.Error(err))
			}
		}()
		return fn()
	})
}

// migrationLockRecord is one held table lock.
type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id;type:varchar(100)"`
	LockedAt time.Time `gorm:"column:locked_at;not null"`
	LockedBy string    `gorm:"column:locked_by;type:varchar(255)"`
}

func (migrationLockRecord) TableName() string { return "migration_locks" }

// tableMigrationLock relies on the primary key to admit a single holder.
// Rows older than StaleAfter are taken to belong to a crashed holder.
type tableMigrationLock struct {
	db   *gorm.DB
	opts LockOptions
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer func() {
		err := l.db.WithContext(context.WithoutCancel(ctx)).
			Where("id = ? AND locked_by = ?", l.opts.Name, l.opts.Holder).
			Delete(&migrationLockRecord{}).Error
		if err != nil {
			l.opts.Logger.Warn("failed to release migration lock", zap.String("name", l.opts.Name), zap.Error(err))
		}
	}()
	return fn()
}

func (l *tableMigrationLock) acquire(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= l.opts.MaxAttempts; attempt++ {
		now := time.Now().UTC()
		if err := l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", l.opts.Name, now.Add(-l.opts.StaleAfter)).
			Delete(&migrationLockRecord{}).Error; err != nil {
			return fmt.Errorf("clear stale migration lock: %w", err)
		}

		row := migrationLockRecord{ID: l.opts.Name, LockedAt: now, LockedBy: l.opts.Holder}
		lastErr = l.db.WithContext(ctx).Create(&row).Error
		if lastErr == nil {
			l.opts.Logger.Debug("migration lock acquired", zap.String("name", l.opts.Name), zap.Int("attempt", attempt))
			return nil
		}
		if attempt == l.opts.MaxAttempts {
			break
		}

		l.opts.Logger.Info("waiting for migration lock", zap.String("name", l.opts.Name), zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opts.RetryInterval):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrLockTimeout, l.opts.MaxAttempts, lastErr)
}
