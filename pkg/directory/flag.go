package directory

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/hrtools/healthcert/pkg/sysconfig"
)

// SyncFlagKey is the system config key backing ConfigSyncFlag.
const SyncFlagKey = "sync.in_progress"

// SyncFlag is the advisory "reconciliation in progress" marker. It is not a
// mutex: two passes that both read false before either writes true will race.
type SyncFlag interface {
	InProgress(ctx context.Context) (bool, error)
	SetInProgress(ctx context.Context, inProgress bool) error
}

// ConfigSyncFlag persists the flag as a system config row so every replica
// sharing the database observes it.
type ConfigSyncFlag struct {
	store *sysconfig.Store
}

// NewConfigSyncFlag creates a flag stored in system_configs.
func NewConfigSyncFlag(store *sysconfig.Store) *ConfigSyncFlag {
	return &ConfigSyncFlag{store: store}
}

// InProgress implements SyncFlag.
func (f *ConfigSyncFlag) InProgress(ctx context.Context) (bool, error) {
	return f.store.GetBool(ctx, SyncFlagKey, false)
}

// SetInProgress implements SyncFlag.
func (f *ConfigSyncFlag) SetInProgress(ctx context.Context, inProgress bool) error {
	return f.store.Set(ctx, SyncFlagKey, strconv.FormatBool(inProgress), sysconfig.TypeBoolean, "sync")
}

// MemorySyncFlag keeps the flag in process memory.
type MemorySyncFlag struct {
	v atomic.Bool
}

// InProgress implements SyncFlag.
func (f *MemorySyncFlag) InProgress(context.Context) (bool, error) {
	return f.v.Load(), nil
}

// SetInProgress implements SyncFlag.
func (f *MemorySyncFlag) SetInProgress(_ context.Context, inProgress bool) error {
	f.v.Store(inProgress)
	return nil
}
