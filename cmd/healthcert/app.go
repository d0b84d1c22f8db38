package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hrtools/healthcert/pkg/certificate"
	"github.com/hrtools/healthcert/pkg/config"
	"github.com/hrtools/healthcert/pkg/dashboard"
	"github.com/hrtools/healthcert/pkg/database"
	"github.com/hrtools/healthcert/pkg/directory"
	"github.com/hrtools/healthcert/pkg/ha"
	"github.com/hrtools/healthcert/pkg/jobs"
	"github.com/hrtools/healthcert/pkg/logging"
	"github.com/hrtools/healthcert/pkg/metrics"
	"github.com/hrtools/healthcert/pkg/reminder"
	"github.com/hrtools/healthcert/pkg/sysconfig"
)

// app holds the wiring shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *gorm.DB
	rosterDB *gorm.DB
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	flag     directory.SyncFlag
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DatabaseOptions())
	if err != nil {
		return nil, err
	}
	return wireApp(cfg, logger, db), nil
}

func wireApp(cfg *config.Config, logger *zap.Logger, db *gorm.DB) *app {
	reg := prometheus.NewRegistry()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		registry: reg,
		metrics:  metrics.New(reg),
	}
	if cfg.Sync.Flag == config.FlagBackendMemory {
		a.flag = &directory.MemorySyncFlag{}
	} else {
		a.flag = directory.NewConfigSyncFlag(sysconfig.NewStore(db))
	}
	return a
}

func (a *app) close() {
	for _, db := range []*gorm.DB{a.db, a.rosterDB} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.logger.Sync()
}

// migrate creates or updates every table under the migration lock.
func (a *app) migrate(ctx context.Context) error {
	locker, err := ha.NewMigrationLocker(a.db, ha.LockOptions{Logger: a.logger})
	if err != nil {
		return err
	}
	return locker.WithLock(ctx, func() error {
		steps := []func() error{
			sysconfig.NewStore(a.db).AutoMigrate,
			directory.NewEmployeeStore(a.db).AutoMigrate,
			directory.NewDepartmentStore(a.db).AutoMigrate,
			certificate.NewCertificateStore(a.db).AutoMigrate,
			certificate.NewLockStore(a.db).AutoMigrate,
			jobs.NewJobStore(a.db).AutoMigrate,
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		a.logger.Info("schema migrated")
		return nil
	})
}

func (a *app) roster() (directory.RosterSource, error) {
	if a.rosterDB == nil {
		if a.cfg.Roster.DSN == "" {
			return nil, errors.New("roster.dsn is not configured")
		}
		db, err := database.Open(a.cfg.RosterOptions())
		if err != nil {
			return nil, fmt.Errorf("open roster database: %w", err)
		}
		a.rosterDB = db
	}
	return directory.NewGormRosterSource(a.rosterDB, a.cfg.Roster.Table), nil
}

func (a *app) engine() (*directory.Engine, error) {
	src, err := a.roster()
	if err != nil {
		return nil, err
	}
	return a.engineWith(src), nil
}

func (a *app) engineWith(src directory.RosterSource) *directory.Engine {
	return directory.NewEngine(a.db, src, a.flag,
		directory.WithLogger(a.logger),
		directory.WithMetrics(a.metrics))
}

func (a *app) manager() *certificate.Manager {
	return certificate.NewManager(a.db, directory.NewEmployeeStore(a.db),
		certificate.WithLockTTL(a.cfg.Lock.TTL),
		certificate.WithMetrics(a.metrics),
		certificate.WithLogger(a.logger))
}

func (a *app) planner(n reminder.Notifier) *reminder.Planner {
	return reminder.NewPlanner(a.db, n,
		reminder.WithDays(a.cfg.Reminder.Days),
		reminder.WithSettings(sysconfig.NewStore(a.db)),
		reminder.WithMetrics(a.metrics),
		reminder.WithLogger(a.logger))
}

func (a *app) dashboard() *dashboard.Service {
	return dashboard.NewService(a.db, a.cfg.Dashboard.CacheTTL, a.logger)
}
