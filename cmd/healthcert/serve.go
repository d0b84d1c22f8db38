package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hrtools/healthcert/pkg/jobs"
	"github.com/hrtools/healthcert/pkg/reminder"
)

func newServeCmd() *cobra.Command {
	var (
		metricsAddr string
		migrate     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and background job workers",
		Long: `Run the scheduler, which enqueues employee syncs and reminder passes at
the configured hours, together with the workers that execute them. Stops on
SIGINT or SIGTERM after in-flight jobs finish.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if migrate {
				if err := a.migrate(ctx); err != nil {
					return err
				}
			}
			engine, err := a.engine()
			if err != nil {
				return err
			}
			return a.serve(ctx, engine, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the /metrics, /healthz and /readyz listener (disabled when empty)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Migrate the schema before starting")

	return cmd
}

func (a *app) serve(ctx context.Context, syncer jobs.Syncer, metricsAddr string) error {
	store := jobs.NewJobStore(a.db)
	tasks := map[string]jobs.Task{
		jobs.TaskEmployeeSync: jobs.SyncTask(syncer),
		jobs.TaskCertReminder: jobs.ReminderTask(a.planner(reminder.LogNotifier{Logger: a.logger}), nil),
	}
	pool := jobs.NewWorkerPool(store, tasks, a.cfg.JobConfig(), a.metrics, a.logger)
	scheduler := jobs.NewScheduler(store, a.cfg.Schedules(), a.cfg.Jobs.ScheduleTick, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pool.Run(ctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})
	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           a.opsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("metrics listener starting", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.logger.Info("healthcert serving", zap.String("version", version))
	err := g.Wait()
	a.logger.Info("healthcert stopped")
	return err
}

// opsHandler serves Prometheus metrics plus liveness and readiness probes.
// Readiness pings the local database.
func (a *app) opsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := a.db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			a.logger.Warn("readiness check failed", zap.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}
