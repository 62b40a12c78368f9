// Package scheduler implements the scheduler daemon command.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/bookwatch/cmd/common"
	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/domain"
	"github.com/jonesrussell/bookwatch/internal/logger"
	internalscheduler "github.com/jonesrussell/bookwatch/internal/scheduler"
	"github.com/jonesrussell/bookwatch/internal/tasks"
)

const signalChannelBufferSize = 1

// Command returns the scheduler command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the job scheduler in the foreground",
		Long: `The scheduler fires persisted jobs on their cron, interval or date
triggers and records every execution. On an empty job table it seeds
one cron job per task that declares a schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	db, err := database.NewPostgresConnection(deps.Config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	jobs := database.NewJobRepository(db)
	executions := database.NewExecutionRepository(db)

	pipeline, err := common.NewPipeline(deps, database.NewSnapshotStore(db))
	if err != nil {
		return fmt.Errorf("failed to build crawl pipeline: %w", err)
	}

	sched := internalscheduler.NewScheduler(
		deps.Logger,
		jobs,
		executions,
		pipeline.Registry,
		pipeline.Metrics,
		deps.Config.Scheduler,
		internalscheduler.HandlerDeps{Runner: pipeline.Orchestrator, Logger: deps.Logger},
	)

	if seedErr := seedJobs(ctx, deps.Logger, jobs, sched, pipeline.Registry); seedErr != nil {
		return seedErr
	}

	if startErr := sched.Start(ctx); startErr != nil {
		return fmt.Errorf("failed to start scheduler: %w", startErr)
	}
	deps.Logger.Info("Scheduler started")

	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	if stopErr := sched.Stop(); stopErr != nil {
		return fmt.Errorf("failed to stop scheduler: %w", stopErr)
	}
	deps.Logger.Info("Scheduler stopped")
	return nil
}

// seedJobs creates one cron job per scheduled task when the job table is
// empty, so a fresh deployment starts crawling without manual setup.
func seedJobs(
	ctx context.Context,
	log logger.Interface,
	jobs database.JobStore,
	sched *internalscheduler.Scheduler,
	registry *tasks.Registry,
) error {
	count, err := jobs.Count(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to count jobs: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, task := range registry.Tasks() {
		if task.Cron == "" {
			continue
		}
		expr := task.Cron
		job := &domain.Job{
			Name:           task.Name,
			TaskID:         task.ID,
			TriggerType:    domain.TriggerCron,
			CronExpression: &expr,
			Enabled:        true,
			MaxRetries:     -1,
		}
		if addErr := sched.AddJob(ctx, job); addErr != nil {
			return fmt.Errorf("failed to seed job for task %s: %w", task.ID, addErr)
		}
		log.Info("Seeded scheduled job", "task", task.ID, "cron", task.Cron)
	}
	return nil
}
