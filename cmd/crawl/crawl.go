// Package crawl implements the crawl command for running tasks once.
package crawl

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/bookwatch/cmd/common"
	"github.com/jonesrussell/bookwatch/internal/database"
	"github.com/jonesrussell/bookwatch/internal/domain"
)

var (
	errSelectTasks = errors.New("exactly one of --task or --all is required")
	errCrawlFailed = errors.New("crawl finished with failures")
)

// Command returns the crawl command for use in the root command.
func Command() *cobra.Command {
	var (
		taskID string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run crawl tasks once and exit",
		Long: `Crawl resolves the selected tasks, fetches their ranking pages and the
listed book details, and persists one snapshot batch per task.

Exactly one of --task or --all must be given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (taskID == "" && !all) || (taskID != "" && all) {
				return errSelectTasks
			}

			deps, err := common.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			db, err := database.NewPostgresConnection(deps.Config.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			pipeline, err := common.NewPipeline(deps, database.NewSnapshotStore(db))
			if err != nil {
				return fmt.Errorf("failed to build crawl pipeline: %w", err)
			}

			ids := []string{taskID}
			if all {
				ids = pipeline.Registry.IDs()
			}

			results := make([]*domain.CrawlResult, 0, len(ids))
			failures := 0
			for _, id := range ids {
				result := pipeline.Orchestrator.Run(cmd.Context(), id)
				results = append(results, result)
				if !result.Success {
					failures++
				}
			}

			renderResults(results)

			if failures > 0 {
				return fmt.Errorf("%w: %d of %d tasks failed", errCrawlFailed, failures, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "task id to run")
	cmd.Flags().BoolVar(&all, "all", false, "run every configured task")

	return cmd
}

// renderResults prints one row per task run.
func renderResults(results []*domain.CrawlResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Task", "Status", "Books", "Duration", "Error"})

	for _, result := range results {
		status := "ok"
		if !result.Success {
			status = "failed"
		}
		t.AppendRow(table.Row{
			result.TaskID,
			status,
			result.BooksCrawled,
			result.ExecutionTime.Round(time.Millisecond),
			result.Error,
		})
	}

	t.Render()
}
