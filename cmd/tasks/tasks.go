// Package tasks implements the tasks command for inspecting crawl tasks.
package tasks

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/bookwatch/cmd/common"
	internaltasks "github.com/jonesrussell/bookwatch/internal/tasks"
)

// Command returns the tasks command with its list and validate subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect configured crawl tasks",
		Long:  `Inspect the crawl tasks loaded from the tasks file.`,
	}

	cmd.AddCommand(
		newListCommand(),
		newValidateCommand(),
	)

	return cmd
}

// loadRegistry initializes dependencies and loads the tasks file.
func loadRegistry() (*internaltasks.Registry, error) {
	deps, err := common.NewCommandDeps()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	registry, err := internaltasks.NewLoader(deps.Config.Crawler.TasksFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	return registry, nil
}

// newListCommand creates the list subcommand.
func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured tasks in a table",
		RunE: func(_ *cobra.Command, _ []string) error {
			registry, err := loadRegistry()
			if err != nil {
				return err
			}
			renderTasks(registry.Tasks())
			return nil
		},
	}
}

// renderTasks displays the tasks in a formatted table.
func renderTasks(all []internaltasks.Task) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Kind", "Template", "Cron"})

	for i := range all {
		task := &all[i]
		cron := task.Cron
		if cron == "" {
			cron = "-"
		}
		t.AppendRow(table.Row{task.ID, task.Name, task.Kind, task.Template, cron})
	}

	t.Render()
}

// newValidateCommand creates the validate subcommand.
func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate that every task resolves to a fetchable URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry()
			if err != nil {
				return err
			}

			if validateErr := registry.Validate(); validateErr != nil {
				return fmt.Errorf("tasks file is invalid: %w", validateErr)
			}

			cmd.Printf("tasks file is valid: %d tasks\n", len(registry.IDs()))
			return nil
		},
	}
}
