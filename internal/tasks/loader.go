// Package tasks loads crawl task definitions and resolves their URLs.
package tasks

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoTasks indicates no usable tasks were found in the configuration.
	ErrNoTasks = errors.New("no tasks found in configuration")
	// ErrTaskNotFound indicates the task id is not configured.
	ErrTaskNotFound = errors.New("task not found")
	// ErrMissingTemplate indicates a task references an unknown URL template.
	ErrMissingTemplate = errors.New("missing url template")
	// ErrMissingParam indicates a template placeholder has no value.
	ErrMissingParam = errors.New("missing template parameter")
	// ErrMissingRequiredField indicates a required task field is missing.
	ErrMissingRequiredField = errors.New("missing required field")
)

// Task kinds, matching the endpoint families the parser understands.
const (
	KindRankingList = "ranking-list"
	KindRanking     = "ranking"
)

// DetailTemplate is the well-known template name for book detail fetches.
const DetailTemplate = "book_detail"

// Task defines one crawl target: an endpoint template plus its parameters.
type Task struct {
	ID       string            `mapstructure:"id"       yaml:"id"`
	Name     string            `mapstructure:"name"     yaml:"name"`
	Kind     string            `mapstructure:"kind"     yaml:"kind"`
	Template string            `mapstructure:"template" yaml:"template"`
	Params   map[string]string `mapstructure:"params"   yaml:"params"`
	// Cron, when set, schedules the task automatically on first
	// scheduler boot.
	Cron string `mapstructure:"cron" yaml:"cron"`
	// Data is handed to the job handler on every trigger fire.
	Data map[string]any `mapstructure:"data" yaml:"data"`
}

// tasksFile represents the structure of a tasks YAML file.
type tasksFile struct {
	Templates map[string]string `yaml:"templates"`
	Tasks     []map[string]any  `yaml:"tasks"`
}

// Loader handles loading and validating task configurations.
type Loader struct {
	configPath string
}

// NewLoader creates a new Loader instance.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the tasks file and builds a registry. Tasks that fail to decode
// or validate are skipped; an empty result is an error.
func (l *Loader) Load() (*Registry, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}

	var file tasksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tasks YAML: %w", err)
	}

	registry := &Registry{
		templates: file.Templates,
		tasks:     make(map[string]*Task, len(file.Tasks)),
	}

	for _, raw := range file.Tasks {
		task, convertErr := convertToTask(raw)
		if convertErr != nil {
			continue
		}
		if validateErr := validateTask(task); validateErr != nil {
			continue
		}
		if _, dup := registry.tasks[task.ID]; dup {
			continue
		}
		registry.tasks[task.ID] = task
		registry.order = append(registry.order, task.ID)
	}

	if len(registry.tasks) == 0 {
		return nil, ErrNoTasks
	}

	return registry, nil
}

// convertToTask converts a raw task map to a Task struct.
func convertToTask(src map[string]any) (*Task, error) {
	var task Task
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &task,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if decodeErr := decoder.Decode(src); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode task: %w", decodeErr)
	}

	return &task, nil
}

// validateTask checks the fields every task must carry.
func validateTask(task *Task) error {
	if task.ID == "" {
		return fmt.Errorf("%w: id", ErrMissingRequiredField)
	}
	if task.Template == "" {
		return fmt.Errorf("%w: template", ErrMissingRequiredField)
	}
	switch task.Kind {
	case KindRankingList, KindRanking:
		return nil
	default:
		return fmt.Errorf("%w: kind must be %q or %q", ErrMissingRequiredField, KindRankingList, KindRanking)
	}
}
