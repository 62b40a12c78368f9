package tasks

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches {name} segments in URL templates.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Registry resolves task ids to definitions and builds their URLs.
type Registry struct {
	templates map[string]string
	tasks     map[string]*Task
	order     []string
}

// NewRegistry builds a registry directly from definitions. Used by tests; the
// production path goes through Loader.Load.
func NewRegistry(templates map[string]string, defs []Task) *Registry {
	r := &Registry{
		templates: templates,
		tasks:     make(map[string]*Task, len(defs)),
	}
	for i := range defs {
		task := defs[i]
		if _, dup := r.tasks[task.ID]; dup {
			continue
		}
		r.tasks[task.ID] = &task
		r.order = append(r.order, task.ID)
	}
	return r
}

// Get returns the task for id.
func (r *Registry) Get(id string) (*Task, error) {
	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, nil
}

// IDs returns all task ids in file order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Tasks returns all tasks in file order.
func (r *Registry) Tasks() []Task {
	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tasks[id])
	}
	return out
}

// BuildURL resolves a task's URL template with its parameters.
func (r *Registry) BuildURL(task *Task) (string, error) {
	template, ok := r.templates[task.Template]
	if !ok {
		return "", fmt.Errorf("%w: task %s references %q", ErrMissingTemplate, task.ID, task.Template)
	}
	return expand(template, task.Params)
}

// BookDetailURL builds the detail fetch URL for one book.
func (r *Registry) BookDetailURL(bookID string) (string, error) {
	template, ok := r.templates[DetailTemplate]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingTemplate, DetailTemplate)
	}
	return expand(template, map[string]string{"book_id": bookID})
}

// Validate checks that every task's URL resolves. Used by the tasks CLI.
func (r *Registry) Validate() error {
	for _, id := range r.order {
		if _, err := r.BuildURL(r.tasks[id]); err != nil {
			return err
		}
	}
	if _, ok := r.templates[DetailTemplate]; !ok {
		return fmt.Errorf("%w: %q", ErrMissingTemplate, DetailTemplate)
	}
	return nil
}

// expand substitutes {name} placeholders from params. Every placeholder must
// resolve.
func expand(template string, params map[string]string) (string, error) {
	var missing []string
	resolved := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, strings.Join(missing, ", "))
	}
	return resolved, nil
}
