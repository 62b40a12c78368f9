package tasks_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/bookwatch/internal/tasks"
)

const tasksYAML = `
templates:
  ranking_list: "https://api.example.com/v1/rankings?board={board}&size={size}"
  book_detail: "https://api.example.com/v1/books/{book_id}"

tasks:
  - id: weekly-hot
    name: Weekly Hot
    kind: ranking-list
    template: ranking_list
    params:
      board: weekly
      size: 50
    data:
      priority: high

  - id: monthly-ticket
    name: Monthly Tickets
    kind: ranking
    template: ranking_list
    params:
      board: monthly
      size: 20

  - id: broken
    name: No Kind
    template: ranking_list
`

func writeTasksFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTasksFile(t *testing.T) {
	registry, err := tasks.NewLoader(writeTasksFile(t, tasksYAML)).Load()
	require.NoError(t, err)

	// The entry without a kind is skipped, the rest load in file order.
	assert.Equal(t, []string{"weekly-hot", "monthly-ticket"}, registry.IDs())

	task, err := registry.Get("weekly-hot")
	require.NoError(t, err)
	assert.Equal(t, "Weekly Hot", task.Name)
	assert.Equal(t, tasks.KindRankingList, task.Kind)
	assert.Equal(t, "high", task.Data["priority"])
	// Numeric params decode weakly into strings.
	assert.Equal(t, "50", task.Params["size"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := tasks.NewLoader(filepath.Join(t.TempDir(), "nope.yml")).Load()
	require.Error(t, err)
}

func TestLoadNoUsableTasks(t *testing.T) {
	_, err := tasks.NewLoader(writeTasksFile(t, "templates: {}\ntasks: []\n")).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, tasks.ErrNoTasks))
}

func TestGetUnknownTask(t *testing.T) {
	registry, err := tasks.NewLoader(writeTasksFile(t, tasksYAML)).Load()
	require.NoError(t, err)

	_, err = registry.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tasks.ErrTaskNotFound))
}

func TestBuildURL(t *testing.T) {
	registry, err := tasks.NewLoader(writeTasksFile(t, tasksYAML)).Load()
	require.NoError(t, err)

	task, err := registry.Get("weekly-hot")
	require.NoError(t, err)

	url, err := registry.BuildURL(task)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/rankings?board=weekly&size=50", url)
}

func TestBuildURLMissingTemplate(t *testing.T) {
	registry := tasks.NewRegistry(map[string]string{}, []tasks.Task{
		{ID: "t", Kind: tasks.KindRanking, Template: "nowhere"},
	})

	task, err := registry.Get("t")
	require.NoError(t, err)

	_, err = registry.BuildURL(task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tasks.ErrMissingTemplate))
}

func TestBuildURLMissingParam(t *testing.T) {
	registry := tasks.NewRegistry(
		map[string]string{"r": "https://x/{board}/{page}"},
		[]tasks.Task{{ID: "t", Kind: tasks.KindRanking, Template: "r", Params: map[string]string{"board": "b"}}},
	)

	task, err := registry.Get("t")
	require.NoError(t, err)

	_, err = registry.BuildURL(task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tasks.ErrMissingParam))
	assert.Contains(t, err.Error(), "page")
}

func TestBookDetailURL(t *testing.T) {
	registry, err := tasks.NewLoader(writeTasksFile(t, tasksYAML)).Load()
	require.NoError(t, err)

	url, err := registry.BookDetailURL("1001")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/books/1001", url)
}

func TestValidate(t *testing.T) {
	registry, err := tasks.NewLoader(writeTasksFile(t, tasksYAML)).Load()
	require.NoError(t, err)
	assert.NoError(t, registry.Validate())

	broken := tasks.NewRegistry(
		map[string]string{"r": "https://x/{board}"},
		[]tasks.Task{{ID: "t", Kind: tasks.KindRanking, Template: "r"}},
	)
	assert.Error(t, broken.Validate())
}
