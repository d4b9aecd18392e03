package backup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2024, time.March, 7, 23, 59, 30, 0, time.Local)

func testCatalog(dev, stg, prod []string) Catalog {
	return Catalog{
		{Source: Source{Credential: "ZGV2", Endpoint: "https://dev.example.org/export?app.ids=", Tag: "dev"}, Apps: dev},
		{Source: Source{Credential: "c3Rn", Endpoint: "https://stg.example.org/export?app.ids=", Tag: "stg"}, Apps: stg},
		{Source: Source{Credential: "cHJk", Endpoint: "https://example.org/export?app.ids=", Tag: "prod"}, Apps: prod},
	}
}

func TestTargetPathIsDeterministic(t *testing.T) {
	root := filepath.Join("backups", "lw")
	first := TargetPath(root, "dev", "shop_app1", testDate)
	second := TargetPath(root, "dev", "shop_app1", testDate)

	assert.Equal(t, filepath.Join(root, "lwdevshop_app1_2024-03-07.zip"), first)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, TargetPath(root, "stg", "shop_app1", testDate))
	assert.NotEqual(t, first, TargetPath(root, "dev", "shop_app1", testDate.AddDate(0, 0, 1)))
}

func TestTaskHelpers(t *testing.T) {
	task := Task{Source: Source{Endpoint: "https://dev.example.org/export?app.ids=", Tag: "dev"}, App: "shop", Root: "/backups", Date: testDate}

	assert.Equal(t, "https://dev.example.org/export?app.ids=shop", task.URL())
	assert.Equal(t, "lwdevshop_2024-03-07.zip", task.FileName())
	assert.Equal(t, TargetPath("/backups", "dev", "shop", testDate), task.Path())
}

func TestBuildTasksPreservesCatalogOrder(t *testing.T) {
	catalog := testCatalog([]string{"a", "b", "c"}, []string{"d", "e"}, []string{"f"})
	tasks := BuildTasks("/backups", catalog, testDate)

	require.Len(t, tasks, 6)
	want := []struct{ tag, app string }{
		{"dev", "a"}, {"dev", "b"}, {"dev", "c"}, {"stg", "d"}, {"stg", "e"}, {"prod", "f"},
	}
	for i, w := range want {
		assert.Equal(t, w.tag, tasks[i].Source.Tag, "task %d", i)
		assert.Equal(t, w.app, tasks[i].App, "task %d", i)
		assert.Equal(t, testDate, tasks[i].Date, "task %d", i)
	}

	seen := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		_, dup := seen[task.Path()]
		assert.False(t, dup, "duplicate path %s", task.Path())
		seen[task.Path()] = struct{}{}
	}
}

func TestBuildTasksSkipsEmptyEnvironments(t *testing.T) {
	tasks := BuildTasks("/backups", testCatalog([]string{"app1"}, nil, []string{"app1"}), testDate)

	require.Len(t, tasks, 2)
	assert.Equal(t, "dev", tasks[0].Source.Tag)
	assert.Equal(t, "prod", tasks[1].Source.Tag)
	assert.Equal(t, "app1", tasks[0].App)
	assert.Equal(t, "app1", tasks[1].App)
}

func TestBuildTasksEmptyCatalog(t *testing.T) {
	assert.Empty(t, BuildTasks("/backups", nil, testDate))
}
