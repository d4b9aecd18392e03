package backup

import (
	"path/filepath"
	"time"
)

// DateLayout is the date stamp embedded in every backup file name.
const DateLayout = "2006-01-02"

// Source describes one remote environment of the search platform.
type Source struct {
	Credential string // base64 "user:password", sent as Basic auth
	Endpoint   string // export URL, the app name is appended to it
	Tag        string // short environment tag, e.g. "dev"
}

// Environment pairs a Source with the applications exported from it.
type Environment struct {
	Source Source
	Apps   []string
}

// Catalog is the ordered list of environments backed up by every batch.
type Catalog []Environment

// Task is a single archive download.
type Task struct {
	Source Source
	App    string
	Root   string
	Date   time.Time
}

// Path returns the file the task downloads into.
func (t Task) Path() string { return TargetPath(t.Root, t.Source.Tag, t.App, t.Date) }

// FileName returns the base name of Path.
func (t Task) FileName() string { return filepath.Base(t.Path()) }

// URL returns the export URL for the task's application.
func (t Task) URL() string { return t.Source.Endpoint + t.App }

// Result is the outcome of a single Task.
type Result struct {
	Path  string `json:"path"`
	OK    bool   `json:"ok"`
	Bytes int64  `json:"bytes,omitempty"`
	Err   string `json:"error,omitempty"`
}

// TargetPath computes {root}/lw{tag}{app}_{YYYY-MM-DD}.zip.
func TargetPath(root, tag, app string, date time.Time) string {
	return filepath.Join(root, "lw"+tag+app+"_"+date.Format(DateLayout)+".zip")
}

// BuildTasks expands the catalog into one task per (environment, app),
// keeping catalog order. All tasks share the given date.
func BuildTasks(root string, catalog Catalog, date time.Time) []Task {
	var n int
	for _, env := range catalog {
		n += len(env.Apps)
	}
	tasks := make([]Task, 0, n)
	for _, env := range catalog {
		for _, app := range env.Apps {
			tasks = append(tasks, Task{Source: env.Source, App: app, Root: root, Date: date})
		}
	}
	return tasks
}
