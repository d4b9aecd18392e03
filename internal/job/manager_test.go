package job

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwbackup/internal/backup"
)

var fixedNow = time.Date(2024, time.May, 1, 23, 59, 59, 0, time.Local)

func testCatalog() backup.Catalog {
	return backup.Catalog{
		{Source: backup.Source{Credential: "ZGV2", Endpoint: "https://dev.example.org/export?app.ids=", Tag: "dev"}, Apps: []string{"shop", "shop_app1"}},
		{Source: backup.Source{Credential: "c3Rn", Endpoint: "https://stg.example.org/export?app.ids=", Tag: "stg"}},
		{Source: backup.Source{Credential: "cHJk", Endpoint: "https://example.org/export?app.ids=", Tag: "prod"}, Apps: []string{"shop"}},
	}
}

type fakeRunner struct {
	mu        sync.Mutex
	block     chan struct{}
	panicRun  bool
	runs      [][]backup.Task
	rollbacks int
}

func (f *fakeRunner) Run(_ context.Context, tasks []backup.Task, date time.Time) backup.Report {
	if f.block != nil {
		<-f.block
	}
	if f.panicRun {
		panic("result loop exploded")
	}
	f.mu.Lock()
	f.runs = append(f.runs, tasks)
	f.mu.Unlock()
	return backup.Report{Date: date.Format(backup.DateLayout), Status: backup.StatusSucceeded, Tasks: len(tasks), Succeeded: len(tasks)}
}

func (f *fakeRunner) Rollback(_ []backup.Task, _ time.Time) error {
	f.mu.Lock()
	f.rollbacks++
	f.mu.Unlock()
	return nil
}

func newTestManager(t *testing.T, runner BatchRunner) (*Manager, string) {
	t.Helper()
	dataDir := t.TempDir()
	m := NewManager(Options{BackupDir: t.TempDir(), DataDir: dataDir, Catalog: testCatalog(), Runner: runner})
	m.UseClock(func() time.Time { return fixedNow })
	return m, dataDir
}

func TestRunBatchBuildsTasksForOneDate(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	report, err := m.RunBatch(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, backup.StatusSucceeded, report.Status)
	assert.Equal(t, "2024-05-01", report.Date)
	require.Len(t, runner.runs, 1)
	require.Len(t, runner.runs[0], 3)
	for _, task := range runner.runs[0] {
		assert.Equal(t, fixedNow, task.Date)
	}

	got, err := m.Get(report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Status, got.Status)
}

func TestSecondBatchRejectedWhileRunning(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	m, _ := newTestManager(t, runner)

	id, err := m.Trigger()
	require.NoError(t, err)
	assert.True(t, m.IsBusy())

	_, err = m.RunBatch(context.Background())
	assert.ErrorIs(t, err, ErrBatchInProgress)
	_, err = m.Trigger()
	assert.ErrorIs(t, err, ErrBatchInProgress)

	running, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, backup.StatusRunning, running.Status)

	close(runner.block)
	require.True(t, m.WaitAll(context.Background()))
	assert.False(t, m.IsBusy())

	done, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, backup.StatusSucceeded, done.Status)
}

func TestListNewestFirst(t *testing.T) {
	m, _ := newTestManager(t, &fakeRunner{})
	for i := 0; i < 3; i++ {
		at := fixedNow.Add(time.Duration(i) * time.Hour)
		m.UseClock(func() time.Time { return at })
		_, err := m.RunBatch(context.Background())
		require.NoError(t, err)
	}

	reports := m.List(2)
	require.Len(t, reports, 2)
	assert.True(t, reports[0].StartedAt.After(reports[1].StartedAt))

	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, reports[0].ID, last.ID)

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestPersistAndLoadFromDisk(t *testing.T) {
	m, dataDir := newTestManager(t, &fakeRunner{})
	done, err := m.RunBatch(context.Background())
	require.NoError(t, err)

	stale := &backup.Report{ID: "stale", Status: backup.StatusRunning, StartedAt: fixedNow.Add(-24 * time.Hour)}
	require.NoError(t, m.persist(stale))

	m2 := NewManager(Options{DataDir: dataDir, Catalog: testCatalog(), Runner: &fakeRunner{}})
	require.NoError(t, m2.LoadFromDisk())

	got, err := m2.Get(done.ID)
	require.NoError(t, err)
	assert.Equal(t, backup.StatusSucceeded, got.Status)

	interrupted, err := m2.Get("stale")
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, interrupted.Status)
}

func TestRollbackDateUsesCatalog(t *testing.T) {
	runner := backup.NewRunner(backup.Options{MaxWorkers: 2})
	runner.UseLogger(zerolog.Nop())
	m, _ := newTestManager(t, runner)

	day := fixedNow.AddDate(0, 0, -3)
	for _, task := range m.Plan(day) {
		require.NoError(t, os.WriteFile(task.Path(), []byte("zip"), 0o600))
	}

	require.NoError(t, m.RollbackDate(day))
	for _, task := range m.Plan(day) {
		_, err := os.Stat(task.Path())
		assert.True(t, os.IsNotExist(err), "%s should be removed", task.FileName())
	}
}

func TestRunBatchEndToEndWithFakeDownloads(t *testing.T) {
	runner := backup.NewRunner(backup.Options{MaxWorkers: 3})
	runner.UseLogger(zerolog.Nop())
	runner.UseDownloader(func(_ context.Context, task backup.Task) backup.Result {
		if err := os.WriteFile(task.Path(), []byte(task.App), 0o600); err != nil {
			return backup.Result{Path: task.Path(), Err: err.Error()}
		}
		return backup.Result{Path: task.Path(), OK: task.App != "shop_app1"}
	})
	m, _ := newTestManager(t, runner)

	report, err := m.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, backup.StatusPartial, report.Status)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	for _, task := range m.Plan(fixedNow) {
		_, statErr := os.Stat(task.Path())
		assert.Equal(t, task.App != "shop_app1", statErr == nil, task.FileName())
	}
}

func TestWaitAllCoversSynchronousBatch(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	m, _ := newTestManager(t, runner)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _ = m.RunBatch(context.Background())
	}()
	require.Eventually(t, m.IsBusy, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.False(t, m.WaitAll(ctx), "shutdown must wait for a batch started by the schedule")

	close(runner.block)
	require.True(t, m.WaitAll(context.Background()))
	<-finished
	assert.False(t, m.IsBusy())
}

func TestRunBatchRecoversRunnerPanic(t *testing.T) {
	runner := &fakeRunner{panicRun: true}
	m, _ := newTestManager(t, runner)

	report, err := m.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, backup.StatusRolledBack, report.Status)
	assert.Contains(t, report.Error, "result loop exploded")
	assert.Equal(t, 3, report.Tasks)
	assert.Equal(t, 1, runner.rollbacks)
	assert.False(t, m.IsBusy(), "batch slot must be released after a panic")

	stored, err := m.Get(report.ID)
	require.NoError(t, err)
	assert.Equal(t, backup.StatusRolledBack, stored.Status)

	runner.panicRun = false
	next, err := m.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backup.StatusSucceeded, next.Status)
}
