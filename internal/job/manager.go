package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lwbackup/internal/backup"
)

// BatchRunner executes a batch of tasks and can undo one.
type BatchRunner interface {
	Run(ctx context.Context, tasks []backup.Task, date time.Time) backup.Report
	Rollback(tasks []backup.Task, date time.Time) error
}

// Options configures a Manager.
type Options struct {
	BackupDir string
	DataDir   string
	Catalog   backup.Catalog
	Runner    BatchRunner
}

// Manager runs backup batches one at a time and keeps their reports.
type Manager struct {
	mu        sync.RWMutex
	reports   map[string]*backup.Report
	backupDir string
	catalog   backup.Catalog
	runner    BatchRunner
	semaphore chan struct{}
	workersWG sync.WaitGroup
	baseCtx   context.Context
	store     ReportStore
	now       func() time.Time
}

// NewManager creates a manager with the provided configuration.
func NewManager(opts Options) *Manager {
	return &Manager{
		reports:   make(map[string]*backup.Report),
		backupDir: opts.BackupDir,
		catalog:   opts.Catalog,
		runner:    opts.Runner,
		semaphore: make(chan struct{}, 1),
		baseCtx:   context.Background(),
		store:     NewFileStore(opts.DataDir),
		now:       time.Now,
	}
}

// IsBusy reports whether a batch is currently running.
func (m *Manager) IsBusy() bool {
	return len(m.semaphore) >= cap(m.semaphore)
}

// SetBaseContext sets the context handed to batches started by Trigger.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// UseClock replaces the clock used to stamp batches. Intended for tests.
func (m *Manager) UseClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Plan returns the tasks a batch started on date would run.
func (m *Manager) Plan(date time.Time) []backup.Task {
	return backup.BuildTasks(m.backupDir, m.catalog, date)
}

// RunBatch runs one batch synchronously. It returns ErrBatchInProgress
// without waiting when another batch holds the slot.
func (m *Manager) RunBatch(ctx context.Context) (backup.Report, error) {
	if !m.acquire() {
		return backup.Report{}, ErrBatchInProgress
	}
	m.workersWG.Add(1)
	defer m.workersWG.Done()
	defer m.release()
	id := uuid.NewString()
	startedAt, tasks := m.prepare(id)
	return m.execute(ctx, id, startedAt, tasks), nil
}

// Trigger starts a batch in the background and returns its id.
func (m *Manager) Trigger() (string, error) {
	if !m.acquire() {
		return "", ErrBatchInProgress
	}
	id := uuid.NewString()
	m.mu.RLock()
	ctx := m.baseCtx
	m.mu.RUnlock()

	startedAt, tasks := m.prepare(id)
	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		defer m.release()
		m.execute(ctx, id, startedAt, tasks)
	}()
	return id, nil
}

// WaitAll blocks until in-flight batches finish or the context is done.
// Returns true if all batches finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// RollbackDate deletes every backup file of the catalog for date.
func (m *Manager) RollbackDate(date time.Time) error {
	tasks := m.Plan(date)
	log.Info().Str("date", date.Format(backup.DateLayout)).Int("files", len(tasks)).Msg("rolling back backup files")
	return m.runner.Rollback(tasks, date) //nolint:wrapcheck
}

// Get returns a copy of the report with the given id.
func (m *Manager) Get(id string) (backup.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	report, ok := m.reports[id]
	if !ok {
		return backup.Report{}, ErrReportNotFound
	}
	return *report, nil
}

// List returns up to limit reports, newest first. A limit <= 0 returns all.
func (m *Manager) List(limit int) []backup.Report {
	m.mu.RLock()
	out := make([]backup.Report, 0, len(m.reports))
	for _, report := range m.reports {
		out = append(out, *report)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Last returns the most recently started report.
func (m *Manager) Last() (backup.Report, bool) {
	reports := m.List(1)
	if len(reports) == 0 {
		return backup.Report{}, false
	}
	return reports[0], true
}

func (m *Manager) acquire() bool {
	select {
	case m.semaphore <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Manager) release() { <-m.semaphore }

// prepare stamps a new batch and records it as running. The date is sampled
// once so every file of the batch carries the same stamp even if the batch
// runs past midnight.
func (m *Manager) prepare(id string) (time.Time, []backup.Task) {
	m.mu.RLock()
	now := m.now
	m.mu.RUnlock()

	startedAt := now()
	log.Info().Str("batch_id", id).Time("started_at", startedAt).Msg("start to back up search platform configuration")

	tasks := m.Plan(startedAt)
	m.put(&backup.Report{
		ID:        id,
		Date:      startedAt.Format(backup.DateLayout),
		Status:    backup.StatusRunning,
		StartedAt: startedAt,
		Tasks:     len(tasks),
	})
	return startedAt, tasks
}

// execute runs the prepared batch. A panic escaping the runner is treated
// as a systemic failure: every file of the batch is rolled back and the
// process keeps serving.
func (m *Manager) execute(ctx context.Context, id string, startedAt time.Time, tasks []backup.Task) (report backup.Report) {
	defer func() {
		if v := recover(); v != nil {
			report = m.abort(id, startedAt, tasks, fmt.Errorf("batch panic: %v", v))
		}
	}()

	report = m.runner.Run(ctx, tasks, startedAt)
	report.ID = id
	report.StartedAt = startedAt
	m.put(&report)

	log.Info().
		Str("batch_id", id).
		Str("status", string(report.Status)).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("backup batch finished")
	return report
}

func (m *Manager) abort(id string, startedAt time.Time, tasks []backup.Task, cause error) (report backup.Report) {
	report = backup.Report{
		ID:         id,
		Date:       startedAt.Format(backup.DateLayout),
		Status:     backup.StatusRolledBack,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Tasks:      len(tasks),
		Error:      cause.Error(),
	}
	log.Error().Str("batch_id", id).Err(cause).Msg("backup batch failed, removing every file of the batch")

	defer func() {
		if v := recover(); v != nil {
			log.Error().Str("batch_id", id).Interface("panic", v).Msg("rollback after batch panic failed")
		}
	}()
	if err := m.runner.Rollback(tasks, startedAt); err != nil {
		log.Error().Str("batch_id", id).Err(err).Msg("rollback left files behind")
	}
	m.put(&report)
	return report
}

func (m *Manager) put(report *backup.Report) {
	m.mu.Lock()
	m.reports[report.ID] = report
	m.mu.Unlock()
	if err := m.persist(report); err != nil { // best-effort
		log.Warn().Str("batch_id", report.ID).Err(err).Msg("persist report failed")
	}
}

func (m *Manager) persist(report *backup.Report) error {
	if m.store == nil {
		return nil
	}
	return m.store.SaveReport(context.Background(), report) //nolint:wrapcheck
}
