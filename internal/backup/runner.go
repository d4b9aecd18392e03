package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	fileutil "lwbackup/internal/file"
	"lwbackup/internal/metrics"
)

// DefaultMaxWorkers is the pool width used when Options.MaxWorkers is unset.
const DefaultMaxWorkers = 14

// Status is the final state of a batch.
type Status string

const (
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusPartial    Status = "partial"
	StatusRolledBack Status = "rolled_back"
)

// Report summarizes one batch run.
type Report struct {
	ID         string    `json:"id"`
	Date       string    `json:"date"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Tasks      int       `json:"tasks"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Results    []Result  `json:"results,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// DownloadFunc performs one download attempt for a task.
type DownloadFunc func(ctx context.Context, task Task) Result

// Options configures a Runner.
type Options struct {
	MaxWorkers int
	HTTP       HTTPOptions
}

// Runner executes batches of download tasks on a bounded pool.
type Runner struct {
	maxWorkers int
	download   DownloadFunc
	logger     zerolog.Logger
}

// NewRunner creates a Runner that downloads over HTTP.
func NewRunner(opts Options) *Runner {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	return &Runner{
		maxWorkers: opts.MaxWorkers,
		download:   NewDownloader(opts.HTTP).Download,
		logger:     log.Logger,
	}
}

// UseDownloader replaces the download function. Intended for test setup only.
func (r *Runner) UseDownloader(fn DownloadFunc) { r.download = fn }

// UseLogger replaces the logger used for batch and per-file status lines.
func (r *Runner) UseLogger(logger zerolog.Logger) { r.logger = logger }

// Run executes every task once and waits for all of them. A task that fails
// has its own file removed. If the batch machinery itself fails, every file
// of the batch is rolled back.
func (r *Runner) Run(ctx context.Context, tasks []Task, date time.Time) (report Report) {
	report = Report{
		Date:      date.Format(DateLayout),
		Status:    StatusRunning,
		StartedAt: time.Now(),
		Tasks:     len(tasks),
	}
	defer func() {
		report.FinishedAt = time.Now()
		metrics.BatchesTotal.WithLabelValues(string(report.Status)).Inc()
		metrics.BatchDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}()

	results, err := r.execute(context.WithoutCancel(ctx), tasks)
	if err != nil {
		report.Status = StatusRolledBack
		report.Error = err.Error()
		r.logger.Error().Err(err).Str("date", report.Date).Msg("backup batch failed, removing every file of the batch")
		metrics.RollbacksTotal.Inc()
		if rbErr := r.Rollback(tasks, date); rbErr != nil {
			r.logger.Error().Err(rbErr).Str("date", report.Date).Msg("rollback left files behind")
		}
		return report
	}

	report.Results = results
	for i, res := range results {
		task := tasks[i]
		name := task.FileName()
		if res.OK {
			report.Succeeded++
			metrics.DownloadsTotal.WithLabelValues(task.Source.Tag, "succeeded").Inc()
			metrics.DownloadBytesTotal.WithLabelValues(task.Source.Tag).Add(float64(res.Bytes))
			r.logger.Info().Str("file", name).Int64("bytes", res.Bytes).Msg("download succeeded")
			continue
		}
		report.Failed++
		metrics.DownloadsTotal.WithLabelValues(task.Source.Tag, "failed").Inc()
		if err := fileutil.Remove(task.Path()); err != nil {
			r.logger.Warn().Str("file", name).Err(err).Msg("remove failed download")
		}
		r.logger.Info().Str("file", name).Str("reason", res.Err).Msg("download failed")
	}

	report.Status = StatusSucceeded
	if report.Failed > 0 {
		report.Status = StatusPartial
	}
	return report
}

// execute runs the tasks on a fresh pool. The returned error is non-nil only
// for failures outside a single download.
func (r *Runner) execute(ctx context.Context, tasks []Task) ([]Result, error) {
	pool := NewPool(r.maxWorkers)
	defer pool.Shutdown()

	results := make([]Result, len(tasks))
	done := make([]bool, len(tasks))
	for i, task := range tasks {
		err := pool.Go(func() {
			results[i] = r.download(ctx, task)
			done[i] = true
		})
		if err != nil {
			return nil, fmt.Errorf("submit %s: %w", task.FileName(), err)
		}
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	for i, ok := range done {
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingResult, tasks[i].FileName())
		}
	}
	return results, nil
}

// Rollback deletes the file of every task for the given date, whether or not
// that task succeeded. Files that are already gone are skipped.
func (r *Runner) Rollback(tasks []Task, date time.Time) error {
	var errs []error
	for _, task := range tasks {
		path := TargetPath(task.Root, task.Source.Tag, task.App, date)
		if err := fileutil.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
