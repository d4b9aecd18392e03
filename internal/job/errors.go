package job

import "errors"

var (
	ErrBatchInProgress = errors.New("a backup batch is already running")
	ErrReportNotFound  = errors.New("report not found")
)
