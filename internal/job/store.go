package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lwbackup/internal/backup"
	fileutil "lwbackup/internal/file"
)

// ReportStore persists batch reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r *backup.Report) error
	LoadReports(ctx context.Context) ([]*backup.Report, error)
}

// fileStore implements ReportStore as one JSON file per report under dataDir/reports.
type fileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) ReportStore { //nolint:ireturn
	if dataDir == "" {
		dataDir = "data"
	}
	return &fileStore{dataDir: dataDir}
}

func (s *fileStore) reportDir() string {
	return filepath.Join(s.dataDir, "reports")
}

func (s *fileStore) reportPath(id string) string {
	return filepath.Join(s.reportDir(), id+".json")
}

func (s *fileStore) SaveReport(_ context.Context, r *backup.Report) error {
	if r.ID == "" {
		return fmt.Errorf("save report: empty id")
	}
	return fileutil.WriteJSONAtomic(s.reportPath(r.ID), r) //nolint:wrapcheck
}

func (s *fileStore) LoadReports(_ context.Context) ([]*backup.Report, error) {
	entries, err := os.ReadDir(s.reportDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	reports := make([]*backup.Report, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.reportDir(), e.Name())) //nolint:gosec // path is controlled by application
		if err != nil {
			continue
		}
		var r backup.Report
		if err := json.Unmarshal(b, &r); err != nil {
			continue
		}
		reports = append(reports, &r)
	}
	return reports, nil
}
