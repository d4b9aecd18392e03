package job

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"lwbackup/internal/backup"
)

// StatusInterrupted marks a batch whose process exited before it finished.
const StatusInterrupted backup.Status = "interrupted"

// LoadFromDisk loads persisted reports into memory. A report still marked
// running belongs to a previous process and is marked interrupted.
func (m *Manager) LoadFromDisk() error {
	if m.store == nil {
		return nil
	}
	loaded, err := m.store.LoadReports(context.Background())
	if err != nil {
		return fmt.Errorf("load reports: %w", err)
	}
	for _, report := range loaded {
		if report.Status == backup.StatusRunning {
			report.Status = StatusInterrupted
			if err := m.persist(report); err != nil {
				log.Warn().Str("batch_id", report.ID).Err(err).Msg("persist interrupted report failed")
			}
		}
		m.mu.Lock()
		m.reports[report.ID] = report
		m.mu.Unlock()
	}
	return nil
}
