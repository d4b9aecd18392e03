package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lwbackup/internal/backup"
)

var errBatchRolledBack = errors.New("backup batch rolled back")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one backup batch now and exit",
	RunE: func(*cobra.Command, []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		report, err := buildManager(cfg).RunBatch(context.Background())
		if err != nil {
			return err //nolint:wrapcheck
		}
		log.Info().
			Str("batch_id", report.ID).
			Str("date", report.Date).
			Int("succeeded", report.Succeeded).
			Int("failed", report.Failed).
			Msg("backup run complete")
		if report.Status == backup.StatusRolledBack {
			return errBatchRolledBack
		}
		return nil
	},
}
