package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var rollbackDate string

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Delete every backup file of the given date",
	RunE: func(*cobra.Command, []string) error {
		if rollbackDate == "" {
			return errors.New("--date is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		date, err := parseDate(rollbackDate)
		if err != nil {
			return err
		}
		return buildManager(cfg).RollbackDate(date) //nolint:wrapcheck
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackDate, "date", "", "date of the batch to remove (YYYY-MM-DD)")
}
