package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planDate string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the downloads a batch would perform",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		date, err := parseDate(planDate)
		if err != nil {
			return err
		}
		for _, task := range buildManager(cfg).Plan(date) {
			fmt.Fprintf(cmd.OutOrStdout(), "%-5s %-30s %s\n", task.Source.Tag, task.App, task.Path())
		}
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planDate, "date", "", "batch date (YYYY-MM-DD), defaults to today")
}
