package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lwbackup/internal/backup"
	"lwbackup/internal/config"
	"lwbackup/internal/job"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "lwbackup",
	Short: "Back up search platform configuration archives",
	Long: `lwbackup downloads one configuration export per application per environment
into a date-stamped zip file, once a day or on demand.`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return setupLogging(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, runCmd, planCmd, rollbackCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Environments) == 0 {
		log.Warn().Str("config", configPath).Msg("no environments configured, batches will be empty")
	}
	return cfg, nil
}

func buildManager(cfg config.Config) *job.Manager {
	runner := backup.NewRunner(backup.Options{
		MaxWorkers: cfg.MaxWorkers,
		HTTP: backup.HTTPOptions{
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
		},
	})
	return job.NewManager(job.Options{
		BackupDir: cfg.BackupDir,
		DataDir:   cfg.DataDir,
		Catalog:   cfg.Catalog(),
		Runner:    runner,
	})
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	date, err := time.ParseInLocation(backup.DateLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want %s): %w", raw, backup.DateLayout, err)
	}
	return date, nil
}
