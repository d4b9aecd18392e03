package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lwbackup/internal/backup"
)

const (
	defaultPort           = 8080
	defaultDataDir        = "data"
	defaultBackupDir      = "/home/lwConfigBackup"
	defaultMaxWorkers     = 14
	defaultSchedule       = "00:00"
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 40 * time.Second
)

// Config describes runtime configuration for the backup service.
type Config struct {
	Port           int           `yaml:"port"`
	DataDir        string        `yaml:"data_dir"`
	BackupDir      string        `yaml:"backup_dir"`
	MaxWorkers     int           `yaml:"max_workers"`
	Schedule       string        `yaml:"schedule"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	Environments   []Environment `yaml:"environments"`
}

// Environment is one remote deployment of the search platform together with
// the applications whose configuration gets exported from it.
type Environment struct {
	Tag           string   `yaml:"tag"`
	Endpoint      string   `yaml:"endpoint"`
	Credential    string   `yaml:"credential"`
	CredentialEnv string   `yaml:"credential_env"`
	Apps          []string `yaml:"apps"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:           defaultPort,
		DataDir:        defaultDataDir,
		BackupDir:      defaultBackupDir,
		MaxWorkers:     defaultMaxWorkers,
		Schedule:       defaultSchedule,
		ConnectTimeout: defaultConnectTimeout,
		ReadTimeout:    defaultReadTimeout,
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = defaultBackupDir
	}
	cfg.Schedule = strings.TrimSpace(cfg.Schedule)
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	for i := range cfg.Environments {
		env := &cfg.Environments[i]
		env.Tag = strings.TrimSpace(env.Tag)
		env.Endpoint = strings.TrimSpace(env.Endpoint)
		if env.Credential == "" && env.CredentialEnv != "" {
			env.Credential = os.Getenv(env.CredentialEnv)
		}
		apps := make([]string, 0, len(env.Apps))
		for _, app := range env.Apps {
			if app = strings.TrimSpace(app); app != "" {
				apps = append(apps, app)
			}
		}
		env.Apps = apps
	}
}

// Validate reports the first problem that would make a batch misbehave:
// a duplicated tag or app would make two tasks share one backup file.
func (c Config) Validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("invalid max_workers: %d (must be >= 1)", c.MaxWorkers)
	}
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("invalid timeouts: connect=%s read=%s (must be > 0)", c.ConnectTimeout, c.ReadTimeout)
	}
	if _, _, err := ParseClock(c.Schedule); err != nil {
		return err
	}
	tags := make(map[string]struct{}, len(c.Environments))
	for i, env := range c.Environments {
		if env.Tag == "" {
			return fmt.Errorf("environment #%d: empty tag", i+1)
		}
		if _, dup := tags[env.Tag]; dup {
			return fmt.Errorf("environment %q: duplicate tag", env.Tag)
		}
		tags[env.Tag] = struct{}{}
		if env.Endpoint == "" {
			return fmt.Errorf("environment %q: empty endpoint", env.Tag)
		}
		apps := make(map[string]struct{}, len(env.Apps))
		for _, app := range env.Apps {
			if _, dup := apps[app]; dup {
				return fmt.Errorf("environment %q: duplicate app %q", env.Tag, app)
			}
			apps[app] = struct{}{}
		}
	}
	return nil
}

// ParseClock parses a "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule %q (want HH:MM): %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Catalog converts the configured environments into the batch catalog,
// keeping their order.
func (c Config) Catalog() backup.Catalog {
	catalog := make(backup.Catalog, 0, len(c.Environments))
	for _, env := range c.Environments {
		catalog = append(catalog, backup.Environment{
			Source: backup.Source{Credential: env.Credential, Endpoint: env.Endpoint, Tag: env.Tag},
			Apps:   append([]string(nil), env.Apps...),
		})
	}
	return catalog
}
