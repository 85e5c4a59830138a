// Package config resolves Clockwerk configuration from, in increasing
// precedence, the YAML config file, environment variables, and CLI flags.
// Every resolved value records where it came from so `clockwerk stats` and
// support bundles can show effective configuration with provenance.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath   string
	CLIDBPath    string
	CLIBackupDir string
	CLISchedule  string
	CLIRetain    string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath         ResolvedValue `json:"db_path"`
	BackupDir      ResolvedValue `json:"backup_dir"`
	BackupSchedule ResolvedValue `json:"backup_schedule"`
	BackupRetain   ResolvedValue `json:"backup_retain"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	Backup struct {
		Dir      string `yaml:"dir"`
		Schedule string `yaml:"schedule"`
		// Pointer so an explicit `retain: 0` (retention disabled) is
		// distinguishable from the key being absent.
		Retain *int `yaml:"retain"`
	} `yaml:"backup"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clockwerk", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.BackupDir, cfg.Backup.Dir, SourceConfig, path)
		apply(&out.BackupSchedule, cfg.Backup.Schedule, SourceConfig, path)
		if cfg.Backup.Retain != nil {
			apply(&out.BackupRetain, strconv.Itoa(*cfg.Backup.Retain), SourceConfig, path)
		}
	}

	applyEnv(&out.DBPath, "CLOCKWERK_DB")
	applyEnv(&out.BackupDir, "CLOCKWERK_BACKUP_DIR")
	applyEnv(&out.BackupSchedule, "CLOCKWERK_BACKUP_SCHEDULE")
	applyEnv(&out.BackupRetain, "CLOCKWERK_BACKUP_RETAIN")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.BackupDir, opts.CLIBackupDir, SourceCLI, "--backup-dir")
	apply(&out.BackupSchedule, opts.CLISchedule, SourceCLI, "--schedule")
	apply(&out.BackupRetain, opts.CLIRetain, SourceCLI, "--retain")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.BackupDir.Value != "" {
		out.BackupDir.Value = expandUserPath(out.BackupDir.Value)
	}

	return out, nil
}

// RetainCount parses the retention count, defaulting when unset or bad.
func (r ResolvedConfig) RetainCount(fallback int) int {
	v := strings.TrimSpace(r.BackupRetain.Value)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
