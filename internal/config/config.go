package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Environment overrides
const (
	EnvCodexHome      = "CODEX_HOME"
	EnvDatabase       = "CODEXLENS_DB"
	EnvRetainBodies   = "CODEXLENS_RETAIN_BODIES"
	EnvDesktopLogDir  = "CODEXLENS_DESKTOP_LOG_DIR"
	EnvLogLevel       = "CODEXLENS_LOG_LEVEL"
	DefaultChunkSize  = 100
	DefaultListenAddr = "127.0.0.1:7788"
)

// Tuning holds the empirically chosen constants of parsing and correlation
type Tuning struct {
	DuplicateStartWindow      time.Duration `yaml:"duplicate_start_window" json:"duplicateStartWindow"`
	CorrelationWindow         time.Duration `yaml:"correlation_window" json:"correlationWindow"`
	ArgumentContinuationLines int           `yaml:"argument_continuation_lines" json:"argumentContinuationLines"`
	DedupKeyLength            int           `yaml:"dedup_key_length" json:"dedupKeyLength"`
	CorrelateBackgroundEvents bool          `yaml:"correlate_background_events" json:"correlateBackgroundEvents"`
}

// Config is the effective ingestion configuration
type Config struct {
	SourceRoot          string        `yaml:"source_root" json:"sourceRoot"`
	CLILogPath          string        `yaml:"cli_log_path" json:"cliLogPath"`
	DesktopLogDirs      []string      `yaml:"desktop_log_dirs" json:"desktopLogDirs"`
	DatabasePath        string        `yaml:"database_path" json:"databasePath"`
	Full                bool          `yaml:"full" json:"full"`
	RetainMessageBodies bool          `yaml:"retain_message_bodies" json:"retainMessageBodies"`
	ChunkSize           int           `yaml:"chunk_size" json:"chunkSize"`
	LogLevel            string        `yaml:"log_level" json:"logLevel"`
	WatchDebounce       time.Duration `yaml:"watch_debounce" json:"watchDebounce"`
	ListenAddr          string        `yaml:"listen_addr" json:"listenAddr"`
	Tuning              Tuning        `yaml:"tuning" json:"tuning"`

	cliLogSet bool
}

// DefaultTuning returns the stock constants
func DefaultTuning() Tuning {
	return Tuning{
		DuplicateStartWindow:      time.Second,
		CorrelationWindow:         5 * time.Minute,
		ArgumentContinuationLines: 20,
		DedupKeyLength:            24,
	}
}

// Default returns the configuration derived from the runtime alone
func Default(rt *Runtime) *Config {
	return &Config{
		SourceRoot:     rt.CodexHome,
		CLILogPath:     rt.CLILogPath(),
		DesktopLogDirs: rt.DesktopLogDirs(),
		DatabasePath:   rt.DatabasePath(),
		ChunkSize:      DefaultChunkSize,
		LogLevel:       "info",
		WatchDebounce:  2 * time.Second,
		ListenAddr:     DefaultListenAddr,
		Tuning:         DefaultTuning(),
	}
}

// Load builds the configuration from defaults, the YAML file at path (or the
// default location when path is empty) and the environment. A missing file at
// the default location is not an error.
func Load(path string) (*Config, error) {
	rt := DetectRuntime()
	cfg := Default(rt)

	explicit := path != ""
	if !explicit {
		path = rt.ConfigPath()
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize(rt)
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Only keys present in the file override defaults
	var probe struct {
		CLILogPath string `yaml:"cli_log_path"`
	}
	if err := yaml.Unmarshal(data, &probe); err == nil && probe.CLILogPath != "" {
		c.cliLogSet = true
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDatabase); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv(EnvDesktopLogDir); v != "" {
		c.DesktopLogDirs = filepath.SplitList(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvRetainBodies); v != "" {
		retain, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvRetainBodies, v, err)
		}
		c.RetainMessageBodies = retain
	}
	return nil
}

func (c *Config) normalize(rt *Runtime) {
	c.SourceRoot = expandHome(c.SourceRoot, rt.HomeDir)
	c.DatabasePath = expandHome(c.DatabasePath, rt.HomeDir)
	for i, dir := range c.DesktopLogDirs {
		c.DesktopLogDirs[i] = expandHome(dir, rt.HomeDir)
	}
	c.CLILogPath = expandHome(c.CLILogPath, rt.HomeDir)
	if !c.cliLogSet {
		c.CLILogPath = filepath.Join(c.SourceRoot, "log", "codex-tui.log")
	}

	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	def := DefaultTuning()
	if c.Tuning.DuplicateStartWindow <= 0 {
		c.Tuning.DuplicateStartWindow = def.DuplicateStartWindow
	}
	if c.Tuning.CorrelationWindow <= 0 {
		c.Tuning.CorrelationWindow = def.CorrelationWindow
	}
	if c.Tuning.ArgumentContinuationLines <= 0 {
		c.Tuning.ArgumentContinuationLines = def.ArgumentContinuationLines
	}
	if c.Tuning.DedupKeyLength <= 0 || c.Tuning.DedupKeyLength > 64 {
		c.Tuning.DedupKeyLength = def.DedupKeyLength
	}
}

// SetSourceRoot overrides the source root; the CLI log follows it unless it
// was configured explicitly.
func (c *Config) SetSourceRoot(root string) {
	c.SourceRoot = root
	if !c.cliLogSet {
		c.CLILogPath = filepath.Join(root, "log", "codex-tui.log")
	}
}

// SessionsDir is the rollout transcript tree under the source root
func (c *Config) SessionsDir() string {
	return filepath.Join(c.SourceRoot, "sessions")
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
