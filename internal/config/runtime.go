package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Runtime describes where Codex and codexlens keep their files on this host
type Runtime struct {
	HomeDir   string
	CodexHome string
	StateDir  string
}

// DetectRuntime determines the home, Codex and codexlens state directories
func DetectRuntime() *Runtime {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = "."
		}
	}

	codexHome := os.Getenv("CODEX_HOME")
	if codexHome == "" {
		codexHome = filepath.Join(homeDir, ".codex")
	}

	return &Runtime{
		HomeDir:   homeDir,
		CodexHome: codexHome,
		StateDir:  filepath.Join(homeDir, ".codexlens"),
	}
}

// CLILogPath is the CLI's own free-text log
func (rt *Runtime) CLILogPath() string {
	return filepath.Join(rt.CodexHome, "log", "codex-tui.log")
}

// DatabasePath is the default SQLite database location
func (rt *Runtime) DatabasePath() string {
	return filepath.Join(rt.StateDir, "codexlens.db")
}

// ConfigPath is the default YAML config location
func (rt *Runtime) ConfigPath() string {
	return filepath.Join(rt.StateDir, "config.yaml")
}

// DesktopLogDirs returns the platform locations the desktop app writes logs to
func (rt *Runtime) DesktopLogDirs() []string {
	return desktopLogDirs(runtime.GOOS, rt.HomeDir)
}

func desktopLogDirs(goos, homeDir string) []string {
	switch goos {
	case "darwin":
		return []string{filepath.Join(homeDir, "Library", "Logs", "Codex")}
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(homeDir, "AppData", "Local")
		}
		return []string{filepath.Join(base, "Codex", "logs")}
	default:
		base := os.Getenv("XDG_STATE_HOME")
		if base == "" {
			base = filepath.Join(homeDir, ".local", "state")
		}
		return []string{filepath.Join(base, "Codex", "logs")}
	}
}
