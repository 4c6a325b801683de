package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// GetConfigDir is ~/.config/loki on every platform, matching the settings
// path printed by loki init.
func GetConfigDir() string {
	return filepath.Join(GetHomeDir(), ".config", "loki")
}

// GetDefaultDataDir is where the database, per-caller data and workspace
// live when data_directory is not set.
func GetDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "loki")
		}
	}
	return filepath.Join(GetHomeDir(), ".local", "share", "loki")
}

func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

func GetHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return string(filepath.Separator)
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		path = filepath.Join(GetHomeDir(), path[2:])
	}

	path = os.ExpandEnv(path)

	return filepath.Clean(path)
}

// EnsureDir creates a directory if it doesn't exist (0700 - user-only access)
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
