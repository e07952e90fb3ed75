// Package config loads historian config from YAML. Env overrides take precedence.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MirrorConfig configures the optional archive mirror to object storage.
type MirrorConfig struct {
	Store      string `yaml:"store"` // "s3", "folder" or "" (disabled)
	Path       string `yaml:"path"`  // folder store root
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	PathStyle  bool   `yaml:"path_style"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	SealKeyHex string `yaml:"seal_key"` // 32-byte hex; empty uploads plaintext
}

// Config holds resolved paths and settings. Paths use XDG defaults when not in file.
type Config struct {
	DbPath           string       `yaml:"db_path"`
	ArchiveDir       string       `yaml:"archive_dir"`
	SocketPath       string       `yaml:"socket_path"`
	BeatSaberAddr    string       `yaml:"beatsaber_addr"`
	PermanentPlayers []string     `yaml:"permanent_players"`
	HandTracking     bool         `yaml:"hand_tracking"`
	LogLevel         string       `yaml:"log_level"`
	LogFile          string       `yaml:"log_file"`
	Mirror           MirrorConfig `yaml:"mirror"`
}

type rawConfig struct {
	DbPath           string       `yaml:"db_path"`
	ArchiveDir       string       `yaml:"archive_dir"`
	SocketPath       string       `yaml:"socket_path"`
	BeatSaberAddr    string       `yaml:"beatsaber_addr"`
	PermanentPlayers []string     `yaml:"permanent_players"`
	HandTracking     *bool        `yaml:"hand_tracking"`
	LogLevel         string       `yaml:"log_level"`
	LogFile          string       `yaml:"log_file"`
	Mirror           MirrorConfig `yaml:"mirror"`
}

// Load reads config from XDG_CONFIG_HOME/bsh/config.yaml. Missing file uses defaults.
// Env overrides: BSH_DB_PATH, BSH_ARCHIVE_DIR, BSH_SOCKET_PATH, BSH_BEATSABER_ADDR.
func Load() (*Config, error) {
	path := filepath.Join(xdgConfigHome(), "bsh", "config.yaml")
	return loadFrom(path, xdgDataHome())
}

// LoadFile reads config from an explicit path. The file must exist.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return loadFrom(path, xdgDataHome())
}

func loadFrom(path, dataHome string) (*Config, error) {
	c := &Config{
		DbPath:        filepath.Join(dataHome, "bsh", "historian.db"),
		ArchiveDir:    filepath.Join(dataHome, "bsh", "archive"),
		SocketPath:    filepath.Join(dataHome, "bsh", "historian.sock"),
		BeatSaberAddr: "127.0.0.1:6557",
		HandTracking:  true,
		LogLevel:      "info",
	}

	b, err := os.ReadFile(path)
	if err == nil {
		var raw rawConfig
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return nil, err
		}
		if raw.DbPath != "" {
			c.DbPath = resolvePath(raw.DbPath, dataHome)
		}
		if raw.ArchiveDir != "" {
			c.ArchiveDir = resolvePath(raw.ArchiveDir, dataHome)
		}
		if raw.SocketPath != "" {
			c.SocketPath = resolvePath(raw.SocketPath, dataHome)
		}
		if raw.BeatSaberAddr != "" {
			c.BeatSaberAddr = raw.BeatSaberAddr
		}
		if len(raw.PermanentPlayers) > 0 {
			c.PermanentPlayers = raw.PermanentPlayers
		}
		if raw.HandTracking != nil {
			c.HandTracking = *raw.HandTracking
		}
		if raw.LogLevel != "" {
			c.LogLevel = raw.LogLevel
		}
		if raw.LogFile != "" {
			c.LogFile = resolvePath(raw.LogFile, dataHome)
		}
		c.Mirror = raw.Mirror
		if c.Mirror.Path != "" {
			c.Mirror.Path = resolvePath(c.Mirror.Path, dataHome)
		}
	}

	// Env overrides
	if v := os.Getenv("BSH_DB_PATH"); v != "" {
		c.DbPath = v
	}
	if v := os.Getenv("BSH_ARCHIVE_DIR"); v != "" {
		c.ArchiveDir = v
	}
	if v := os.Getenv("BSH_SOCKET_PATH"); v != "" {
		c.SocketPath = v
	}
	if v := os.Getenv("BSH_BEATSABER_ADDR"); v != "" {
		c.BeatSaberAddr = v
	}

	return c, nil
}

func xdgDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

func xdgConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

// resolvePath expands $XDG_DATA_HOME, $XDG_CONFIG_HOME, $HOME in paths from config file.
func resolvePath(p, dataHome string) string {
	return filepath.Clean(os.Expand(p, func(key string) string {
		switch key {
		case "XDG_DATA_HOME":
			return dataHome
		case "XDG_CONFIG_HOME":
			return xdgConfigHome()
		case "HOME":
			home, _ := os.UserHomeDir()
			return home
		}
		return ""
	}))
}
