package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional snretrieve configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	StorNext StorNextConfig `toml:"stornext"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig holds persistent flag defaults. Nil means unset.
type DefaultsConfig struct {
	Parallel    *int    `toml:"parallel"`
	Copy        *int    `toml:"copy"`
	Glacier     *string `toml:"glacier"`
	Force       *bool   `toml:"force"`
	Timeout     *string `toml:"timeout"`
	Verify      *bool   `toml:"verify"`
	BWLimit     *string `toml:"bwlimit"`
	MetricsFile *string `toml:"metrics_file"`
}

// StorNextConfig locates the storage manager tools.
type StorNextConfig struct {
	FSRetrieve *string `toml:"fsretrieve"`
	FSFileInfo *string `toml:"fsfileinfo"`
	BinDir     *string `toml:"bin_dir"`
}

// ThemeConfig holds optional level tag color overrides.
type ThemeConfig struct {
	Debug   *string `toml:"debug"`
	Info    *string `toml:"info"`
	Success *string `toml:"success"`
	Warn    *string `toml:"warn"`
	Error   *string `toml:"error"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "snretrieve", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path; a missing file is not an error.
func LoadFile(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
