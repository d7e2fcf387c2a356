package themestatic

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jinzhu/configor"
)

// Config holds the settings of a themed static server. Values come from an
// optional config file, then the environment, then the defaults below.
type Config struct {
	RootDir  string   `json:"rootdir,omitempty" yaml:"rootdir" toml:"rootdir" env:"DIR"`
	Port     int      `json:"port,omitempty" yaml:"port" toml:"port" env:"PORT" default:"8000"`
	Listen   string   `json:"listen,omitempty" yaml:"listen" toml:"listen" env:"LISTEN"`
	Required []string `json:"required,omitempty" yaml:"required" toml:"required"`
	Verbose  bool     `json:"verbose,omitempty" yaml:"verbose" toml:"verbose" env:"VERBOSE"`
}

func CreateConfig() *Config {
	return &Config{}
}

// LoadConfig reads the given config files (missing ones are skipped) and
// applies environment overrides and defaults.
func LoadConfig(files ...string) (*Config, error) {
	config := CreateConfig()
	loader := configor.New(&configor.Config{ENVPrefix: "THEMESTATIC"})
	if err := loader.Load(config, files...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if config.RootDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		config.RootDir = filepath.Join(wd, "public")
	}
	return config, nil
}

// RequiredFiles returns a copy of the configured required list, or of DefaultRequired.
func (c *Config) RequiredFiles() []string {
	if len(c.Required) == 0 {
		return append([]string(nil), DefaultRequired...)
	}
	return append([]string(nil), c.Required...)
}

// Addr is the listen address: Listen when set, otherwise all interfaces on Port.
func (c *Config) Addr() string {
	if c.Listen != "" {
		return c.Listen
	}
	return fmt.Sprintf(":%d", c.Port)
}

// Root resolves RootDir to an absolute path and checks that it is a directory.
func (c *Config) Root() (string, error) {
	if c.RootDir == "" {
		return "", fmt.Errorf("rootdir cannot be empty")
	}
	dir, err := filepath.Abs(c.RootDir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", c.RootDir, err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("directory not found: %s", dir)
	}
	return dir, nil
}
