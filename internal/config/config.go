package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	BDL     BDL     `yaml:"bdl"`
	Dataset Dataset `yaml:"dataset"`
	Cache   Cache   `yaml:"cache"`
	Charts  Charts  `yaml:"charts"`
	Output  Output  `yaml:"output"`
}

type BDL struct {
	BaseURL     string `yaml:"base_url"`
	ClientIDEnv string `yaml:"client_id_env"`
}

type Dataset struct {
	StartYear int `yaml:"start_year"`
}

type Cache struct {
	Dir         string `yaml:"dir"`
	MaxAgeHours int    `yaml:"max_age_hours"`
}

type Charts struct {
	Dir string `yaml:"dir"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

// ConfigDir returns the XDG config directory for regiolens.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "regiolens")
}

// DataDir returns the XDG data directory for regiolens.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "regiolens")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/regiolens/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'regiolens init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		BDL: BDL{
			BaseURL:     "https://bdl.stat.gov.pl/api/v1",
			ClientIDEnv: "BDL_CLIENT_ID",
		},
		Dataset: Dataset{StartYear: 2015},
		Cache:   Cache{MaxAgeHours: 168},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetCacheDir returns the effective dataset cache directory.
func (c *Config) GetCacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return filepath.Join(c.GetDataDir(), "cache")
}

// GetChartsDir returns the effective chart output directory.
func (c *Config) GetChartsDir() string {
	if c.Charts.Dir != "" {
		return c.Charts.Dir
	}
	return filepath.Join(c.GetDataDir(), "charts")
}

// ClientID resolves the BDL client id from the configured environment
// variable. Empty means anonymous access.
func (c *Config) ClientID() string {
	if c.BDL.ClientIDEnv == "" {
		return ""
	}
	return os.Getenv(c.BDL.ClientIDEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
