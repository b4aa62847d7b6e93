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
	Data     Data     `yaml:"data"`
	Taxonomy Taxonomy `yaml:"taxonomy"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

type Data struct {
	Dir    string `yaml:"dir"`
	RawCSV string `yaml:"raw_csv"`
}

// Taxonomy points at the two classification rule documents. Relative paths
// are resolved against the data directory.
type Taxonomy struct {
	Categories string `yaml:"categories"`
	Products   string `yaml:"products"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for chatlens.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "chatlens")
}

// DataDir returns the XDG data directory for chatlens.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "chatlens")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/chatlens/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'chatlens init' to create a default config",
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
		Data: Data{RawCSV: "data-asistente.csv"},
		Taxonomy: Taxonomy{
			Categories: "categorias.yml",
			Products:   "productos.yml",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Data.Dir != "" {
		return c.Data.Dir
	}
	return DataDir()
}

// DBPath is the SQLite file holding messages and derived tables.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "chat_data.db")
}

// RawCSVPath returns the raw export location.
func (c *Config) RawCSVPath() string {
	return c.resolve(c.Data.RawCSV)
}

// CategoriesPath returns the category taxonomy document location.
func (c *Config) CategoriesPath() string {
	return c.resolve(c.Taxonomy.Categories)
}

// ProductsPath returns the product taxonomy document location.
func (c *Config) ProductsPath() string {
	return c.resolve(c.Taxonomy.Products)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.GetDataDir(), p)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
