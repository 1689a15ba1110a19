package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	AI         AI         `yaml:"ai"`
	HackerNews HackerNews `yaml:"hackernews"`
	V2EX       V2EX       `yaml:"v2ex"`
	SkipHours  float64    `yaml:"skip_hours"`
	Extractor  Extractor  `yaml:"extractor"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
}

type AI struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Language string `yaml:"language"`
}

type HackerNews struct {
	Enabled     bool     `yaml:"enabled"`
	Lists       []string `yaml:"lists"`
	Limit       int      `yaml:"limit"`
	TopN        int      `yaml:"top_n"`
	Concurrency int      `yaml:"concurrency"`
}

type V2EX struct {
	Enabled      bool     `yaml:"enabled"`
	Token        string   `yaml:"token"`
	Nodes        []string `yaml:"nodes"`
	ExcludeNodes []string `yaml:"exclude_nodes"`
	TopN         int      `yaml:"top_n"`
	Pages        int      `yaml:"pages"`
}

type Extractor struct {
	Enabled     bool          `yaml:"enabled"`
	Mode        string        `yaml:"mode"`
	Concurrency int           `yaml:"concurrency"`
	MaxLength   int           `yaml:"max_length"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
	OutDir  string `yaml:"out_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigDir returns the XDG config directory for digest.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "digest")
}

// DataDir returns the XDG data directory for digest.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "digest")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/digest/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'digest init' to create a default config",
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

// parse parses YAML bytes into a Config, applying defaults and
// environment fallbacks.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		AI: AI{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Language: "Chinese",
		},
		HackerNews: HackerNews{
			Enabled:     true,
			Lists:       []string{"top"},
			Limit:       30,
			TopN:        20,
			Concurrency: 8,
		},
		V2EX: V2EX{
			Enabled:      true,
			Nodes:        []string{"hot"},
			ExcludeNodes: []string{"promotions", "deals", "cv", "exchange"},
			TopN:         20,
			Pages:        3,
		},
		SkipHours: 72,
		Extractor: Extractor{
			Enabled:     true,
			Mode:        "jina",
			Concurrency: 3,
			MaxLength:   5000,
			Timeout:     15 * time.Second,
		},
		Server: Server{Port: 8000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = firstEnv("OPENAI_API_KEY", "ANTHROPIC_API_KEY")
	}
	if cfg.V2EX.Token == "" {
		cfg.V2EX.Token = os.Getenv("V2EX_TOKEN")
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

// GetOutDir returns the directory rendered digests are written to.
func (c *Config) GetOutDir() string {
	if c.Output.OutDir != "" {
		return c.Output.OutDir
	}
	return filepath.Join(c.GetDataDir(), "out")
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
