package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Supported cache backends
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendBolt   = "bolt"
)

// Config application configuration structure
type Config struct {
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Providers ProvidersConfig `yaml:"providers"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	UserAgent string          `yaml:"user_agent"`
}

// SearchConfig aggregation settings
type SearchConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	DefaultLimit   int `yaml:"default_limit"`
	// CoalesceMisses shares one provider fan-out between concurrent
	// searches for the same keyword and limit.
	CoalesceMisses bool `yaml:"coalesce_misses"`
}

// CacheConfig result cache settings
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Backend  string `yaml:"backend"`
	Dir      string `yaml:"dir"`
	TTLHours int    `yaml:"ttl_hours"`
}

// ProvidersConfig per-backend credentials and endpoints
type ProvidersConfig struct {
	Ebay           EbayConfig           `yaml:"ebay"`
	Amazon         AmazonConfig         `yaml:"amazon"`
	GoogleShopping GoogleShoppingConfig `yaml:"google_shopping"`
}

// EbayConfig eBay Finding API settings
type EbayConfig struct {
	AppID             string  `yaml:"app_id"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// AmazonConfig RapidAPI Real-Time Product Search settings
type AmazonConfig struct {
	APIKey            string  `yaml:"api_key"`
	Host              string  `yaml:"host"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// GoogleShoppingConfig SerpAPI settings
type GoogleShoppingConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LogConfig logger settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir"`
	MaxDays int    `yaml:"max_days"`
	Console bool   `yaml:"console"`
}

// ServerConfig HTTP API settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Search: SearchConfig{
			TimeoutSeconds: 15,
			DefaultLimit:   10,
			CoalesceMisses: false,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Backend:  CacheBackendSQLite,
			Dir:      filepath.Join(homeDir, ".dealscout", "cache"),
			TTLHours: 24,
		},
		Providers: ProvidersConfig{
			Ebay: EbayConfig{
				BaseURL: "https://svcs.ebay.com",
			},
			Amazon: AmazonConfig{
				Host:    "real-time-product-search.p.rapidapi.com",
				BaseURL: "https://real-time-product-search.p.rapidapi.com",
			},
			GoogleShopping: GoogleShoppingConfig{
				BaseURL: "https://serpapi.com",
			},
		},
		Log: LogConfig{
			Level:   "info",
			MaxDays: 7,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		UserAgent: "DealScout/0.1",
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func (c *Config) LogDir() string {
	if strings.TrimSpace(c.Log.Dir) != "" {
		return c.Log.Dir
	}
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file and merges with secrets
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// First run: write defaults without credentials
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	cfg.mergeSecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeSecrets fills credentials missing from the config file
func (c *Config) mergeSecrets(s *Secrets) {
	if c.Providers.Ebay.AppID == "" {
		c.Providers.Ebay.AppID = s.Lookup(SecretEbayAppID)
	}
	if c.Providers.Amazon.APIKey == "" {
		c.Providers.Amazon.APIKey = s.Lookup(SecretRapidAPIKey)
	}
	if c.Providers.GoogleShopping.APIKey == "" {
		c.Providers.GoogleShopping.APIKey = s.Lookup(SecretSerpAPIKey)
	}
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	content := "# DealScout Configuration File\n# Credentials can also live in .secrets next to this file.\n\n" + string(data)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Search.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: search.timeout_seconds must be greater than 0")
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("config error: search.default_limit must be greater than 0")
	}

	if c.Cache.Enabled {
		switch strings.ToLower(strings.TrimSpace(c.Cache.Backend)) {
		case CacheBackendSQLite, CacheBackendBolt:
		default:
			return fmt.Errorf("config error: cache.backend must be %q or %q, got %q",
				CacheBackendSQLite, CacheBackendBolt, c.Cache.Backend)
		}
		if strings.TrimSpace(c.Cache.Dir) == "" {
			return fmt.Errorf("config error: cache.dir cannot be empty")
		}
		if c.Cache.TTLHours <= 0 {
			return fmt.Errorf("config error: cache.ttl_hours must be greater than 0")
		}
	}

	for name, rps := range map[string]float64{
		"ebay":            c.Providers.Ebay.RequestsPerSecond,
		"amazon":          c.Providers.Amazon.RequestsPerSecond,
		"google_shopping": c.Providers.GoogleShopping.RequestsPerSecond,
	} {
		if rps < 0 {
			return fmt.Errorf("config error: providers.%s.requests_per_second cannot be negative", name)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config error: log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}

	return nil
}

// ConfiguredProviders lists backends that have credentials
func (c *Config) ConfiguredProviders() []string {
	var names []string
	if c.Providers.Ebay.AppID != "" {
		names = append(names, "ebay")
	}
	if c.Providers.Amazon.APIKey != "" {
		names = append(names, "amazon")
	}
	if c.Providers.GoogleShopping.APIKey != "" {
		names = append(names, "google_shopping")
	}
	return names
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	return fmt.Sprintf(`DealScout Configuration:
  Search:
    Timeout Seconds: %d
    Default Limit: %d
    Coalesce Misses: %v
  Cache:
    Enabled: %v
    Backend: %s
    Dir: %s
    TTL Hours: %d
  Providers:
    eBay App ID: %s
    Amazon (RapidAPI) Key: %s
    Google Shopping (SerpAPI) Key: %s
  Log:
    Level: %s
    Dir: %s
  Server:
    Addr: %s`,
		c.Search.TimeoutSeconds,
		c.Search.DefaultLimit,
		c.Search.CoalesceMisses,
		c.Cache.Enabled,
		c.Cache.Backend,
		c.Cache.Dir,
		c.Cache.TTLHours,
		redactAPIKey(c.Providers.Ebay.AppID),
		redactAPIKey(c.Providers.Amazon.APIKey),
		redactAPIKey(c.Providers.GoogleShopping.APIKey),
		c.Log.Level,
		c.LogDir(),
		c.Server.Addr,
	)
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}
