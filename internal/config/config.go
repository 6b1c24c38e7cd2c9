package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Username            string     `yaml:"username,omitempty"`
	Password            string     `yaml:"password,omitempty"`
	Cookies             []Cookie   `yaml:"cookies,omitempty"`                    // saved from a browser-assisted login
	HistoryDays         int        `yaml:"history_days,omitempty"`               // training window (fallback: 90)
	MinFetchIntervalMin int        `yaml:"min_fetch_interval_minutes,omitempty"` // rate limit between portal requests (fallback: 5)
	UsageRate           float64    `yaml:"usage_rate,omitempty"`                 // cost per CCF
	FixedCost           float64    `yaml:"fixed_cost,omitempty"`                 // per billing cycle delivery charge
	TaxPercent          float64    `yaml:"tax_percent,omitempty"`
	BalanceTempOverride float64    `yaml:"balance_temp_override,omitempty"` // skip grid search, pin balance temperature
	DailyUsage          *bool      `yaml:"daily_usage,omitempty"`           // fetch daily file (default true), else monthly
	MQTT                MQTTConfig `yaml:"mqtt,omitempty"`
	HomeAssistant       HAConfig   `yaml:"home_assistant,omitempty"`
}

// Cookie represents a browser cookie captured during login
type Cookie struct {
	Name     string  `yaml:"name"`
	Value    string  `yaml:"value"`
	Domain   string  `yaml:"domain"`
	Path     string  `yaml:"path"`
	Expires  float64 `yaml:"expires,omitempty"`
	HTTPOnly bool    `yaml:"httpOnly,omitempty"`
	Secure   bool    `yaml:"secure,omitempty"`
	SameSite string  `yaml:"sameSite,omitempty"`
}

// MQTTConfig holds MQTT broker configuration for publishing readings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`       // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // default "gas_meter"
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://yourdomain.local:8123"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.gas_usage"
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// GetHistoryDays returns the training window in days with a default of 90 (3 months)
func (c *Config) GetHistoryDays() int {
	if c.HistoryDays <= 0 {
		return 90 // Default to 3 months
	}
	return c.HistoryDays
}

// GetMinFetchInterval returns the minimum interval between portal requests
func (c *Config) GetMinFetchInterval() time.Duration {
	if c.MinFetchIntervalMin <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.MinFetchIntervalMin) * time.Minute
}

// GetDailyUsage reports whether the daily usage file should be fetched (default true)
func (c *Config) GetDailyUsage() bool {
	if c.DailyUsage == nil {
		return true
	}
	return *c.DailyUsage
}
