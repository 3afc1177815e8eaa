package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"reelline/internal/performance"
)

const (
	fileName     = "reelline.yml"
	tomlFileName = "reelline.toml"
)

// Config models reelline.yml (or reelline.toml).
type Config struct {
	Engine struct {
		DesignUnitRate        string             `yaml:"design_unit_rate" toml:"design_unit_rate"`
		NominalCapacity       int                `yaml:"nominal_capacity" toml:"nominal_capacity"`
		DefaultAllowedMinutes int                `yaml:"default_allowed_minutes" toml:"default_allowed_minutes"`
		Levels                []int              `yaml:"levels" toml:"levels"`
		Ranks                 []performance.Band `yaml:"ranks" toml:"ranks"`
		AtRiskOnTimeRate      int                `yaml:"at_risk_on_time_rate" toml:"at_risk_on_time_rate"`
		AtRiskLateStreak      int                `yaml:"at_risk_late_streak" toml:"at_risk_late_streak"`
	} `yaml:"engine" toml:"engine"`
	Finance struct {
		Currency string `yaml:"currency" toml:"currency"`
		Locale   string `yaml:"locale" toml:"locale"`
		Status   struct {
			LateBalanceRatio     float64 `yaml:"late_balance_ratio" toml:"late_balance_ratio"`
			LateDaysLeft         int     `yaml:"late_days_left" toml:"late_days_left"`
			CriticalBalanceRatio float64 `yaml:"critical_balance_ratio" toml:"critical_balance_ratio"`
			CriticalDaysLeft     int     `yaml:"critical_days_left" toml:"critical_days_left"`
		} `yaml:"status" toml:"status"`
	} `yaml:"finance" toml:"finance"`
	Notifications struct {
		NtfyTopic      string    `yaml:"ntfy_topic" toml:"ntfy_topic"`
		TimeoutSeconds int       `yaml:"timeout_seconds" toml:"timeout_seconds"`
		Admins         []Admin   `yaml:"admins" toml:"admins"`
		Webhooks       []Webhook `yaml:"webhooks" toml:"webhooks"`
	} `yaml:"notifications" toml:"notifications"`
	Scheduler struct {
		LatenessIntervalSeconds int `yaml:"lateness_interval_seconds" toml:"lateness_interval_seconds"`
		FetchTimeoutSeconds     int `yaml:"fetch_timeout_seconds" toml:"fetch_timeout_seconds"`
		CoalesceMillis          int `yaml:"coalesce_millis" toml:"coalesce_millis"`
	} `yaml:"scheduler" toml:"scheduler"`
	Log struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`
}

// Admin receives every late notice in addition to the assignee.
type Admin struct {
	ID    string `yaml:"id" toml:"id"`
	Name  string `yaml:"name" toml:"name"`
	Email string `yaml:"email" toml:"email"`
}

type Webhook struct {
	URL    string `yaml:"url" toml:"url"`
	Secret string `yaml:"secret" toml:"secret"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.Engine.DesignUnitRate))
	if err != nil {
		return fmt.Errorf("config.engine.design_unit_rate must be a decimal amount: %w", err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("config.engine.design_unit_rate must not be negative")
	}
	if c.Engine.NominalCapacity <= 0 {
		return fmt.Errorf("config.engine.nominal_capacity must be positive")
	}
	if c.Engine.DefaultAllowedMinutes < 0 {
		return fmt.Errorf("config.engine.default_allowed_minutes must not be negative")
	}
	if err := c.Ladder().Validate(); err != nil {
		return fmt.Errorf("config.engine levels/ranks: %w", err)
	}
	if r := c.Engine.AtRiskOnTimeRate; r < 0 || r > 100 {
		return fmt.Errorf("config.engine.at_risk_on_time_rate must be within 0..100")
	}
	if c.Engine.AtRiskLateStreak < 0 {
		return fmt.Errorf("config.engine.at_risk_late_streak must not be negative")
	}
	st := c.Finance.Status
	if st.LateBalanceRatio < 0 || st.LateBalanceRatio > 1 || st.CriticalBalanceRatio < 0 || st.CriticalBalanceRatio > 1 {
		return fmt.Errorf("config.finance.status ratios must be within 0..1")
	}
	if st.CriticalBalanceRatio < st.LateBalanceRatio {
		return fmt.Errorf("config.finance.status.critical_balance_ratio must be >= late_balance_ratio")
	}
	if st.CriticalDaysLeft > st.LateDaysLeft {
		return fmt.Errorf("config.finance.status.critical_days_left must be <= late_days_left")
	}
	for i, a := range c.Notifications.Admins {
		if a.ID == "" {
			return fmt.Errorf("config.notifications.admins[%d].id is required", i)
		}
	}
	for i, w := range c.Notifications.Webhooks {
		if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
			return fmt.Errorf("config.notifications.webhooks[%d].url must be http(s)", i)
		}
	}
	if c.Scheduler.LatenessIntervalSeconds < 0 || c.Scheduler.FetchTimeoutSeconds < 0 || c.Scheduler.CoalesceMillis < 0 {
		return fmt.Errorf("config.scheduler values must not be negative")
	}
	return nil
}

// DesignUnitRate is the flat cost per delivered design unit.
func (c *Config) DesignUnitRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.Engine.DesignUnitRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (c *Config) Ladder() performance.Ladder {
	l := performance.DefaultLadder()
	if len(c.Engine.Levels) > 0 {
		l.LevelXP = c.Engine.Levels
	}
	if len(c.Engine.Ranks) > 0 {
		l.Bands = c.Engine.Ranks
	}
	return l
}

func (c *Config) LatenessInterval() time.Duration {
	return seconds(c.Scheduler.LatenessIntervalSeconds, 60)
}

func (c *Config) FetchTimeout() time.Duration {
	return seconds(c.Scheduler.FetchTimeoutSeconds, 5)
}

func (c *Config) NotifyTimeout() time.Duration {
	return seconds(c.Notifications.TimeoutSeconds, 10)
}

func (c *Config) Coalesce() time.Duration {
	if c.Scheduler.CoalesceMillis <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.Scheduler.CoalesceMillis) * time.Millisecond
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config %s not found; create one with rl init", Path(workspace))
	}
	return cfg, nil
}

// LoadOptional returns nil,nil if neither reelline.yml nor reelline.toml exists.
func LoadOptional(workspace string) (*Config, error) {
	for _, path := range []string{Path(workspace), filepath.Join(filepath.Dir(Path(workspace)), tomlFileName)} {
		cfg, err := FromFile(path)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return nil, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromTOML is FromYAML for reelline.toml.
func FromTOML(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads config from the given path, choosing the format by extension.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

const defaultTemplate = `engine:
  design_unit_rate: "25.00"
  nominal_capacity: 5
  default_allowed_minutes: 300
  levels: [0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 12000]
  ranks:
    - {rank: bronze, min_level: 1}
    - {rank: silver, min_level: 3}
    - {rank: gold, min_level: 5}
    - {rank: platinum, min_level: 7}
    - {rank: diamond, min_level: 9}
  at_risk_on_time_rate: 75
  at_risk_late_streak: 3

finance:
  currency: EUR
  locale: en
  status:
    late_balance_ratio: 0.25
    late_days_left: 15
    critical_balance_ratio: 0.5
    critical_days_left: 7

notifications:
  ntfy_topic: ""
  timeout_seconds: 10
  admins: []
  webhooks: []

scheduler:
  lateness_interval_seconds: 60
  fetch_timeout_seconds: 5
  coalesce_millis: 250

log:
  level: info
  format: ""
`
