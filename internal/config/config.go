// Load envs from .env
// Load YAML config
// Override secrets from env
// Provide default values, validate

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

const defaultConfigPath = "configs/config.yaml"

type Config struct {
	TelegramToken  string `yaml:"telegram_token" env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `yaml:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`
	DatabaseURL    string `yaml:"database_url" env:"DATABASE_URL"`
	SessionKey     string `yaml:"-" env:"SESSION_KEY"`

	LLM      LLMConfig      `yaml:"llm"`
	Applier  ApplierConfig  `yaml:"applier"`
	Risk     RiskConfig     `yaml:"risk"`
	Executor ExecutorConfig `yaml:"executor"`
	API      APIConfig      `yaml:"api"`
	Scraper  ScraperConfig  `yaml:"scraper"`
}

type LLMConfig struct {
	//groq | gemini | none
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"-"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ApplierConfig struct {
	WindowStartHour      int           `yaml:"window_start_hour"`
	WindowEndHour        int           `yaml:"window_end_hour"`
	Timezone             string        `yaml:"timezone"`
	MonthlyCap           int           `yaml:"monthly_cap"`
	DefaultDailyLimit    int           `yaml:"default_daily_limit"`
	MaxAppliesPerRun     int           `yaml:"max_applies_per_run"`
	ReviewPeriod         time.Duration `yaml:"review_period"`
	MinFitScore          float64       `yaml:"min_fit_score"`
	OverFetchMultiplier  int           `yaml:"over_fetch_multiplier"`
	RateLimitedPlatforms []string      `yaml:"rate_limited_platforms"`
}

type RiskConfig struct {
	KillSwitch      int           `yaml:"kill_switch"`
	CriticalAt      int           `yaml:"critical_at"`
	HighAt          int           `yaml:"high_at"`
	MediumAt        int           `yaml:"medium_at"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	FreshSessionAge time.Duration `yaml:"fresh_session_age"`
}

type ExecutorConfig struct {
	Headless       bool          `yaml:"headless"`
	EvidenceDir    string        `yaml:"evidence_dir"`
	ElementTimeout time.Duration `yaml:"element_timeout"`
}

type APIConfig struct {
	Port        string `yaml:"port" env:"PORT"`
	AgentSecret string `yaml:"-" env:"AGENT_SECRET"`
}

type ScraperConfig struct {
	Keywords  []string `yaml:"keywords"`
	Locations []string `yaml:"locations"`
	// Include/Exclude gate which postings reach the catalog at all.
	IncludeKeywords []string      `yaml:"include_keywords"`
	ExcludeKeywords []string      `yaml:"exclude_keywords"`
	CachePath       string        `yaml:"cache_path"`
	CookiesPath     string        `yaml:"cookies_path"`
	MaxPostingAge   time.Duration `yaml:"max_posting_age"`
}

// Load reads .env, the YAML file at CONFIG_PATH (default configs/config.yaml),
// applies env overrides and defaults, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("⚠️ Could not read %s: %v", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		c.TelegramToken = token
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: TELEGRAM_CHAT_ID: %v", ErrInvalid, err)
		}
		c.TelegramChatID = id
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		c.DatabaseURL = dbURL
	}
	if key := os.Getenv("SESSION_KEY"); key != "" {
		c.SessionKey = key
	}
	if secret := os.Getenv("AGENT_SECRET"); secret != "" {
		c.API.AgentSecret = secret
	}
	if port := os.Getenv("PORT"); port != "" {
		c.API.Port = port
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	default:
		if key := os.Getenv("GROQ_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}
	return nil
}

// ApplyDefaults fills every unset field with the production default.
func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "groq"
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "gemini":
			c.LLM.Model = "gemini-2.5-flash"
		default:
			c.LLM.Model = "llama-3.3-70b-versatile"
		}
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 15 * time.Second
	}

	a := &c.Applier
	if a.WindowStartHour == 0 && a.WindowEndHour == 0 {
		a.WindowStartHour, a.WindowEndHour = 20, 6
	}
	if a.Timezone == "" {
		a.Timezone = "Asia/Kolkata"
	}
	if a.MonthlyCap == 0 {
		a.MonthlyCap = 250
	}
	if a.DefaultDailyLimit == 0 {
		a.DefaultDailyLimit = 10
	}
	if a.MaxAppliesPerRun == 0 {
		a.MaxAppliesPerRun = 10
	}
	if a.ReviewPeriod == 0 {
		a.ReviewPeriod = 14 * 24 * time.Hour
	}
	if a.MinFitScore == 0 {
		a.MinFitScore = 60
	}
	if a.OverFetchMultiplier == 0 {
		a.OverFetchMultiplier = 5
	}
	if len(a.RateLimitedPlatforms) == 0 {
		a.RateLimitedPlatforms = []string{"linkedin"}
	}

	r := &c.Risk
	if r.KillSwitch == 0 {
		r.KillSwitch = 1500
	}
	if r.CriticalAt == 0 {
		r.CriticalAt = 1200
	}
	if r.HighAt == 0 {
		r.HighAt = 800
	}
	if r.MediumAt == 0 {
		r.MediumAt = 200
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 120 * time.Second
	}
	if r.FreshSessionAge == 0 {
		r.FreshSessionAge = 7 * 24 * time.Hour
	}

	if c.Executor.EvidenceDir == "" {
		c.Executor.EvidenceDir = "logs/screenshots"
	}
	if c.Executor.ElementTimeout == 0 {
		c.Executor.ElementTimeout = 10 * time.Second
	}

	if c.API.Port == "" {
		c.API.Port = "8003"
	}

	if c.Scraper.CachePath == "" {
		c.Scraper.CachePath = "../.cache"
	}
	if c.Scraper.CookiesPath == "" {
		c.Scraper.CookiesPath = "../.cookies"
	}
	if c.Scraper.MaxPostingAge == 0 {
		c.Scraper.MaxPostingAge = 60 * 24 * time.Hour
	}
	if len(c.Scraper.Keywords) == 0 {
		c.Scraper.Keywords = []string{"software engineer"}
	}
}

// Validate reports every inconsistent field at once.
func (c *Config) Validate() error {
	var errs []error

	a := c.Applier
	if a.WindowStartHour < 0 || a.WindowStartHour > 23 || a.WindowEndHour < 0 || a.WindowEndHour > 23 {
		errs = append(errs, fmt.Errorf("apply window hours must be within 0-23, got %d-%d", a.WindowStartHour, a.WindowEndHour))
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %v", a.Timezone, err))
	}
	if a.MonthlyCap < 0 || a.DefaultDailyLimit < 0 || a.MaxAppliesPerRun < 0 {
		errs = append(errs, errors.New("apply caps must not be negative"))
	}
	if a.OverFetchMultiplier < 1 {
		errs = append(errs, errors.New("over_fetch_multiplier must be at least 1"))
	}

	r := c.Risk
	if !(r.MediumAt < r.HighAt && r.HighAt < r.CriticalAt && r.CriticalAt < r.KillSwitch) {
		errs = append(errs, fmt.Errorf("risk thresholds must be strictly increasing: medium=%d high=%d critical=%d kill=%d",
			r.MediumAt, r.HighAt, r.CriticalAt, r.KillSwitch))
	}
	if r.MaxDelay < 0 {
		errs = append(errs, errors.New("risk max_delay must not be negative"))
	}

	if c.SessionKey != "" && len(c.SessionKey) != 64 {
		errs = append(errs, errors.New("SESSION_KEY must be 64 hex characters"))
	}

	switch c.LLM.Provider {
	case "groq", "gemini", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Location returns the apply-window timezone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Applier.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
