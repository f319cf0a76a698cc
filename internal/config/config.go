package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"` // used to build invite links
	Workers  int     `yaml:"workers"`  // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
	// RateLimit is the number of commands per user per minute; 0 disables it.
	RateLimit int `yaml:"rate_limit"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int           `yaml:"port"`
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Enabled reports whether Redis-backed stores should be used.
func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

type ReferralConfig struct {
	StarsPerReferral int64    `yaml:"stars_per_referral"`
	ChallengeWords   []string `yaml:"challenge_words"`
	// ChallengeStore is "memory" or "redis".
	ChallengeStore string        `yaml:"challenge_store"`
	ChallengeTTL   time.Duration `yaml:"challenge_ttl"`
	LockWait       time.Duration `yaml:"lock_wait"`
}

type BroadcastConfig struct {
	Delay   time.Duration `yaml:"delay"`
	Workers int           `yaml:"workers"`
}

type SchedulerConfig struct {
	CheckpointInterval  time.Duration `yaml:"checkpoint_interval"`
	RightsAuditInterval time.Duration `yaml:"rights_audit_interval"`
	GaugesInterval      time.Duration `yaml:"gauges_interval"`
}

type I18nConfig struct {
	Lang string `yaml:"lang"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Referral  ReferralConfig  `yaml:"referral"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	I18n      I18nConfig      `yaml:"i18n"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates the
// required fields.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes raw YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Admin.TokenTTL <= 0 {
		c.Admin.TokenTTL = 12 * time.Hour
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)
	if c.Referral.StarsPerReferral <= 0 {
		c.Referral.StarsPerReferral = 2
	}
	if c.Referral.ChallengeStore == "" {
		c.Referral.ChallengeStore = "memory"
	}
	if c.Referral.ChallengeTTL <= 0 {
		c.Referral.ChallengeTTL = 30 * 24 * time.Hour
	}
	if c.Referral.LockWait <= 0 {
		c.Referral.LockWait = 5 * time.Second
	}
	if c.Broadcast.Delay <= 0 {
		c.Broadcast.Delay = 50 * time.Millisecond
	}
	if c.Broadcast.Workers <= 0 {
		c.Broadcast.Workers = 4
	}
	if c.Scheduler.CheckpointInterval <= 0 {
		c.Scheduler.CheckpointInterval = 30 * time.Second
	}
	if c.Scheduler.RightsAuditInterval <= 0 {
		c.Scheduler.RightsAuditInterval = time.Hour
	}
	if c.Scheduler.GaugesInterval <= 0 {
		c.Scheduler.GaugesInterval = time.Minute
	}
	if c.I18n.Lang == "" {
		c.I18n.Lang = "en"
	}
}

func (c *Config) validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	if c.Bot.Username == "" {
		return errors.New("bot.username is required")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	switch c.Referral.ChallengeStore {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return errors.New("referral.challenge_store=redis requires redis.url")
		}
	default:
		return fmt.Errorf("referral.challenge_store: unknown value %q", c.Referral.ChallengeStore)
	}
	if c.Admin.Port > 0 && (c.Admin.APIKey == "" || c.Admin.JWTSecret == "") {
		return errors.New("admin.api_key and admin.jwt_secret are required when admin.port is set")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
