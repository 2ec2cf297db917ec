package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	rcron "github.com/robfig/cron/v3"
)

const (
	DefaultLongPollTimeout = 30
	DefaultRequestTimeout  = 35
	DefaultTickSpec        = "0 * * * * *"
	DefaultPageSize        = 500
	DefaultTimezone        = "UTC"
	DefaultRetryInitial    = "1s"
	DefaultRetryMax        = "10s"
	DefaultPendingTTL      = "24h"
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 18080
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultLogMaxSizeMB    = 100
	DefaultLogMaxBackups   = 10
	DefaultLogMaxAgeDays   = 30
	DefaultNodeID          = 1
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Poll     PollConfig     `json:"poll"`
	Pending  PendingConfig  `json:"pending"`
	Store    StoreConfig    `json:"store"`
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
	NodeID   int64          `json:"nodeId"`
}

type TelegramConfig struct {
	Enabled         bool     `json:"enabled"`
	Token           string   `json:"token"`
	Proxy           string   `json:"proxy,omitempty"`
	APIEndpoint     string   `json:"apiEndpoint,omitempty"`
	LongPollTimeout int      `json:"longPollTimeout"`
	RequestTimeout  int      `json:"requestTimeout"`
	AllowFrom       []string `json:"allowFrom,omitempty"`
}

type PollConfig struct {
	TickSpec     string `json:"tickSpec"`
	PageSize     int    `json:"pageSize"`
	Timezone     string `json:"timezone"`
	RetryInitial string `json:"retryInitial"`
	RetryMax     string `json:"retryMax"`
}

// PendingConfig selects where awaiting-free-text replies live. Without a
// Redis URL they are kept in memory and lost on restart.
type PendingConfig struct {
	RedisURL string `json:"redisUrl,omitempty"`
	TTL      string `json:"ttl"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type ServerConfig struct {
	Enabled     bool     `json:"enabled"`
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	APIKey      string   `json:"apiKey,omitempty"`
	CORSOrigins []string `json:"corsOrigins,omitempty"`
}

type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"maxSizeMB,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty"`
	MaxAgeDays int    `json:"maxAgeDays,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			LongPollTimeout: DefaultLongPollTimeout,
			RequestTimeout:  DefaultRequestTimeout,
		},
		Poll: PollConfig{
			TickSpec:     DefaultTickSpec,
			PageSize:     DefaultPageSize,
			Timezone:     DefaultTimezone,
			RetryInitial: DefaultRetryInitial,
			RetryMax:     DefaultRetryMax,
		},
		Pending: PendingConfig{
			TTL: DefaultPendingTTL,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    DefaultHost,
			Port:    DefaultPort,
		},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
		NodeID: DefaultNodeID,
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".taskpulse")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func DefaultDBPath() string {
	return filepath.Join(ConfigDir(), "data", "taskpulse.db")
}

func LoadConfig() (*Config, error) {
	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if token := os.Getenv("TASKPULSE_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
		cfg.Telegram.Enabled = true
	} else if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = token
		cfg.Telegram.Enabled = true
	}
	if proxy := os.Getenv("TASKPULSE_TELEGRAM_PROXY"); proxy != "" {
		cfg.Telegram.Proxy = proxy
	}
	if dbPath := os.Getenv("TASKPULSE_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if key := os.Getenv("TASKPULSE_API_KEY"); key != "" {
		cfg.Server.APIKey = key
	}
	if url := os.Getenv("TASKPULSE_REDIS_URL"); url != "" {
		cfg.Pending.RedisURL = url
	}
	if port := os.Getenv("TASKPULSE_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if tz := os.Getenv("TASKPULSE_TIMEZONE"); tz != "" {
		cfg.Poll.Timezone = tz
	}
	if level := os.Getenv("TASKPULSE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("TASKPULSE_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Telegram.LongPollTimeout <= 0 {
		cfg.Telegram.LongPollTimeout = DefaultLongPollTimeout
	}
	if cfg.Telegram.RequestTimeout <= cfg.Telegram.LongPollTimeout {
		cfg.Telegram.RequestTimeout = cfg.Telegram.LongPollTimeout + 5
	}
	if strings.TrimSpace(cfg.Poll.TickSpec) == "" {
		cfg.Poll.TickSpec = DefaultTickSpec
	}
	if cfg.Poll.PageSize == 0 {
		cfg.Poll.PageSize = DefaultPageSize
	}
	if cfg.Poll.Timezone == "" {
		cfg.Poll.Timezone = DefaultTimezone
	}
	if cfg.Poll.RetryInitial == "" {
		cfg.Poll.RetryInitial = DefaultRetryInitial
	}
	if cfg.Poll.RetryMax == "" {
		cfg.Poll.RetryMax = DefaultRetryMax
	}
	if cfg.Pending.TTL == "" {
		cfg.Pending.TTL = DefaultPendingTTL
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = DefaultDBPath()
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.NodeID == 0 {
		cfg.NodeID = DefaultNodeID
	}
}

// Validate checks the values the background loops depend on.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Poll.PageSize <= 0 {
		return fmt.Errorf("poll.pageSize must be positive, got %d", c.Poll.PageSize)
	}
	parser := rcron.NewParser(rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)
	if _, err := parser.Parse(c.Poll.TickSpec); err != nil {
		return fmt.Errorf("poll.tickSpec %q: %w", c.Poll.TickSpec, err)
	}
	for name, value := range map[string]string{
		"poll.retryInitial": c.Poll.RetryInitial,
		"poll.retryMax":     c.Poll.RetryMax,
		"pending.ttl":       c.Pending.TTL,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration, got %q", name, value)
		}
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("nodeId must be within 0..1023, got %d", c.NodeID)
	}
	return nil
}

// Location is the zone poll times are matched in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Poll.Timezone)
	if err != nil {
		return nil, fmt.Errorf("poll.timezone %q: %w", c.Poll.Timezone, err)
	}
	return loc, nil
}

func (p PollConfig) RetryBounds() (initial, maxDelay time.Duration) {
	initial, err := time.ParseDuration(p.RetryInitial)
	if err != nil || initial <= 0 {
		initial, _ = time.ParseDuration(DefaultRetryInitial)
	}
	maxDelay, err = time.ParseDuration(p.RetryMax)
	if err != nil || maxDelay < initial {
		maxDelay = initial
	}
	return initial, maxDelay
}

func (p PendingConfig) TTLDuration() time.Duration {
	ttl, err := time.ParseDuration(p.TTL)
	if err != nil || ttl <= 0 {
		ttl, _ = time.ParseDuration(DefaultPendingTTL)
	}
	return ttl
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}
