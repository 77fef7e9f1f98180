package config

import (
	"fmt"
	"os"
	"time"

	"ojclient/internal/common/cache"
	"ojclient/internal/judge"
	"ojclient/internal/session"
	"ojclient/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL         = "http://127.0.0.1:8000"
	DefaultTimeout         = 10 * time.Second
	DefaultStatePath       = "configs/cli_state.json"
	DefaultKeyPrefix       = "ojclient:"
	DefaultDebounce        = 5 * time.Second
	DefaultHistoryFile     = ".ojclient_history"
	DefaultLocalDraftTTL   = 7 * 24 * time.Hour
	DefaultLocalDraftLimit = 256
)

// Session backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds CLI configuration.
type Config struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
	// JudgeURL points ticket polls at a separate judge host; empty uses BaseURL.
	JudgeURL    string         `yaml:"judgeURL"`
	Session     SessionConfig  `yaml:"session"`
	Poll        judge.Config   `yaml:"poll"`
	Autosave    AutosaveConfig `yaml:"autosave"`
	Logger      logger.Config  `yaml:"logger"`
	MetricsAddr string         `yaml:"metricsAddr"`
	HistoryFile string         `yaml:"historyFile"`
	PrettyJSON  *bool          `yaml:"prettyJSON"`
}

// SessionConfig selects where credentials and the local draft cache live.
type SessionConfig struct {
	Backend   string            `yaml:"backend"`
	ID        string            `yaml:"id"`
	StatePath string            `yaml:"statePath"`
	KeyPrefix string            `yaml:"keyPrefix"`
	Redis     cache.RedisConfig `yaml:"redis"`
}

type AutosaveConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	LocalTTL      time.Duration `yaml:"localTTL"`
	LocalMaxItems int           `yaml:"localMaxItems"`
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Session.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Session.Redis.Addr == "" {
			return fmt.Errorf("session.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	return nil
}

// Pretty reports whether JSON output is indented.
func (c Config) Pretty() bool {
	return c.PrettyJSON != nil && *c.PrettyJSON
}

// PollConfig returns the poller settings with JudgeURL applied.
func (c Config) PollConfig() judge.Config {
	p := c.Poll
	if p.BaseURL == "" {
		p.BaseURL = c.JudgeURL
	}
	return p
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = BackendFile
	}
	if cfg.Session.ID == "" {
		cfg.Session.ID = session.DefaultID
	}
	if cfg.Session.StatePath == "" {
		cfg.Session.StatePath = DefaultStatePath
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Autosave.Debounce == 0 {
		cfg.Autosave.Debounce = DefaultDebounce
	}
	if cfg.Autosave.LocalTTL == 0 {
		cfg.Autosave.LocalTTL = DefaultLocalDraftTTL
	}
	if cfg.Autosave.LocalMaxItems == 0 {
		cfg.Autosave.LocalMaxItems = DefaultLocalDraftLimit
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "warn"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Logger.OutputPath == "" {
		cfg.Logger.OutputPath = "stderr"
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFile
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
}
