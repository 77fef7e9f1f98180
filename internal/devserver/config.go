package devserver

import (
	"fmt"
	"os"
	"time"

	"ojclient/internal/judge"
	"ojclient/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

// Judge modes for POST /submissions with a problem id.
const (
	ModeDirect = "direct"
	ModeTicket = "ticket"
)

// Config is the dev backend configuration.
type Config struct {
	Server ServerConfig  `yaml:"server"`
	JWT    JWTConfig     `yaml:"jwt"`
	Users  []UserConfig  `yaml:"users"`
	Judge  JudgeConfig   `yaml:"judge"`
	Logger logger.Config `yaml:"logger"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Issuer     string        `yaml:"issuer"`
	AccessTTL  time.Duration `yaml:"accessTTL"`
	RefreshTTL time.Duration `yaml:"refreshTTL"`
}

// UserConfig is one account. PasswordHash is a bcrypt hash.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"passwordHash"`
}

type JudgeConfig struct {
	Mode string `yaml:"mode"`
	// Steps are the status ids a ticket reports on successive polls before
	// its verdict. The verdict is always reported last.
	Steps       []int   `yaml:"steps"`
	TimeSeconds float64 `yaml:"timeSeconds"`
	MemoryKB    float64 `yaml:"memoryKB"`
}

func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file failed: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Judge.Mode != ModeDirect && c.Judge.Mode != ModeTicket {
		return fmt.Errorf("unknown judge mode %q", c.Judge.Mode)
	}
	for _, step := range c.Judge.Steps {
		if judge.StatusID(step).Terminal() {
			return fmt.Errorf("judge step %d is terminal", step)
		}
	}
	for _, u := range c.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return fmt.Errorf("users need a username and a passwordHash")
		}
	}
	return nil
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	applyDefaults(cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "ojclient-devserver"
	}
	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = 5 * time.Minute
	}
	if cfg.JWT.RefreshTTL == 0 {
		cfg.JWT.RefreshTTL = 24 * time.Hour
	}
	if cfg.Judge.Mode == "" {
		cfg.Judge.Mode = ModeDirect
	}
	if cfg.Judge.Steps == nil {
		cfg.Judge.Steps = []int{int(judge.StatusQueued), int(judge.StatusRunning)}
	}
	if cfg.Judge.TimeSeconds == 0 {
		cfg.Judge.TimeSeconds = 0.012
	}
	if cfg.Judge.MemoryKB == 0 {
		cfg.Judge.MemoryKB = 256
	}
}
