// Package config loads settings from defaults, an optional config file,
// a .env file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	LLM     LLMConfig     `mapstructure:"llm"`
	UI      UIConfig      `mapstructure:"ui"`
	Log     LogConfig     `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
}

type DBConfig struct {
	Path      string `mapstructure:"path"`
	BackupDir string `mapstructure:"backup_dir"`
}

// LLMConfig configures the chat-completion endpoint used to clean notes.
type LLMConfig struct {
	APIKey      string          `mapstructure:"api_key"`
	URL         string          `mapstructure:"url"`
	Model       string          `mapstructure:"model"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	MaxAttempts int             `mapstructure:"max_attempts"`
	Delays      []time.Duration `mapstructure:"delays"`
	Temperature float64         `mapstructure:"temperature"`
}

type UIConfig struct {
	Addr     string `mapstructure:"addr"`
	PageSize int    `mapstructure:"page_size"`
	User     string `mapstructure:"user"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Mode  string `mapstructure:"mode"`
	File  string `mapstructure:"file"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".notes")

	v.SetDefault("db.path", filepath.Join(dataDir, "notes.db"))
	v.SetDefault("db.backup_dir", filepath.Join(dataDir, "backups"))

	v.SetDefault("llm.url", "https://api.x.ai/v1/chat/completions")
	v.SetDefault("llm.model", "grok-4-fast-reasoning")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.delays", []string{"1s", "2s", "4s"})
	v.SetDefault("llm.temperature", 0.3)

	v.SetDefault("ui.addr", ":8080")
	v.SetDefault("ui.page_size", 50)
	v.SetDefault("ui.user", "default_user")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.mode", "development")
	v.SetDefault("log.file", "")

	v.SetDefault("session.ttl", 12*time.Hour)
}

// legacyEnv maps keys to the un-prefixed environment names used by existing deployments.
var legacyEnv = map[string]string{
	"llm.api_key": "XAI_API_KEY",
	"llm.url":     "XAI_API_URL",
	"llm.model":   "XAI_MODEL",
	"log.level":   "LOG_LEVEL",
}

// Load reads configuration into a Config. A missing config file or .env
// file is not an error; configFile, when set, must exist.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)

	v.SetEnvPrefix("NOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "NOTES_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("notes")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".notes"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("config: db.path is required")
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("config: llm.max_attempts must be >= 1, got %d", c.LLM.MaxAttempts)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("config: llm.timeout must be positive, got %s", c.LLM.Timeout)
	}
	if c.UI.PageSize < 1 {
		return fmt.Errorf("config: ui.page_size must be >= 1, got %d", c.UI.PageSize)
	}
	return nil
}
