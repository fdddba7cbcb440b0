package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultServerAddress     = ":8090"
	DefaultProvider          = "gemini"
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultSystemInstruction = "你是一位精通傳統中醫（Traditional Chinese Medicine）的AI專家。請使用繁體中文回答。"
	DefaultDatabaseType      = "sqlite3"
	DefaultRedisChannel      = "tcmhub:events"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig  BasicConfig               `json:"basic_config"`
	Assistant    AssistantConfig           `json:"assistant"`
	Providers    map[string]ProviderConfig `json:"providers"`
	DatabaseType string                    `json:"database_type"`
	Databases    map[string]DatabaseConfig `json:"databases"`
	Redis        RedisConfig               `json:"redis"`
	Auth         AuthConfig                `json:"auth"`
}

type BasicConfig struct {
	ServerAddress   string `json:"server_address"`
	LogMode         string `json:"log_mode"`
	DisableFixtures bool   `json:"disable_fixtures"`
}

type AssistantConfig struct {
	Provider             string  `json:"provider"`
	Model                string  `json:"model"`
	SystemInstruction    string  `json:"system_instruction"`
	ReplyTimeoutSeconds  int     `json:"reply_timeout_seconds"`
	MaxConcurrentReplies int     `json:"max_concurrent_replies"`
	RatePerMinute        float64 `json:"rate_per_minute"`
	Burst                int     `json:"burst"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

type AuthConfig struct {
	TokenTTLMinutes      int `json:"token_ttl_minutes"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes"`

	// ClientKeySecret signs client keys; empty means a per-process secret.
	ClientKeySecret string `json:"client_key_secret"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is not an error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := godotenv.Load(filepath.Join(filepath.Dir(absPath), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if db, ok := cfg.Databases[cfg.DatabaseType]; ok && isSQLite(cfg.DatabaseType) {
		db.DSN = resolveSQLitePath(db.DSN, filepath.Dir(absPath))
		cfg.Databases[cfg.DatabaseType] = db
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TCMHUB_ADDR"); v != "" {
		c.BasicConfig.ServerAddress = v
	}
	if v := os.Getenv("TCMHUB_LOG_MODE"); v != "" {
		c.BasicConfig.LogMode = v
	}
	if v := os.Getenv("TCMHUB_PROVIDER"); v != "" {
		c.Assistant.Provider = v
	}
	for provider, env := range map[string]string{
		"gemini": "GEMINI_API_KEY",
		"openai": "OPENAI_API_KEY",
		"claude": "ANTHROPIC_API_KEY",
	} {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p := c.Providers[provider]
		p.APIKey = key
		c.Providers[provider] = p
	}
	if v := os.Getenv("TCMHUB_CLIENT_KEY_SECRET"); v != "" {
		c.Auth.ClientKeySecret = v
	}
	if v := os.Getenv("TCMHUB_DB_TYPE"); v != "" {
		c.DatabaseType = v
	}
	if v := os.Getenv("TCMHUB_DB_DSN"); v != "" {
		if c.Databases == nil {
			c.Databases = make(map[string]DatabaseConfig)
		}
		dbType := c.DatabaseType
		if dbType == "" {
			dbType = DefaultDatabaseType
		}
		db := c.Databases[dbType]
		db.DSN = v
		c.Databases[dbType] = db
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		if host, port, err := net.SplitHostPort(v); err == nil {
			c.Redis.Host = host
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
			c.Redis.Enabled = true
		}
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.BasicConfig.LogMode == "" {
		c.BasicConfig.LogMode = "dev"
	}
	if c.Assistant.Provider == "" {
		c.Assistant.Provider = DefaultProvider
	}
	if c.Assistant.SystemInstruction == "" {
		c.Assistant.SystemInstruction = DefaultSystemInstruction
	}
	if c.Assistant.ReplyTimeoutSeconds <= 0 {
		c.Assistant.ReplyTimeoutSeconds = 120
	}
	if c.Assistant.MaxConcurrentReplies <= 0 {
		c.Assistant.MaxConcurrentReplies = 8
	}
	if c.Assistant.RatePerMinute <= 0 {
		c.Assistant.RatePerMinute = 20
	}
	if c.Assistant.Burst <= 0 {
		c.Assistant.Burst = 3
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if p := c.Providers["gemini"]; p.Model == "" {
		p.Model = DefaultGeminiModel
		c.Providers["gemini"] = p
	}
	if c.DatabaseType == "" {
		c.DatabaseType = DefaultDatabaseType
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if db, ok := c.Databases[c.DatabaseType]; !ok || (db.DSN == "" && isSQLite(c.DatabaseType)) {
		db.DSN = ":memory:"
		c.Databases[c.DatabaseType] = db
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = DefaultRedisChannel
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = 24 * 60
	}
	if c.Auth.SweepIntervalMinutes <= 0 {
		c.Auth.SweepIntervalMinutes = 60
	}
}

// ReplyTimeout is the outer deadline applied to one assistant call.
func (c *Config) ReplyTimeout() time.Duration {
	return time.Duration(c.Assistant.ReplyTimeoutSeconds) * time.Second
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Auth.SweepIntervalMinutes) * time.Minute
}

// Provider returns the settings of the active assistant provider.
func (c *Config) Provider() (string, ProviderConfig) {
	name := strings.ToLower(c.Assistant.Provider)
	p := c.Providers[name]
	if c.Assistant.Model != "" {
		p.Model = c.Assistant.Model
	}
	return name, p
}

func isSQLite(dbType string) bool {
	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

func resolveSQLitePath(dsn, baseDir string) string {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") || filepath.IsAbs(dsn) {
		return dsn
	}
	return filepath.Join(baseDir, dsn)
}
