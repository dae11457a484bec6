package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig      `json:"basic_config"`
	Supabase    SupabaseConfig   `json:"supabase"`
	Database    DatabaseConfig   `json:"database"`
	Completion  CompletionConfig `json:"completion"`
	Redis       RedisConfig      `json:"redis"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" env:"HELIX_SERVER_ADDRESS"`
	LogLevel      string `json:"log_level" env:"HELIX_LOG_LEVEL"`
	LogFormat     string `json:"log_format" env:"HELIX_LOG_FORMAT"` // console or json
	// Store selects the persistence backend: supabase, sqlite3, mysql or postgres.
	Store    string `json:"store" env:"HELIX_STORE"`
	SeedFile string `json:"seed_file" env:"HELIX_SEED_FILE"`
}

// SupabaseConfig holds the managed backend endpoints and credentials.
type SupabaseConfig struct {
	URL            string `json:"url" env:"SUPABASE_URL"`
	AnonKey        string `json:"anon_key" env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey string `json:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret      string `json:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" env:"HELIX_DB_DSN"`
	Host     string `json:"host" env:"HELIX_DB_HOST"`
	Port     int    `json:"port" env:"HELIX_DB_PORT"`
	Username string `json:"username" env:"HELIX_DB_USER"`
	Password string `json:"password" env:"HELIX_DB_PASSWORD"`
	DBName   string `json:"db_name" env:"HELIX_DB_NAME"`
	Params   string `json:"params" env:"HELIX_DB_PARAMS"`
}

// CompletionConfig selects the chat completion provider.
type CompletionConfig struct {
	Provider string `json:"provider" env:"HELIX_COMPLETION_PROVIDER"`
	BaseURL  string `json:"base_url" env:"OPENROUTER_BASE_URL"`
	Model    string `json:"model" env:"OPENROUTER_MODEL"`
	APIKey   string `json:"api_key" env:"OPENROUTER_API_KEY"`
}

type RedisConfig struct {
	Host     string `json:"host" env:"HELIX_REDIS_HOST"`
	Port     int    `json:"port" env:"HELIX_REDIS_PORT"`
	Username string `json:"username" env:"HELIX_REDIS_USERNAME"`
	Password string `json:"password" env:"HELIX_REDIS_PASSWORD"`
	DB       int    `json:"db" env:"HELIX_REDIS_DB"`
}

const (
	DefaultServerAddress = ":8090"
	DefaultStore         = "supabase"
	DefaultProvider      = "openrouter"
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
)

// legacy variable names exported by the web front-end's environment.
var publicFallbacks = map[string]string{
	"SUPABASE_URL":      "NEXT_PUBLIC_SUPABASE_URL",
	"SUPABASE_ANON_KEY": "NEXT_PUBLIC_SUPABASE_ANON_KEY",
}

// Load reads the optional JSON file at path, then overlays environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		file, err := os.Open(absPath)
		if err != nil {
			return nil, fmt.Errorf("open config %s: %w", absPath, err)
		}
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if cfg.BasicConfig.SeedFile != "" && !filepath.IsAbs(cfg.BasicConfig.SeedFile) {
			cfg.BasicConfig.SeedFile = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.SeedFile)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Supabase.URL == "" {
		cfg.Supabase.URL = strings.TrimSpace(os.Getenv(publicFallbacks["SUPABASE_URL"]))
	}
	if cfg.Supabase.AnonKey == "" {
		cfg.Supabase.AnonKey = strings.TrimSpace(os.Getenv(publicFallbacks["SUPABASE_ANON_KEY"]))
	}
	cfg.Supabase.URL = strings.TrimRight(cfg.Supabase.URL, "/")

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.BasicConfig.LogLevel == "" {
		c.BasicConfig.LogLevel = "info"
	}
	if c.BasicConfig.LogFormat == "" {
		c.BasicConfig.LogFormat = "console"
	}
	c.BasicConfig.Store = strings.ToLower(strings.TrimSpace(c.BasicConfig.Store))
	if c.BasicConfig.Store == "" {
		c.BasicConfig.Store = DefaultStore
	}
	c.Completion.Provider = strings.ToLower(strings.TrimSpace(c.Completion.Provider))
	if c.Completion.Provider == "" {
		c.Completion.Provider = DefaultProvider
	}
	if c.Completion.Provider == "openrouter" && c.Completion.BaseURL == "" {
		c.Completion.BaseURL = DefaultOpenRouterURL
	}
	if c.Redis.Host != "" && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
}

func (c *Config) validate() error {
	switch c.BasicConfig.Store {
	case "supabase":
	case "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			return errors.New("HELIX_DB_DSN must be set for the sqlite store")
		}
	case "mysql", "postgres":
		if c.Database.DSN == "" && c.Database.Host == "" {
			return fmt.Errorf("database host or dsn must be set for the %s store", c.BasicConfig.Store)
		}
	default:
		return fmt.Errorf("unsupported store: %s", c.BasicConfig.Store)
	}
	switch c.Completion.Provider {
	case "openrouter", "openai", "claude", "gemini":
	default:
		return fmt.Errorf("unsupported completion provider: %s", c.Completion.Provider)
	}
	return nil
}

// UsesSQL reports whether the configured store is a database/sql backend.
func (c *Config) UsesSQL() bool {
	return c.BasicConfig.Store != "supabase"
}
