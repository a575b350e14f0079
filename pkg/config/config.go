package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// LLM providers. An empty provider disables chat.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Config holds all configuration for lemur-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	CORS CORSConfig `yaml:"cors"`

	// Store selects where projects, datasets and relationships live.
	Store StoreConfig `yaml:"store"`

	// Database configuration (PostgreSQL), used when store.backend is postgres.
	Database DatabaseConfig `yaml:"database"`

	// Redis caches profiles and detection results. Disabled when host is empty.
	Redis RedisConfig `yaml:"redis"`

	// Archive keeps the raw uploaded files. Disabled when bucket is empty.
	Archive ArchiveConfig `yaml:"archive"`

	LLM LLMConfig `yaml:"llm"`

	MCP MCPConfig `yaml:"mcp"`

	Profiling ProfilingConfig `yaml:"profiling"`
}

// CORSConfig holds the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOriginsStr string   `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	AllowedOrigins    []string `yaml:"-"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend    string `yaml:"backend" env:"STORE_BACKEND" env-default:"memory"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"./lemur.db"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"lemur"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"lemur"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_CACHE_TTL" env-default:"24h"`
}

// ArchiveConfig holds the S3-compatible bucket used for raw uploads.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket" env:"S3_BUCKET_NAME" env-default:""`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT_URL" env-default:""` // MinIO or other S3-compatible endpoint
	Region          string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	AccessKeyID     string `yaml:"-" env:"AWS_ACCESS_KEY_ID"`     // Secret - not in YAML
	SecretAccessKey string `yaml:"-" env:"AWS_SECRET_ACCESS_KEY"` // Secret - not in YAML
}

// Enabled reports whether raw uploads are archived.
func (c *ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// LLMConfig configures the chat completion provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider" env:"LLM_PROVIDER" env-default:""`
	BaseURL     string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model       string        `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey      string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.7"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1000"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// ProfilingConfig holds the analysis thresholds (see services.PolicyFromConfig).
// Quality bands are fixed and not configurable.
type ProfilingConfig struct {
	IdentifierDistinctPct  float64 `yaml:"identifier_distinct_pct" env:"PROFILING_IDENTIFIER_DISTINCT_PCT" env-default:"95"`
	DatetimeParseRatio     float64 `yaml:"datetime_parse_ratio" env:"PROFILING_DATETIME_PARSE_RATIO" env-default:"0.9"`
	NumericParseRatio      float64 `yaml:"numeric_parse_ratio" env:"PROFILING_NUMERIC_PARSE_RATIO" env-default:"0.9"`
	CategoricalDistinctPct float64 `yaml:"categorical_distinct_pct" env:"PROFILING_CATEGORICAL_DISTINCT_PCT" env-default:"50"`
	CategoricalMaxDistinct int     `yaml:"categorical_max_distinct" env:"PROFILING_CATEGORICAL_MAX_DISTINCT" env-default:"50"`
	TopK                   int     `yaml:"top_k" env:"PROFILING_TOP_K" env-default:"10"`
	CorrelationThreshold   float64 `yaml:"correlation_threshold" env:"PROFILING_CORRELATION_THRESHOLD" env-default:"0.7"`
	NullWeight             float64 `yaml:"null_weight" env:"PROFILING_NULL_WEIGHT" env-default:"0.4"`
	DuplicateWeight        float64 `yaml:"duplicate_weight" env:"PROFILING_DUPLICATE_WEIGHT" env-default:"0.3"`
	LowVariancePenalty     float64 `yaml:"low_variance_penalty" env:"PROFILING_LOW_VARIANCE_PENALTY" env-default:"10"`
	LowVarianceCap         float64 `yaml:"low_variance_cap" env:"PROFILING_LOW_VARIANCE_CAP" env-default:"30"`
	IdenticalNameBonus     float64 `yaml:"identical_name_bonus" env:"PROFILING_IDENTICAL_NAME_BONUS" env-default:"0.2"`
	IdentifierBonus        float64 `yaml:"identifier_bonus" env:"PROFILING_IDENTIFIER_BONUS" env-default:"0.1"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error; defaults and environment variables are used instead.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.CORS.AllowedOrigins = parseList(cfg.CORS.AllowedOriginsStr)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks the enumerated settings. Profiling thresholds are validated
// when they are converted into an analysis policy.
func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("store.backend must be one of memory, postgres, sqlite; got %q", c.Store.Backend)
	}

	switch c.LLM.Provider {
	case "", ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		return fmt.Errorf("llm.provider must be one of openai, anthropic, mock; got %q", c.LLM.Provider)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be at least 1, got %d", c.LLM.MaxTokens)
	}

	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

// IsLocal reports whether the server runs in the local development environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local"
}

// parseList splits a comma-separated list, dropping empty entries.
func parseList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(ResolveHostForDocker(c.Host), strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
