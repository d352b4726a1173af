package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for logsweep.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	Loki      LokiConfig
	Fetch     FetchConfig
	AI        AIConfig
	Retry     RetryConfig
	Condense  CondenseConfig
	Archive   ArchiveConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel slog.Level
}

type StoreConfig struct {
	Driver          string
	URL             string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type LokiConfig struct {
	BaseURL  string
	Username string
	Password string
	OrgID    string
	Timeout  time.Duration
	Levels   []string
	Keyword  string

	// MaxEntries is the server's max_entries_limit_per_query.
	MaxEntries int
}

type FetchConfig struct {
	MaxQuerySpan time.Duration
	PageLimit    int
	Concurrency  int
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	MaxOutputTokens  int
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

type CondenseConfig struct {
	MaxChars int
}

// ArchiveConfig enables the object-store archive when Endpoint is set.
type ArchiveConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Enabled reports whether an archive endpoint is configured.
func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" }

type RateLimitConfig struct {
	PerMinute int
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is applied first; variables already
// set in the environment take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     envInt("LOGSWEEP_PORT", 8080),
			Env:      envString("LOGSWEEP_ENV", "development"),
			LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),
		},
		Store: StoreConfig{
			Driver:          envString("STORE_DRIVER", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			SQLitePath:      envString("SQLITE_PATH", "logsweep.db"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Loki: LokiConfig{
			BaseURL:  os.Getenv("LOKI_BASE_URL"),
			Username: os.Getenv("LOKI_USERNAME"),
			Password: os.Getenv("LOKI_PASSWORD"),
			OrgID:    envString("LOKI_ORG_ID", "default"),
			Timeout:  envDuration("LOKI_TIMEOUT", 30*time.Second),
			Levels:   envList("LOKI_LEVELS"),
			Keyword:  os.Getenv("LOKI_KEYWORD"),

			MaxEntries: envInt("LOKI_MAX_ENTRIES_PER_QUERY", 5000),
		},
		Fetch: FetchConfig{
			MaxQuerySpan: envDuration("LOKI_MAX_QUERY_SPAN", 24*time.Hour),
			PageLimit:    envInt("LOKI_PAGE_LIMIT", 5000),
			Concurrency:  envInt("FETCH_CONCURRENCY", 1),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 15*time.Minute),
			MaxOutputTokens:  envInt("AI_MAX_OUTPUT_TOKENS", 4096),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
				APIKey:  os.Getenv("VLLM_API_KEY"),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Retry: RetryConfig{
			Attempts:  envInt("TRANSPORT_RETRY_ATTEMPTS", 3),
			BaseDelay: envDuration("TRANSPORT_RETRY_BASE_DELAY", time.Second),
			MaxDelay:  envDuration("TRANSPORT_RETRY_MAX_DELAY", 30*time.Second),
		},
		Condense: CondenseConfig{
			MaxChars: envInt("CONDENSE_MAX_CHARS", 32000),
		},
		Archive: ArchiveConfig{
			Endpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
			Bucket:    envString("ARCHIVE_BUCKET", "logsweep"),
			AccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
			SecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),
			Region:    envString("ARCHIVE_REGION", "us-east-1"),
			UseSSL:    envBool("ARCHIVE_USE_SSL", false),
		},
		RateLimit: RateLimitConfig{
			PerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite; got %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is sqlite")
	}

	if c.Loki.BaseURL == "" {
		return fmt.Errorf("LOKI_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Loki.BaseURL, "http://") && !strings.HasPrefix(c.Loki.BaseURL, "https://") {
		return fmt.Errorf("LOKI_BASE_URL must start with http:// or https://, got %q", c.Loki.BaseURL)
	}
	if c.Fetch.MaxQuerySpan <= 0 {
		return fmt.Errorf("LOKI_MAX_QUERY_SPAN must be positive, got %s", c.Fetch.MaxQuerySpan)
	}
	if c.Loki.MaxEntries <= 0 {
		return fmt.Errorf("LOKI_MAX_ENTRIES_PER_QUERY must be positive, got %d", c.Loki.MaxEntries)
	}
	if c.Fetch.PageLimit <= 0 {
		return fmt.Errorf("LOKI_PAGE_LIMIT must be positive, got %d", c.Fetch.PageLimit)
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.Fetch.Concurrency)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	if c.AI.MaxOutputTokens <= 0 {
		return fmt.Errorf("AI_MAX_OUTPUT_TOKENS must be positive, got %d", c.AI.MaxOutputTokens)
	}

	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("TRANSPORT_RETRY_ATTEMPTS must be positive, got %d", c.Retry.Attempts)
	}
	if c.Condense.MaxChars <= 0 {
		return fmt.Errorf("CONDENSE_MAX_CHARS must be positive, got %d", c.Condense.MaxChars)
	}

	if c.Archive.Enabled() && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		return fmt.Errorf("ARCHIVE_ACCESS_KEY and ARCHIVE_SECRET_KEY are required when ARCHIVE_ENDPOINT is set")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return l
}
