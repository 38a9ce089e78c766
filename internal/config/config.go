// Package config provides configuration management for Memora.
// It loads settings from environment variables with the MEMORA_ prefix,
// overlays an optional YAML file, and provides sensible defaults for all
// configuration options.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/memora/internal/backup"
	"github.com/scrypster/memora/internal/engine"
	"github.com/scrypster/memora/internal/llm"
)

// Config holds all configuration settings for the Memora application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Engine    EngineConfig    `yaml:"engine"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Server port (default: 7373)
	Host         string        `yaml:"host"`          // Server host (default: 127.0.0.1)
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 90s, think can be slow
	RateLimit    float64       `yaml:"rate_limit"`    // Requests per second per client IP (default: 20)
	RateBurst    int           `yaml:"rate_burst"`    // default: 40
	EnableStream bool          `yaml:"enable_stream"` // Serve /ws/stats (default: true)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"engine"`    // memory, sqlite or postgres (default: sqlite)
	DataPath      string `yaml:"data_path"` // Directory of the SQLite file (default: ./data)
	PostgresDSN   string `yaml:"postgres_dsn"`

	// SQLite snapshots. Zero BackupInterval disables them.
	BackupInterval  time.Duration          `yaml:"backup_interval"`
	BackupDir       string                 `yaml:"backup_dir"` // default: {data_path}/backups
	BackupRetention backup.RetentionPolicy `yaml:"backup_retention"`
}

// LLMConfig contains model provider configuration.
type LLMConfig struct {
	LLMProvider       string        `yaml:"provider"` // none, ollama, openai, anthropic (default: none)
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	EmbeddingProvider string        `yaml:"embedding_provider"` // hash, ollama, openai, cohere (default: hash)
	EmbeddingModel    string        `yaml:"embedding_model"`
	EmbeddingDims     int           `yaml:"embedding_dims"`
	CohereAPIKey      string        `yaml:"cohere_api_key"`
	RerankModel       string        `yaml:"rerank_model"` // Cohere rerank model for the cross-encoder
	Timeout           time.Duration `yaml:"timeout"`
}

// EngineConfig contains ingestion pipeline settings.
type EngineConfig struct {
	NumWorkers         int           `yaml:"workers"`
	MaxBatchSize       int           `yaml:"max_batch_size"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay"`
	DependencyTimeout  time.Duration `yaml:"dependency_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	EmbeddingCacheSize int64         `yaml:"embedding_cache_size"`
}

// RetrievalConfig contains search and think tuning.
type RetrievalConfig struct {
	Weights               engine.FusionWeights `yaml:"weights"`
	HalfLife              time.Duration        `yaml:"half_life"`
	ActivationDecay       float64              `yaml:"activation_decay"`
	ActivationThreshold   float64              `yaml:"activation_threshold"`
	MaxHops               int                  `yaml:"max_hops"`
	MaxCandidates         int                  `yaml:"max_candidates"`
	GraphSeedCount        int                  `yaml:"graph_seed_count"`
	SemanticLinkTopK      int                  `yaml:"semantic_link_top_k"`
	SemanticLinkThreshold float64              `yaml:"semantic_link_threshold"`
	DefaultBudget         int                  `yaml:"default_budget"`
	DefaultMaxTokens      int                  `yaml:"default_max_tokens"`
	ThinkBudget           int                  `yaml:"think_budget"`
	SearchTimeout         time.Duration        `yaml:"search_timeout"`
	ThinkTimeout          time.Duration        `yaml:"think_timeout"`
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string `yaml:"mode"`      // development, production (default: development)
	APIToken     string `yaml:"api_token"` // Bearer token; empty disables auth
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: info)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults, then overlays the YAML file named by MEMORA_CONFIG_FILE if set.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv("MEMORA_CONFIG_FILE"))
}

// LoadConfigFile is LoadConfig with an explicit YAML path. An empty path
// skips the overlay. The result is validated.
func LoadConfigFile(path string) (*Config, error) {
	cfg := buildBaseConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	def := engine.DefaultConfig()
	weights := def.Weights
	return &Config{
		Server: ServerConfig{
			Port:         getEnvInt("MEMORA_PORT", 7373),
			Host:         getEnv("MEMORA_HOST", "127.0.0.1"),
			ReadTimeout:  getEnvDuration("MEMORA_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("MEMORA_WRITE_TIMEOUT", 90*time.Second),
			RateLimit:    getEnvFloat("MEMORA_RATE_LIMIT", 20),
			RateBurst:    getEnvInt("MEMORA_RATE_BURST", 40),
			EnableStream: getEnvBool("MEMORA_ENABLE_STREAM", true),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("MEMORA_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("MEMORA_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("MEMORA_POSTGRES_DSN", ""),

			BackupInterval:  getEnvDuration("MEMORA_BACKUP_INTERVAL", 0),
			BackupDir:       getEnv("MEMORA_BACKUP_DIR", ""),
			BackupRetention: backup.DefaultRetention(),
		},
		LLM: LLMConfig{
			LLMProvider:       getEnv("MEMORA_LLM_PROVIDER", "none"),
			Model:             getEnv("MEMORA_LLM_MODEL", ""),
			BaseURL:           getEnv("MEMORA_LLM_BASE_URL", ""),
			APIKey:            getEnv("MEMORA_LLM_API_KEY", ""),
			EmbeddingProvider: getEnv("MEMORA_EMBEDDING_PROVIDER", "hash"),
			EmbeddingModel:    getEnv("MEMORA_EMBEDDING_MODEL", ""),
			EmbeddingDims:     getEnvInt("MEMORA_EMBEDDING_DIMS", 0),
			CohereAPIKey:      getEnv("MEMORA_COHERE_API_KEY", ""),
			RerankModel:       getEnv("MEMORA_RERANK_MODEL", "rerank-english-v3.0"),
			Timeout:           getEnvDuration("MEMORA_LLM_TIMEOUT", 60*time.Second),
		},
		Engine: EngineConfig{
			NumWorkers:         getEnvInt("MEMORA_WORKERS", def.NumWorkers),
			MaxBatchSize:       getEnvInt("MEMORA_MAX_BATCH_SIZE", def.MaxBatchSize),
			MaxRetries:         getEnvInt("MEMORA_MAX_RETRIES", def.MaxRetries),
			RetryBaseDelay:     getEnvDuration("MEMORA_RETRY_BASE_DELAY", def.RetryBaseDelay),
			DependencyTimeout:  getEnvDuration("MEMORA_DEPENDENCY_TIMEOUT", def.DependencyTimeout),
			ShutdownTimeout:    getEnvDuration("MEMORA_SHUTDOWN_TIMEOUT", def.ShutdownTimeout),
			EmbeddingCacheSize: int64(getEnvInt("MEMORA_EMBEDDING_CACHE_SIZE", int(def.EmbeddingCacheSize))),
		},
		Retrieval: RetrievalConfig{
			Weights: engine.FusionWeights{
				Semantic: getEnvFloat("MEMORA_WEIGHT_SEMANTIC", weights.Semantic),
				Lexical:  getEnvFloat("MEMORA_WEIGHT_LEXICAL", weights.Lexical),
				Graph:    getEnvFloat("MEMORA_WEIGHT_GRAPH", weights.Graph),
				Temporal: getEnvFloat("MEMORA_WEIGHT_TEMPORAL", weights.Temporal),
			},
			HalfLife:              getEnvDuration("MEMORA_HALF_LIFE", def.TemporalHalfLife),
			ActivationDecay:       getEnvFloat("MEMORA_ACTIVATION_DECAY", def.ActivationDecay),
			ActivationThreshold:   getEnvFloat("MEMORA_ACTIVATION_THRESHOLD", def.ActivationThreshold),
			MaxHops:               getEnvInt("MEMORA_MAX_HOPS", def.MaxHops),
			MaxCandidates:         getEnvInt("MEMORA_MAX_CANDIDATES", def.MaxCandidates),
			GraphSeedCount:        getEnvInt("MEMORA_GRAPH_SEED_COUNT", def.GraphSeedCount),
			SemanticLinkTopK:      getEnvInt("MEMORA_SEMANTIC_LINK_TOP_K", def.SemanticLinkTopK),
			SemanticLinkThreshold: getEnvFloat("MEMORA_SEMANTIC_LINK_THRESHOLD", def.SemanticLinkThreshold),
			DefaultBudget:         getEnvInt("MEMORA_DEFAULT_BUDGET", def.DefaultBudget),
			DefaultMaxTokens:      getEnvInt("MEMORA_DEFAULT_MAX_TOKENS", def.DefaultMaxTokens),
			ThinkBudget:           getEnvInt("MEMORA_THINK_BUDGET", def.ThinkBudget),
			SearchTimeout:         getEnvDuration("MEMORA_SEARCH_TIMEOUT", def.SearchTimeout),
			ThinkTimeout:          getEnvDuration("MEMORA_THINK_TIMEOUT", def.ThinkTimeout),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("MEMORA_SECURITY_MODE", "development"),
			APIToken:     getEnv("MEMORA_API_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("MEMORA_LOG_LEVEL", "info"),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port must be in 1..65535, got %d", c.Server.Port))
	}
	switch c.Storage.StorageEngine {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage requires MEMORA_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage engine must be memory, sqlite or postgres, got %q", c.Storage.StorageEngine))
	}
	if err := c.Retrieval.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if d := c.Retrieval.ActivationDecay; !(d > 0 && d < 1) {
		errs = append(errs, fmt.Errorf("activation decay must be in (0,1), got %v", d))
	}
	if th := c.Retrieval.ActivationThreshold; !(th > 0) || math.IsInf(th, 0) {
		errs = append(errs, fmt.Errorf("activation threshold must be > 0, got %v", th))
	}
	if c.Retrieval.HalfLife <= 0 {
		errs = append(errs, fmt.Errorf("half-life must be > 0, got %v", c.Retrieval.HalfLife))
	}
	if c.Engine.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Engine.NumWorkers))
	}
	if c.Storage.BackupInterval < 0 {
		errs = append(errs, fmt.Errorf("backup interval must be >= 0, got %v", c.Storage.BackupInterval))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must be >= 0, got %v", c.Server.RateLimit))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// FromAppConfig maps the application config onto the engine config.
func FromAppConfig(c *Config) engine.Config {
	cfg := engine.DefaultConfig()
	cfg.NumWorkers = c.Engine.NumWorkers
	cfg.MaxBatchSize = c.Engine.MaxBatchSize
	cfg.MaxRetries = c.Engine.MaxRetries
	cfg.RetryBaseDelay = c.Engine.RetryBaseDelay
	cfg.DependencyTimeout = c.Engine.DependencyTimeout
	cfg.ShutdownTimeout = c.Engine.ShutdownTimeout
	cfg.EmbeddingCacheSize = c.Engine.EmbeddingCacheSize

	r := c.Retrieval
	cfg.Weights = r.Weights
	cfg.TemporalHalfLife = r.HalfLife
	cfg.ActivationDecay = r.ActivationDecay
	cfg.ActivationThreshold = r.ActivationThreshold
	cfg.MaxHops = r.MaxHops
	cfg.MaxCandidates = r.MaxCandidates
	cfg.GraphSeedCount = r.GraphSeedCount
	cfg.SemanticLinkTopK = r.SemanticLinkTopK
	cfg.SemanticLinkThreshold = r.SemanticLinkThreshold
	cfg.DefaultBudget = r.DefaultBudget
	cfg.DefaultMaxTokens = r.DefaultMaxTokens
	cfg.ThinkBudget = r.ThinkBudget
	cfg.SearchTimeout = r.SearchTimeout
	cfg.ThinkTimeout = r.ThinkTimeout
	return cfg
}

// ProviderConfig maps the LLM section onto the provider factory config.
func ProviderConfig(c *Config) llm.Config {
	return llm.Config{
		Provider:          c.LLM.LLMProvider,
		Model:             c.LLM.Model,
		BaseURL:           c.LLM.BaseURL,
		APIKey:            c.LLM.APIKey,
		EmbeddingProvider: c.LLM.EmbeddingProvider,
		EmbeddingModel:    c.LLM.EmbeddingModel,
		EmbeddingDims:     c.LLM.EmbeddingDims,
		CohereAPIKey:      c.LLM.CohereAPIKey,
		Timeout:           c.LLM.Timeout,
	}
}

// IsProduction reports whether the security mode is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Security.SecurityMode, "production")
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration parses values such as "30s" or "720h".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
