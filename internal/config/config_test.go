package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memora/internal/config"
	"github.com/scrypster/memora/internal/engine"
)

func TestLoadConfig_DefaultHostIsLocalhost(t *testing.T) {
	_ = os.Unsetenv("MEMORA_HOST")
	t.Setenv("MEMORA_CONFIG_FILE", "")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("MEMORA_CONFIG_FILE", "")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7373, cfg.Server.Port)
	assert.True(t, cfg.Server.EnableStream)
	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, "none", cfg.LLM.LLMProvider)
	assert.Equal(t, "hash", cfg.LLM.EmbeddingProvider)
	assert.Equal(t, engine.DefaultFusionWeights(), cfg.Retrieval.Weights)
	assert.False(t, cfg.IsProduction())

	// The mapped engine config equals the engine defaults.
	assert.Equal(t, engine.DefaultConfig(), config.FromAppConfig(cfg))
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MEMORA_CONFIG_FILE", "")
	t.Setenv("MEMORA_HOST", "0.0.0.0")
	t.Setenv("MEMORA_PORT", "9000")
	t.Setenv("MEMORA_STORAGE_ENGINE", "memory")
	t.Setenv("MEMORA_WORKERS", "8")
	t.Setenv("MEMORA_WEIGHT_GRAPH", "0.5")
	t.Setenv("MEMORA_HALF_LIFE", "48h")
	t.Setenv("MEMORA_ENABLE_STREAM", "no")
	t.Setenv("MEMORA_SECURITY_MODE", "Production")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.StorageEngine)
	assert.False(t, cfg.Server.EnableStream)
	assert.True(t, cfg.IsProduction())

	ec := config.FromAppConfig(cfg)
	assert.Equal(t, 8, ec.NumWorkers)
	assert.InDelta(t, 0.5, ec.Weights.Graph, 1e-9)
	assert.Equal(t, 48*time.Hour, ec.TemporalHalfLife)
	require.NoError(t, ec.Validate())
}

func TestLoadConfig_UnparseableEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("MEMORA_CONFIG_FILE", "")
	t.Setenv("MEMORA_PORT", "not-a-port")
	t.Setenv("MEMORA_ACTIVATION_DECAY", "half")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7373, cfg.Server.Port)
	assert.InDelta(t, 0.5, cfg.Retrieval.ActivationDecay, 1e-9)
}

func TestLoadConfigFile_YAMLOverlay(t *testing.T) {
	t.Setenv("MEMORA_PORT", "9000")
	path := filepath.Join(t.TempDir(), "memora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  engine: memory
retrieval:
  weights:
    semantic: 0.4
    lexical: 0.2
    graph: 0.3
    temporal: 0.1
  half_life: 240h
  max_hops: 2
logging:
  level: debug
`), 0o600))

	cfg, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port, "keys absent from the file keep their env value")
	assert.Equal(t, "memory", cfg.Storage.StorageEngine)
	assert.Equal(t, engine.FusionWeights{Semantic: 0.4, Lexical: 0.2, Graph: 0.3, Temporal: 0.1}, cfg.Retrieval.Weights)
	assert.Equal(t, 240*time.Hour, cfg.Retrieval.HalfLife)
	assert.Equal(t, 2, cfg.Retrieval.MaxHops)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	_, err := config.LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("retrieval: [unclosed"), 0o600))
	_, err = config.LoadConfigFile(bad)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("retrieval:\n  activation_decay: 1.5\n"), 0o600))
	_, err = config.LoadConfigFile(invalid)
	assert.ErrorContains(t, err, "activation decay")
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		t.Setenv("MEMORA_CONFIG_FILE", "")
		cfg, err := config.LoadConfig()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"port", func(c *config.Config) { c.Server.Port = 0 }, "port"},
		{"engine", func(c *config.Config) { c.Storage.StorageEngine = "mongo" }, "storage engine"},
		{"postgres dsn", func(c *config.Config) { c.Storage.StorageEngine = "postgres" }, "MEMORA_POSTGRES_DSN"},
		{"negative weight", func(c *config.Config) { c.Retrieval.Weights.Lexical = -1 }, "fusion weight"},
		{"zero weights", func(c *config.Config) { c.Retrieval.Weights = engine.FusionWeights{} }, "positive sum"},
		{"decay", func(c *config.Config) { c.Retrieval.ActivationDecay = 1 }, "activation decay"},
		{"threshold", func(c *config.Config) { c.Retrieval.ActivationThreshold = 0 }, "activation threshold"},
		{"half-life", func(c *config.Config) { c.Retrieval.HalfLife = 0 }, "half-life"},
		{"workers", func(c *config.Config) { c.Engine.NumWorkers = 0 }, "workers"},
		{"log level", func(c *config.Config) { c.Logging.Level = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = -1
		cfg.Engine.NumWorkers = 0
		err := cfg.Validate()
		assert.ErrorContains(t, err, "port")
		assert.ErrorContains(t, err, "workers")
	})
}

func TestProviderConfig(t *testing.T) {
	t.Setenv("MEMORA_CONFIG_FILE", "")
	t.Setenv("MEMORA_LLM_PROVIDER", "ollama")
	t.Setenv("MEMORA_EMBEDDING_DIMS", "128")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	pc := config.ProviderConfig(cfg)
	assert.Equal(t, "ollama", pc.Provider)
	assert.Equal(t, 128, pc.EmbeddingDims)
	assert.Equal(t, "hash", pc.EmbeddingProvider)
}
