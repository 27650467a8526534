package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.CodegenHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, "qwen2.5:3b", cfg.ClassifierModel)
	assert.Empty(t, cfg.VisionModel)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.ClassifierHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.CodegenHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.VisionHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithClassifierHost("http://classify:9090/v1"),
			WithCodegenHost("http://code:9191/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://classify:9090/v1", cfg.ClassifierHost)
		assert.Equal(t, "http://code:9191/v1", cfg.CodegenHost)
	})

	t.Run("with models and prefixes", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingModel("nomic-embed-text"),
			WithPrefixes("search_query: ", "search_document: "),
			WithVisionModel("llava"),
			WithDimensions(768),
		)

		assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
		assert.Equal(t, "search_query: ", cfg.Prefix(EmbedQuery))
		assert.Equal(t, "search_document: ", cfg.Prefix(EmbedDocument))
		assert.Equal(t, "llava", cfg.VisionModel)
		assert.Equal(t, 768, cfg.Dimensions)
	})
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trims trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps suffix", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"empty stays empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
		})
	}

	t.Run("derived hosts follow classifier", func(t *testing.T) {
		cfg := &Config{ClassifierHost: "http://llm:8000"}
		cfg.Normalize()
		assert.Equal(t, "http://llm:8000/v1", cfg.CodegenHost)
		assert.Equal(t, "http://llm:8000/v1", cfg.VisionHost)
		assert.Equal(t, "none", cfg.APIKey)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost is required"},
		{"missing classifier host", func(c *Config) { c.ClassifierHost = "" }, "ClassifierHost is required"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel is required"},
		{"missing classifier model", func(c *Config) { c.ClassifierModel = "" }, "ClassifierModel is required"},
		{"missing codegen model", func(c *Config) { c.CodegenModel = "" }, "CodegenModel is required"},
		{"negative dimensions", func(c *Config) { c.Dimensions = -1 }, "Dimensions"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "RequestTimeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmbedMode_String(t *testing.T) {
	assert.Equal(t, "query", EmbedQuery.String())
	assert.Equal(t, "document", EmbedDocument.String())
}
