package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/ingestion"
)

func TestDefault_IsValid(t *testing.T) {
	f := Default()
	require.NoError(t, f.Validate())
	assert.Equal(t, BackendBadger, f.Vectors.Backend)
	assert.Equal(t, ingestion.DefaultConfig(), f.PipelineConfig())
}

func TestParse_YAMLOverridesDefaults(t *testing.T) {
	data := []byte(`
data_dir: /srv/ingestor
ai:
  embedding_model: nomic-embed-text
pipeline:
  max_attempts: 5
  retry_base_delay: 2s
  allow_partial_load: true
classify:
  categories: [tax, legal, general]
  fallback: general
  threshold: 0.8
`)
	f, err := Parse(data, "yaml")
	require.NoError(t, err)

	assert.Equal(t, "/srv/ingestor", f.DataDir)
	assert.Equal(t, "nomic-embed-text", f.AIConfig().EmbeddingModel)
	assert.Equal(t, Default().AI.ClassifierModel, f.AI.ClassifierModel, "unset fields keep defaults")

	p := f.PipelineConfig()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.RetryBaseDelay)
	assert.True(t, p.AllowPartialLoad)
	assert.Equal(t, ingestion.DefaultConfig().QueueSize, p.QueueSize)

	c := f.ClassifyConfig()
	assert.Equal(t, []core.Category{"tax", "legal", "general"}, c.Categories)
	assert.Equal(t, core.Category("general"), c.Fallback)
	assert.InDelta(t, 0.8, c.Threshold, 1e-9)
}

func TestParse_TOML(t *testing.T) {
	data := []byte(`
data_dir = "/srv/ingestor"

[embedding]
batch_size = 16
call_timeout = "45s"

[vectors]
backend = "pgvector"
postgres_url = "postgres://localhost/vectors"
`)
	f, err := Parse(data, "toml")
	require.NoError(t, err)
	assert.Equal(t, 16, f.EmbedConfig().BatchSize)
	assert.Equal(t, 45*time.Second, f.EmbedConfig().CallTimeout)
	assert.Equal(t, BackendPgvector, f.Vectors.Backend)
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("INGESTOR_TEST_KEY", "sk-test")
	f, err := Parse([]byte("ai:\n  api_key: ${INGESTOR_TEST_KEY}\n"), "yaml")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", f.AI.APIKey)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil, "yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), f)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
		target error
	}{
		{"unknown format", "", "ini", ErrUnsupportedFormat},
		{"pgvector without url", "vectors:\n  backend: pgvector\n", "yaml", ErrInvalidConfig},
		{"unknown backend", "vectors:\n  backend: qdrant\n", "yaml", ErrInvalidConfig},
		{"fallback outside categories", "classify:\n  categories: [tax]\n  fallback: general\n", "yaml", ErrInvalidConfig},
		{"zero attempts", "pipeline:\n  max_attempts: 0\n", "yaml", ErrInvalidConfig},
		{"empty data dir", "data_dir = \"\"\n", "toml", ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	t.Run("bad duration", func(t *testing.T) {
		_, err := Parse([]byte("pipeline:\n  stage_timeout: soon\n"), "yaml")
		assert.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Parse([]byte("pipline:\n  max_attempts: 2\n"), "yaml")
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "ingestor.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("chunk:\n  target_size: 800\n  max_span: 1600\n  overlap: 80\n"), 0o644))
	f, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 800, f.ChunkConfig().TargetSize)

	tomlPath := filepath.Join(dir, "ingestor.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[synth]\nrejection_ttl = \"1h\"\n"), 0o644))
	f, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, f.SynthConfig().RejectionTTL)

	_, err = Load(filepath.Join(dir, "ingestor.json"))
	assert.Error(t, err)

	jsonPath := filepath.Join(dir, "present.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o644))
	_, err = Load(jsonPath)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncode_RoundTrips(t *testing.T) {
	for _, format := range []string{"yaml", "toml"} {
		t.Run(format, func(t *testing.T) {
			want := Default()
			want.Pipeline.StageTimeout = Duration(90 * time.Second)

			var buf bytes.Buffer
			require.NoError(t, want.Encode(&buf, format))
			if format == "yaml" {
				assert.Contains(t, buf.String(), "stage_timeout: 1m30s")
			}

			got, err := Parse(buf.Bytes(), format)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	var buf bytes.Buffer
	assert.ErrorIs(t, Default().Encode(&buf, "xml"), ErrUnsupportedFormat)
}
