// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/ingestor/ai"
	"github.com/poiesic/ingestor/chunk"
	"github.com/poiesic/ingestor/classify"
	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/crawler"
	"github.com/poiesic/ingestor/embed"
	"github.com/poiesic/ingestor/ingestion"
	"github.com/poiesic/ingestor/synth"
)

// Vector backends.
const (
	BackendBadger   = "badger"
	BackendPgvector = "pgvector"
)

// DefaultShutdownTimeout bounds the HTTP server's graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// File is the root of a configuration file.
type File struct {
	// DataDir holds the control-plane database and per-tenant stores.
	DataDir string `yaml:"data_dir" toml:"data_dir"`

	AI        AI        `yaml:"ai" toml:"ai"`
	Embedding Embedding `yaml:"embedding" toml:"embedding"`
	Classify  Classify  `yaml:"classify" toml:"classify"`
	Chunk     Chunk     `yaml:"chunk" toml:"chunk"`
	Synth     Synth     `yaml:"synth" toml:"synth"`
	Crawler   Crawler   `yaml:"crawler" toml:"crawler"`
	Pipeline  Pipeline  `yaml:"pipeline" toml:"pipeline"`
	Vectors   Vectors   `yaml:"vectors" toml:"vectors"`
	API       API       `yaml:"api" toml:"api"`
}

// AI configures the hosted models.
type AI struct {
	EmbeddingHost   string   `yaml:"embedding_host" toml:"embedding_host"`
	ClassifierHost  string   `yaml:"classifier_host" toml:"classifier_host"`
	CodegenHost     string   `yaml:"codegen_host" toml:"codegen_host"`
	VisionHost      string   `yaml:"vision_host" toml:"vision_host"`
	APIKey          string   `yaml:"api_key" toml:"api_key"`
	EmbeddingModel  string   `yaml:"embedding_model" toml:"embedding_model"`
	ClassifierModel string   `yaml:"classifier_model" toml:"classifier_model"`
	CodegenModel    string   `yaml:"codegen_model" toml:"codegen_model"`
	VisionModel     string   `yaml:"vision_model" toml:"vision_model"`
	QueryPrefix     string   `yaml:"query_prefix" toml:"query_prefix"`
	DocumentPrefix  string   `yaml:"document_prefix" toml:"document_prefix"`
	Dimensions      int      `yaml:"dimensions" toml:"dimensions"`
	RequestTimeout  Duration `yaml:"request_timeout" toml:"request_timeout"`
}

// Embedding configures batching and retries of embedding calls.
type Embedding struct {
	BatchSize         int      `yaml:"batch_size" toml:"batch_size"`
	MaxAttempts       int      `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelay         Duration `yaml:"base_delay" toml:"base_delay"`
	MaxDelay          Duration `yaml:"max_delay" toml:"max_delay"`
	CallTimeout       Duration `yaml:"call_timeout" toml:"call_timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int      `yaml:"burst" toml:"burst"`
	Normalize         bool     `yaml:"normalize" toml:"normalize"`
}

// Classify configures the classification cascade.
type Classify struct {
	Categories      []string `yaml:"categories" toml:"categories"`
	Fallback        string   `yaml:"fallback" toml:"fallback"`
	Threshold       float64  `yaml:"threshold" toml:"threshold"`
	SampleBytes     int      `yaml:"sample_bytes" toml:"sample_bytes"`
	ExcerptRunes    int      `yaml:"excerpt_runes" toml:"excerpt_runes"`
	ModelTimeout    Duration `yaml:"model_timeout" toml:"model_timeout"`
	ModelConfidence float64  `yaml:"model_confidence" toml:"model_confidence"`
}

// Chunk configures chunk sizes.
type Chunk struct {
	TargetSize int `yaml:"target_size" toml:"target_size"`
	MaxSpan    int `yaml:"max_span" toml:"max_span"`
	Overlap    int `yaml:"overlap" toml:"overlap"`
}

// Synth configures handler synthesis and its sandbox.
type Synth struct {
	MaxAttempts    int      `yaml:"max_attempts" toml:"max_attempts"`
	SampleWindow   int      `yaml:"sample_window" toml:"sample_window"`
	MaxSourceBytes int      `yaml:"max_source_bytes" toml:"max_source_bytes"`
	MaxSteps       uint64   `yaml:"max_steps" toml:"max_steps"`
	Timeout        Duration `yaml:"timeout" toml:"timeout"`
	MaxOutputBytes int      `yaml:"max_output_bytes" toml:"max_output_bytes"`
	MaxMemoryBytes int64    `yaml:"max_memory_bytes" toml:"max_memory_bytes"`
	MinTextLength  int      `yaml:"min_text_length" toml:"min_text_length"`
	RejectionTTL   Duration `yaml:"rejection_ttl" toml:"rejection_ttl"`
}

// Crawler configures discovery.
type Crawler struct {
	MaxObjectSize int64    `yaml:"max_object_size" toml:"max_object_size"`
	HashDedup     bool     `yaml:"hash_dedup" toml:"hash_dedup"`
	WatchDebounce Duration `yaml:"watch_debounce" toml:"watch_debounce"`
}

// Pipeline configures the orchestrator.
type Pipeline struct {
	CPUWorkers       int      `yaml:"cpu_workers" toml:"cpu_workers"`
	NetworkWorkers   int      `yaml:"network_workers" toml:"network_workers"`
	QueueSize        int      `yaml:"queue_size" toml:"queue_size"`
	MaxAttempts      int      `yaml:"max_attempts" toml:"max_attempts"`
	RetryBaseDelay   Duration `yaml:"retry_base_delay" toml:"retry_base_delay"`
	RetryMaxDelay    Duration `yaml:"retry_max_delay" toml:"retry_max_delay"`
	StageTimeout     Duration `yaml:"stage_timeout" toml:"stage_timeout"`
	AllowPartialLoad bool     `yaml:"allow_partial_load" toml:"allow_partial_load"`
}

// Vectors selects the similarity index backend.
type Vectors struct {
	// Backend is "badger" (per-tenant embedded store) or "pgvector".
	Backend     string `yaml:"backend" toml:"backend"`
	PostgresURL string `yaml:"postgres_url" toml:"postgres_url"`
}

// API configures the HTTP front door.
type API struct {
	Listen          string   `yaml:"listen" toml:"listen"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Default returns a File holding every component's defaults.
func Default() *File {
	a := ai.DefaultConfig()
	e := embed.DefaultConfig()
	cl := classify.DefaultConfig()
	ch := chunk.DefaultConfig()
	s := synth.DefaultConfig()
	p := ingestion.DefaultConfig()

	categories := make([]string, len(cl.Categories))
	for i, c := range cl.Categories {
		categories[i] = string(c)
	}

	return &File{
		DataDir: "ingestor-data",
		AI: AI{
			EmbeddingHost:   a.EmbeddingHost,
			ClassifierHost:  a.ClassifierHost,
			CodegenHost:     a.CodegenHost,
			VisionHost:      a.VisionHost,
			APIKey:          a.APIKey,
			EmbeddingModel:  a.EmbeddingModel,
			ClassifierModel: a.ClassifierModel,
			CodegenModel:    a.CodegenModel,
			VisionModel:     a.VisionModel,
			QueryPrefix:     a.QueryPrefix,
			DocumentPrefix:  a.DocumentPrefix,
			Dimensions:      a.Dimensions,
			RequestTimeout:  Duration(a.RequestTimeout),
		},
		Embedding: Embedding{
			BatchSize:         e.BatchSize,
			MaxAttempts:       e.MaxAttempts,
			BaseDelay:         Duration(e.BaseDelay),
			MaxDelay:          Duration(e.MaxDelay),
			CallTimeout:       Duration(e.CallTimeout),
			RequestsPerSecond: e.RequestsPerSecond,
			Burst:             e.Burst,
			Normalize:         e.Normalize,
		},
		Classify: Classify{
			Categories:      categories,
			Fallback:        string(cl.Fallback),
			Threshold:       cl.Threshold,
			SampleBytes:     cl.SampleBytes,
			ExcerptRunes:    cl.ExcerptRunes,
			ModelTimeout:    Duration(cl.ModelTimeout),
			ModelConfidence: cl.ModelConfidence,
		},
		Chunk: Chunk{
			TargetSize: ch.TargetSize,
			MaxSpan:    ch.MaxSpan,
			Overlap:    ch.Overlap,
		},
		Synth: Synth{
			MaxAttempts:    s.MaxAttempts,
			SampleWindow:   s.SampleWindow,
			MaxSourceBytes: s.MaxSourceBytes,
			MaxSteps:       s.MaxSteps,
			Timeout:        Duration(s.Timeout),
			MaxOutputBytes: s.MaxOutputBytes,
			MaxMemoryBytes: s.MaxMemoryBytes,
			MinTextLength:  s.MinTextLength,
			RejectionTTL:   Duration(s.RejectionTTL),
		},
		Crawler: Crawler{
			MaxObjectSize: crawler.DefaultMaxObjectSize,
			WatchDebounce: Duration(crawler.DefaultDebounce),
		},
		Pipeline: Pipeline{
			CPUWorkers:       p.CPUWorkers,
			NetworkWorkers:   p.NetworkWorkers,
			QueueSize:        p.QueueSize,
			MaxAttempts:      p.MaxAttempts,
			RetryBaseDelay:   Duration(p.RetryBaseDelay),
			RetryMaxDelay:    Duration(p.RetryMaxDelay),
			StageTimeout:     Duration(p.StageTimeout),
			AllowPartialLoad: p.AllowPartialLoad,
		},
		Vectors: Vectors{Backend: BackendBadger},
		API: API{
			Listen:          ":8080",
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
	}
}

// Load reads a YAML or TOML file over the defaults and validates it.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes data in format ("yaml" or "toml") over the defaults and
// validates the result.
func Parse(data []byte, format string) (*File, error) {
	f := Default()
	expanded := []byte(os.ExpandEnv(string(data)))
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && err != io.EOF {
			return nil, err
		}
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(expanded))
		dec.DisallowUnknownFields()
		if err := dec.Decode(f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Encode writes f to w in format.
func (f *File) Encode(w io.Writer, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(f)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".toml":
		return "toml", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Validate checks every section by building its component config.
func (f *File) Validate() error {
	if f.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if err := f.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	checks := []struct {
		section string
		err     error
	}{
		{"embedding", f.EmbedConfig().Validate()},
		{"classify", f.ClassifyConfig().Validate()},
		{"chunk", f.ChunkConfig().Validate()},
		{"synth", f.SynthConfig().Validate()},
		{"pipeline", f.PipelineConfig().Validate()},
	}
	for _, c := range checks {
		if c.err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, c.section, c.err)
		}
	}
	if f.Crawler.MaxObjectSize < 0 {
		return fmt.Errorf("%w: crawler.max_object_size must be >= 0", ErrInvalidConfig)
	}
	switch f.Vectors.Backend {
	case BackendBadger:
	case BackendPgvector:
		if f.Vectors.PostgresURL == "" {
			return fmt.Errorf("%w: vectors.postgres_url is required for pgvector", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown vector backend %q", ErrInvalidConfig, f.Vectors.Backend)
	}
	return nil
}

// AIConfig returns the model settings as an ai.Config.
func (f *File) AIConfig() *ai.Config {
	return &ai.Config{
		EmbeddingHost:   f.AI.EmbeddingHost,
		ClassifierHost:  f.AI.ClassifierHost,
		CodegenHost:     f.AI.CodegenHost,
		VisionHost:      f.AI.VisionHost,
		APIKey:          f.AI.APIKey,
		EmbeddingModel:  f.AI.EmbeddingModel,
		ClassifierModel: f.AI.ClassifierModel,
		CodegenModel:    f.AI.CodegenModel,
		VisionModel:     f.AI.VisionModel,
		QueryPrefix:     f.AI.QueryPrefix,
		DocumentPrefix:  f.AI.DocumentPrefix,
		Dimensions:      f.AI.Dimensions,
		RequestTimeout:  f.AI.RequestTimeout.Std(),
	}
}

// EmbedConfig returns the embedding client settings.
func (f *File) EmbedConfig() *embed.Config {
	return &embed.Config{
		BatchSize:         f.Embedding.BatchSize,
		MaxAttempts:       f.Embedding.MaxAttempts,
		BaseDelay:         f.Embedding.BaseDelay.Std(),
		MaxDelay:          f.Embedding.MaxDelay.Std(),
		CallTimeout:       f.Embedding.CallTimeout.Std(),
		RequestsPerSecond: f.Embedding.RequestsPerSecond,
		Burst:             f.Embedding.Burst,
		Normalize:         f.Embedding.Normalize,
	}
}

// ClassifyConfig returns the cascade settings.
func (f *File) ClassifyConfig() *classify.Config {
	categories := make([]core.Category, len(f.Classify.Categories))
	for i, c := range f.Classify.Categories {
		categories[i] = core.Category(c)
	}
	return &classify.Config{
		Categories:      categories,
		Fallback:        core.Category(f.Classify.Fallback),
		Threshold:       f.Classify.Threshold,
		SampleBytes:     f.Classify.SampleBytes,
		ExcerptRunes:    f.Classify.ExcerptRunes,
		ModelTimeout:    f.Classify.ModelTimeout.Std(),
		ModelConfidence: f.Classify.ModelConfidence,
	}
}

// ChunkConfig returns the chunker settings.
func (f *File) ChunkConfig() *chunk.Config {
	return &chunk.Config{
		TargetSize: f.Chunk.TargetSize,
		MaxSpan:    f.Chunk.MaxSpan,
		Overlap:    f.Chunk.Overlap,
	}
}

// SynthConfig returns the synthesis settings.
func (f *File) SynthConfig() *synth.Config {
	return &synth.Config{
		MaxAttempts:    f.Synth.MaxAttempts,
		SampleWindow:   f.Synth.SampleWindow,
		MaxSourceBytes: f.Synth.MaxSourceBytes,
		MaxSteps:       f.Synth.MaxSteps,
		Timeout:        f.Synth.Timeout.Std(),
		MaxOutputBytes: f.Synth.MaxOutputBytes,
		MaxMemoryBytes: f.Synth.MaxMemoryBytes,
		MinTextLength:  f.Synth.MinTextLength,
		RejectionTTL:   f.Synth.RejectionTTL.Std(),
	}
}

// PipelineConfig returns the orchestrator settings.
func (f *File) PipelineConfig() *ingestion.Config {
	return &ingestion.Config{
		CPUWorkers:       f.Pipeline.CPUWorkers,
		NetworkWorkers:   f.Pipeline.NetworkWorkers,
		QueueSize:        f.Pipeline.QueueSize,
		MaxAttempts:      f.Pipeline.MaxAttempts,
		RetryBaseDelay:   f.Pipeline.RetryBaseDelay.Std(),
		RetryMaxDelay:    f.Pipeline.RetryMaxDelay.Std(),
		StageTimeout:     f.Pipeline.StageTimeout.Std(),
		AllowPartialLoad: f.Pipeline.AllowPartialLoad,
	}
}
