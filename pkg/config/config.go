package config

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/synapsevault/memoryengine/internal/memerr"
)

// Config holds the complete set of environment-driven engine settings.
type Config struct {
	DataDir                 string
	DecayRate               float64
	ReflectionThreshold     float64
	ConsolidationInterval   time.Duration
	MergeSimilarityThresh   float64
	PruneAgeDays            int
	WeightRecency           float64
	WeightImportance        float64
	WeightRelevance         float64
	EmbeddingModel          string
	EmbeddingDimensions     int
	AnthropicAPIKey         string
	LogLevel                string
}

// Option applies a programmatic override after the environment has been
// read. Options run last, so they always win over env/dotenv values.
type Option func(*Config)

func WithDataDir(path string) Option {
	return func(c *Config) { c.DataDir = path }
}

func WithLogLevel(level string) Option {
	return func(c *Config) { c.LogLevel = level }
}

func WithAnthropicAPIKey(key string) Option {
	return func(c *Config) { c.AnthropicAPIKey = key }
}

// DatabasePath returns the path of the relational store under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "memory.db")
}

// VectorStoreDir returns the path of the vector-store directory under
// DataDir. The name is preserved from the engine's original deployment
// layout even though the backing engine is sqlite-vec, not LanceDB.
func (c *Config) VectorStoreDir() string {
	return filepath.Join(c.DataDir, "lancedb")
}

// VectorStorePath returns the path of the sqlite-vec database file
// inside VectorStoreDir.
func (c *Config) VectorStorePath() string {
	return filepath.Join(c.VectorStoreDir(), "vectors.db")
}

// setDefaults installs the spec's documented default values into v before
// the environment is read, so AutomaticEnv only needs to override them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("decay_rate", 0.995)
	v.SetDefault("reflection_threshold", 150.0)
	v.SetDefault("consolidation_interval", 86_400_000)
	v.SetDefault("merge_similarity_threshold", 0.85)
	v.SetDefault("prune_age_days", 90)
	v.SetDefault("weight_recency", 0.4)
	v.SetDefault("weight_importance", 0.3)
	v.SetDefault("weight_relevance", 0.3)
	v.SetDefault("embedding_model", "Xenova/all-MiniLM-L6-v2")
	v.SetDefault("embedding_dimensions", 384)
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("log_level", "info")
}

var envKeys = []string{
	"data_dir",
	"decay_rate",
	"reflection_threshold",
	"consolidation_interval",
	"merge_similarity_threshold",
	"prune_age_days",
	"weight_recency",
	"weight_importance",
	"weight_relevance",
	"embedding_model",
	"embedding_dimensions",
	"anthropic_api_key",
	"log_level",
}

// Load reads configuration from an optional ".env" file, then from the
// process environment, then applies any programmatic options, in that
// order of increasing precedence. It returns a Configuration-kind error if
// the resulting config fails Validate.
func Load(opts ...Option) (*Config, error) {
	// godotenv.Load is a no-op (returns an error we intentionally ignore)
	// when no .env file is present; the environment always wins over it
	// since Overload is not used.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	cfg := &Config{
		DataDir:               v.GetString("data_dir"),
		DecayRate:             v.GetFloat64("decay_rate"),
		ReflectionThreshold:   v.GetFloat64("reflection_threshold"),
		ConsolidationInterval: time.Duration(v.GetInt64("consolidation_interval")) * time.Millisecond,
		MergeSimilarityThresh: v.GetFloat64("merge_similarity_threshold"),
		PruneAgeDays:          v.GetInt("prune_age_days"),
		WeightRecency:         v.GetFloat64("weight_recency"),
		WeightImportance:      v.GetFloat64("weight_importance"),
		WeightRelevance:       v.GetFloat64("weight_relevance"),
		EmbeddingModel:        v.GetString("embedding_model"),
		EmbeddingDimensions:   v.GetInt("embedding_dimensions"),
		AnthropicAPIKey:       v.GetString("anthropic_api_key"),
		LogLevel:              strings.ToLower(v.GetString("log_level")),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, memerr.ConfigurationErr("Load", err)
	}

	return cfg, nil
}

// Validate checks every field and collects all violations into a single
// multi-line error rather than stopping at the first one found.
func (c *Config) Validate() error {
	var violations []string

	if c.DataDir == "" {
		violations = append(violations, "DATA_DIR must not be empty")
	} else if strings.ContainsRune(c.DataDir, 0) {
		violations = append(violations, "DATA_DIR must not contain a null byte")
	}

	if c.DecayRate <= 0 || c.DecayRate >= 1 {
		violations = append(violations, "DECAY_RATE must be in (0, 1)")
	}

	if c.ReflectionThreshold < 0 {
		violations = append(violations, "REFLECTION_THRESHOLD must be >= 0")
	}

	if c.ConsolidationInterval <= 0 {
		violations = append(violations, "CONSOLIDATION_INTERVAL must be > 0")
	}

	if c.MergeSimilarityThresh < 0 || c.MergeSimilarityThresh > 1 {
		violations = append(violations, "MERGE_SIMILARITY_THRESHOLD must be in [0, 1]")
	}

	if c.PruneAgeDays <= 0 {
		violations = append(violations, "PRUNE_AGE_DAYS must be > 0")
	}

	if c.WeightRecency < 0 {
		violations = append(violations, "WEIGHT_RECENCY must be >= 0")
	}
	if c.WeightImportance < 0 {
		violations = append(violations, "WEIGHT_IMPORTANCE must be >= 0")
	}
	if c.WeightRelevance < 0 {
		violations = append(violations, "WEIGHT_RELEVANCE must be >= 0")
	}

	if c.EmbeddingModel == "" {
		violations = append(violations, "EMBEDDING_MODEL must not be empty")
	}
	if c.EmbeddingDimensions <= 0 {
		violations = append(violations, "EMBEDDING_DIMENSIONS must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		violations = append(violations, "LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if len(violations) == 0 {
		return nil
	}
	return errJoin(violations)
}

// ReflectionEnabled reports whether an Anthropic API key is configured,
// gating importance scoring, reflection, and summary refresh.
func (c *Config) ReflectionEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// errJoin renders accumulated violations as a single multi-line error,
// matching the teacher's plain-error style rather than introducing a
// dedicated multi-error type.
func errJoin(lines []string) error {
	return &validationError{lines: lines}
}

type validationError struct {
	lines []string
}

func (e *validationError) Error() string {
	b := strings.Builder{}
	b.WriteString(strconv.Itoa(len(e.lines)))
	b.WriteString(" configuration error(s):\n")
	for _, l := range e.lines {
		b.WriteString("  - ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
