package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "HELPDESK"

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ContentRoot string `envconfig:"CONTENT_ROOT" default:"data/knowledge"`

	OpenAIAPIKey      string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL     string  `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel       string  `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAITemperature float32 `envconfig:"OPENAI_TEMPERATURE" default:"0.2"`

	// hash or openai
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"hash"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`

	// memory, sqlite or postgres; inferred from the path/DSN when empty
	VectorPersistence string `envconfig:"VECTOR_PERSISTENCE"`
	VectorDBPath      string `envconfig:"VECTOR_DB_PATH"`
	DatabaseURL       string `envconfig:"DATABASE_URL"`
	VectorSize        int    `envconfig:"VECTOR_SIZE" default:"256"`

	ChunkSize     int    `envconfig:"CHUNK_SIZE" default:"750"`
	ChunkOverlap  int    `envconfig:"CHUNK_OVERLAP" default:"150"`
	TopK          int    `envconfig:"TOP_K" default:"5"`
	DefaultLocale string `envconfig:"DEFAULT_LOCALE" default:"en-US"`
	HistoryLimit  int    `envconfig:"HISTORY_LIMIT" default:"20"`

	ReindexInterval   time.Duration `envconfig:"REINDEX_INTERVAL" default:"30s"`
	ReindexPerRequest bool          `envconfig:"REINDEX_PER_REQUEST" default:"false"`

	BrandName        string `envconfig:"BRAND_NAME" default:"FMT"`
	BrandDescription string `envconfig:"BRAND_DESCRIPTION" default:"a sustainable smart home brand"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"helpdesk-knowledge"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Prefix    string `envconfig:"S3_PREFIX"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations envconfig cannot express.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%s_CHUNK_SIZE must be positive, got %d", envPrefix, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%s_CHUNK_OVERLAP must not be negative, got %d", envPrefix, c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%s_TOP_K must be positive, got %d", envPrefix, c.TopK)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%s_VECTOR_SIZE must be positive, got %d", envPrefix, c.VectorSize)
	}

	switch strings.ToLower(c.EmbeddingProvider) {
	case "hash", "openai":
	default:
		return fmt.Errorf("%s_EMBEDDING_PROVIDER must be hash or openai, got %q", envPrefix, c.EmbeddingProvider)
	}

	switch strings.ToLower(c.VectorPersistence) {
	case "", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("%s_VECTOR_PERSISTENCE must be memory, sqlite or postgres, got %q", envPrefix, c.VectorPersistence)
	}

	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// UseOpenAIEmbeddings reports whether embeddings should come from the API.
func (c *Config) UseOpenAIEmbeddings() bool {
	return strings.EqualFold(c.EmbeddingProvider, "openai") && c.HasOpenAI()
}
