package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"corpora"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"corpora"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT" default:"minio:9000"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"corpora-documents"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	UploadTTLHours int    `envconfig:"UPLOAD_TTL_HOURS" default:"1"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// Ingestion pipeline
	IngestionConcurrency int `envconfig:"INGESTION_CONCURRENCY" default:"4"`
	ChunkMaxTokens       int `envconfig:"CHUNK_MAX_TOKENS" default:"512"`
	ChunkOverlap         int `envconfig:"CHUNK_OVERLAP" default:"1"`
	RetryBaseSeconds     int `envconfig:"RETRY_BASE_SECONDS" default:"60"`
	MaxAttempts          int `envconfig:"MAX_ATTEMPTS" default:"3"`
	SoftTimeLimitSeconds int `envconfig:"SOFT_TIME_LIMIT_SECONDS" default:"3000"`
	HardTimeLimitSeconds int `envconfig:"HARD_TIME_LIMIT_SECONDS" default:"3600"`

	// Retrieval
	DefaultTopK       int     `envconfig:"DEFAULT_TOP_K" default:"5"`
	AnswerTemperature float32 `envconfig:"ANSWER_TEMPERATURE" default:"0.2"`
	AnswerMaxTokens   int     `envconfig:"ANSWER_MAX_TOKENS" default:"1024"`

	// Chat sessions
	SessionCapacity   int `envconfig:"SESSION_CAPACITY" default:"1000"`
	SessionTTLMinutes int `envconfig:"SESSION_TTL_MINUTES" default:"120"`

	// Server
	ServerPort    int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath  string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell, so a missing .env is not an error.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.MinioEndpoint == "" {
		return fmt.Errorf("%w: MINIO_ENDPOINT", ErrMissingRequired)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be >= 1")
	}
	return nil
}
