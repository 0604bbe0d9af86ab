package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
	StorageS3    = "s3"
)

type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
	MinIO    MinIOConfig
	S3       S3Config
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"5000"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"0s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"0s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	PublicBaseURL   string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:5000"`
	AllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

// SlogLevel maps LOG_LEVEL onto a slog level, falling back to info.
func (c ServerConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

type PipelineConfig struct {
	ScratchDir        string        `envconfig:"SCRATCH_DIR" default:"/tmp/hlspublish/uploads"`
	HLSDir            string        `envconfig:"HLS_DIR" default:"hls"`
	MaxUploadBytes    int64         `envconfig:"UPLOAD_MAX_BYTES" default:"2147483648"`
	TranscodeTimeout  time.Duration `envconfig:"TRANSCODE_TIMEOUT" default:"30m"`
	UploadConcurrency int           `envconfig:"UPLOAD_CONCURRENCY" default:"4"`
	FFmpegPath        string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
}

type StorageConfig struct {
	Driver        string `envconfig:"STORAGE_DRIVER" default:"local"`
	Prefix        string `envconfig:"STORAGE_PREFIX" default:"hls"`
	PublicBaseURL string `envconfig:"STORAGE_PUBLIC_BASE_URL"`
}

type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"videos"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type S3Config struct {
	Bucket       string `envconfig:"S3_BUCKET"`
	Region       string `envconfig:"AWS_REGION" default:"us-east-1"`
	Endpoint     string `envconfig:"S3_ENDPOINT"`
	UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"false"`
}

type DatabaseConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"hlspublish"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"hlspublish"`
	DBName   string `envconfig:"POSTGRES_DB" default:"hlspublish"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Addr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"REDIS_CACHE_TTL" default:"5m"`
}

type RabbitMQConfig struct {
	Enabled  bool   `envconfig:"RABBITMQ_ENABLED" default:"false"`
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"hlspublish"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"hlspublish"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
	Exchange string `envconfig:"RABBITMQ_EXCHANGE" default:"hlspublish.jobs"`
	Queue    string `envconfig:"RABBITMQ_QUEUE" default:"job_events"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

var (
	ErrUnknownStorageDriver = errors.New("unknown storage driver")
	ErrMissingBucket        = errors.New("bucket is required")
)

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case StorageLocal, StorageMinIO:
	case StorageS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%w: S3_BUCKET", ErrMissingBucket)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorageDriver, c.Storage.Driver)
	}
	if c.Pipeline.MaxUploadBytes < 0 {
		return errors.New("UPLOAD_MAX_BYTES must not be negative")
	}
	if c.Pipeline.UploadConcurrency < 1 {
		return errors.New("UPLOAD_CONCURRENCY must be at least 1")
	}
	return nil
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// A missing file is fine; the environment may already be complete.
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
