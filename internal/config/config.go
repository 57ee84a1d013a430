package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
)

// Error is the error class of configuration loading.
var Error = errs.Class("config")

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Log      LogConfig      `mapstructure:"log"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// DatabaseConfig selects the persistence backend: "mongo" or "memory".
type DatabaseConfig struct {
	Backend string `mapstructure:"backend"`
	URI     string `mapstructure:"uri"`
	Name    string `mapstructure:"name"`
}

// S3Config configures the assetstore. Backend is "s3" or "memory".
type S3Config struct {
	Backend         string `mapstructure:"backend"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// KafkaConfig configures the upload event consumer and the task topic.
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	UploadTopic string   `mapstructure:"upload_topic"`
	TaskTopic   string   `mapstructure:"task_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

// Ingestion run modes.
const (
	ModeInline = "inline"
	ModePool   = "pool"
	ModeKafka  = "kafka"
)

// IngestConfig tunes the sidecar ingestion pipeline.
type IngestConfig struct {
	// Mode is one of "inline", "pool" or "kafka".
	Mode      string `mapstructure:"mode"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
	// MaxAnnotationFileSize is the largest sidecar, in bytes, that will be
	// buffered and decoded.
	MaxAnnotationFileSize int64         `mapstructure:"max_annotation_file_size"`
	CacheCapacity         int           `mapstructure:"cache_capacity"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
	// ScanLimit bounds how many elements of each annotation are checked for
	// placeholder references.
	ScanLimit int `mapstructure:"scan_limit"`
}

// AdminConfig names the administrator account created at startup when no
// account with that login exists. An empty Login disables the bootstrap.
type AdminConfig struct {
	Login    string `mapstructure:"login"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// setDefaults registers every default on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("database.backend", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "girder")
	v.SetDefault("s3.backend", "s3")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "assetstore")
	v.SetDefault("s3.use_ssl", true)
	// Registered so JWT_SECRET is picked up by Unmarshal.
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.upload_topic", "upload-completed")
	v.SetDefault("kafka.task_topic", "hui-ingest-tasks")
	v.SetDefault("kafka.group_id", "hui-ingest")
	v.SetDefault("ingest.mode", ModePool)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.queue_size", 256)
	v.SetDefault("ingest.max_annotation_file_size", int64(1)<<30)
	v.SetDefault("ingest.cache_capacity", 100)
	v.SetDefault("ingest.cache_ttl", "24h")
	v.SetDefault("ingest.scan_limit", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("admin.login", "")
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
}

// LoadConfig reads configuration from path/config.yaml and environment
// variables. A .env file in path, when present, is loaded into the
// environment first.
func LoadConfig(path string) (config Config, err error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, Error.Wrap(err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, Error.Wrap(err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, Error.Wrap(err)
	}
	return config, config.Validate()
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	switch c.Database.Backend {
	case "mongo", "memory":
	default:
		return Error.New("unknown database backend %q", c.Database.Backend)
	}
	switch c.S3.Backend {
	case "s3", "memory":
	default:
		return Error.New("unknown storage backend %q", c.S3.Backend)
	}
	switch c.Ingest.Mode {
	case ModeInline, ModePool:
	case ModeKafka:
		if !c.Kafka.Enabled {
			return Error.New("ingest mode %q requires kafka.enabled", c.Ingest.Mode)
		}
	default:
		return Error.New("unknown ingest mode %q", c.Ingest.Mode)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return Error.New("kafka.brokers must not be empty")
	}
	if c.Ingest.MaxAnnotationFileSize <= 0 {
		return Error.New("ingest.max_annotation_file_size must be positive")
	}
	if c.Ingest.CacheCapacity <= 0 || c.Ingest.CacheTTL <= 0 {
		return Error.New("ingest cache capacity and ttl must be positive")
	}
	if c.Ingest.Mode == ModePool && (c.Ingest.Workers <= 0 || c.Ingest.QueueSize <= 0) {
		return Error.New("ingest.workers and ingest.queue_size must be positive")
	}
	if c.Admin.Login != "" && (c.Admin.Email == "" || c.Admin.Password == "") {
		return Error.New("admin.email and admin.password are required with admin.login")
	}
	if c.JWT.Secret == "" {
		return Error.New("jwt.secret is required")
	}
	return nil
}
