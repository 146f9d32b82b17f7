package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	TransportDriverAWS    = "aws"
	TransportDriverRedis  = "redis"
	TransportDriverMemory = "memory"
)

type Config struct {
	ServiceName string           `mapstructure:"service_name" validate:"required"`
	Env         string           `mapstructure:"env"`
	Port        string           `mapstructure:"port" validate:"required"`
	LogLevel    string           `mapstructure:"log_level"`
	Database    Database         `mapstructure:"database"`
	Store       Store            `mapstructure:"store"`
	Transport   Transport        `mapstructure:"transport"`
	AWS         AWS              `mapstructure:"aws"`
	Redis       Redis            `mapstructure:"redis"`
	Telemetry   Telemetry        `mapstructure:"telemetry"`
	Listener    Listener         `mapstructure:"listener"`
	Reconciler  Reconciler       `mapstructure:"reconciler"`
	Retry       Retry            `mapstructure:"retry"`
	Sagas       []SagaDefinition `mapstructure:"sagas" validate:"dive"`
}

type Database struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	// Migrate applies the saga schema on startup
	Migrate bool `mapstructure:"migrate"`
}

type Store struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres memory"`
}

type Transport struct {
	Driver string `mapstructure:"driver" validate:"oneof=aws redis memory"`
}

type AWS struct {
	Region      string `mapstructure:"region"`
	EndpointSNS string `mapstructure:"endpoint_sns"`
	EndpointSQS string `mapstructure:"endpoint_sqs"`
	SNSTopicArn string `mapstructure:"sns_topic_arn"`
	SQSQueueURL string `mapstructure:"sqs_queue_url"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
	// MaxLen caps each stream (approximate trimming); zero keeps everything
	MaxLen int64 `mapstructure:"max_len"`
}

type Telemetry struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type Listener struct {
	Workers int `mapstructure:"workers" validate:"gte=1"`
}

type Reconciler struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval" validate:"gt=0"`
	BatchSize     int           `mapstructure:"batch_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
}

type Retry struct {
	MaxRetries     uint64        `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// SagaDefinition adds a saga type on top of the built-in ones. It is a list
// entry rather than a map key because viper lowercases keys.
type SagaDefinition struct {
	Type  string                  `mapstructure:"type" validate:"required"`
	Steps []domain.StepDefinition `mapstructure:"steps" validate:"required,min=1"`
}

func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, fmt.Errorf("unable to get current file")
	}

	return ReadConfigFrom(filepath.Dir(filename), getConfigName())
}

// ReadConfigFrom reads <dir>/<name>.json with ORCHESTRATOR_ environment overrides
func ReadConfigFrom(dir, name string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("json")
	v.AddConfigPath(dir)

	// Allow environment variables to override config, e.g. ORCHESTRATOR_TRANSPORT_DRIVER
	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func getConfigName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service_name", "orchestrator-service")
	v.SetDefault("env", getEnv("ENV", "local"))
	v.SetDefault("port", getEnv("PORT", "8080"))
	v.SetDefault("log_level", "info")

	// Database defaults
	v.SetDefault("database.url", os.Getenv("DATABASE_URL"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "sagas")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migrate", true)

	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("transport.driver", TransportDriverAWS)

	// AWS defaults
	v.SetDefault("aws.region", getEnv("AWS_DEFAULT_REGION", "us-east-1"))
	v.SetDefault("aws.endpoint_sns", getEnv("AWS_ENDPOINT_URL_SNS", ""))
	v.SetDefault("aws.endpoint_sqs", getEnv("AWS_ENDPOINT_URL_SQS", ""))
	v.SetDefault("aws.sns_topic_arn", getEnv("SNS_TOPIC_ARN", ""))
	v.SetDefault("aws.sqs_queue_url", getEnv("SQS_QUEUE_URL", ""))

	// Redis defaults
	v.SetDefault("redis.addr", getEnv("REDIS_ADDR", "localhost:6379"))
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.group", "orchestrator-service")
	v.SetDefault("redis.consumer", getEnv("HOSTNAME", "orchestrator-1"))
	v.SetDefault("redis.max_len", 100000)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"))

	v.SetDefault("listener.workers", 16)

	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.interval", "30s")
	v.SetDefault("reconciler.batch_size", 500)
	v.SetDefault("reconciler.concurrency", 8)
	v.SetDefault("reconciler.rate_per_second", 50)
	v.SetDefault("reconciler.grace_period", "10s")

	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.initial_backoff", "100ms")
	v.SetDefault("retry.max_backoff", "2s")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetDatabaseURL constructs database URL from config
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// Definitions builds the saga definition table from the built-in types and the configured ones
func (c *Config) Definitions() (domain.DefinitionTable, error) {
	extra := make(map[string][]domain.StepDefinition, len(c.Sagas))
	for _, saga := range c.Sagas {
		extra[saga.Type] = saga.Steps
	}
	return domain.NewDefinitionTable(extra)
}
