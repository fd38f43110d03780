package config

import (
	"fmt"
	"os"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv     string `env:"APP_ENV" envDefault:"production"`

	Database DatabaseConfig `envPrefix:"DB_"`
	Users    UsersConfig    `envPrefix:"USERS_"`
	Events   EventsConfig   `envPrefix:"EVENTS_"`
	RabbitMQ RabbitMQConfig `envPrefix:"RABBITMQ_"`
	PubSub   PubSubConfig   `envPrefix:"PUBSUB_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	Minio    MinioConfig    `envPrefix:"MINIO_"`
	GCS      GCSConfig      `envPrefix:"GCS_"`
	Export   ExportConfig   `envPrefix:"EXPORT_"`
}

type DatabaseConfig struct {
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"5432"`
	User         string `env:"USER" envDefault:"userhub"`
	Password     string `env:"PASSWORD" envDefault:"password"`
	DBName       string `env:"NAME" envDefault:"userhub_db"`
	UseSSL       bool   `env:"USE_SSL" envDefault:"false"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int    `env:"MAX_IDLE_CONNS" envDefault:"5"`
}

// UsersConfig holds user lifecycle policy.
type UsersConfig struct {
	// DefaultActive is applied when a create or full update omits "active".
	DefaultActive bool `env:"DEFAULT_ACTIVE" envDefault:"true"`
}

// Supported event backends.
const (
	EventsBackendNone     = "none"
	EventsBackendRabbitMQ = "rabbitmq"
	EventsBackendPubSub   = "pubsub"
)

type EventsConfig struct {
	Backend string `env:"BACKEND" envDefault:"none"`
	Channel string `env:"CHANNEL" envDefault:"user-events"`
}

type RabbitMQConfig struct {
	URL             string `env:"URL"`
	QueueDurable    bool   `env:"QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"PREFETCH_COUNT" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PROJECT_ID"`
	CredentialsFile    string `env:"CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

// Supported object storage backends.
const (
	StorageBackendMinio = "minio"
	StorageBackendGCS   = "gcs"
)

type StorageConfig struct {
	Backend string `env:"BACKEND" envDefault:"minio"`
}

type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"userhub-exports"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	ProjectID       string `env:"PROJECT_ID"`
	Bucket          string `env:"BUCKET"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`
}

type ExportConfig struct {
	Prefix string `env:"PREFIX" envDefault:"exports"`
}

func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config.LoadConfig: %w", err)
	}
	return cfg, nil
}
