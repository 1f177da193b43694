package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Redis     RedisConfig
	Eventing  EventingConfig
	Messaging MessagingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TASKHIVE_APP_ENV" required:"true"`
	Port         string `envconfig:"TASKHIVE_APP_PORT" default:"8090"`
	LogLevel     string `envconfig:"TASKHIVE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TASKHIVE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TASKHIVE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TASKHIVE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TASKHIVE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	InviteSubscription  string `envconfig:"TASKHIVE_PUBSUB_INVITE_SUBSCRIPTION" required:"true"`
	ProjectSubscription string `envconfig:"TASKHIVE_PUBSUB_PROJECT_SUBSCRIPTION" required:"true"`
	ChatSubscription    string `envconfig:"TASKHIVE_PUBSUB_CHAT_SUBSCRIPTION" required:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TASKHIVE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TASKHIVE_REDIS_ADDR"`
	Password     string        `envconfig:"TASKHIVE_REDIS_PASSWORD"`
	DB           int           `envconfig:"TASKHIVE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TASKHIVE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TASKHIVE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TASKHIVE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TASKHIVE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TASKHIVE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"TASKHIVE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type MessagingConfig struct {
	DryRun bool `envconfig:"TASKHIVE_MESSAGING_DRY_RUN" default:"false"`
}
