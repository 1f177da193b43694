package config

// EnvPrefix is the envconfig prefix shared by every setting.
const EnvPrefix = "TASKHIVE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names, exported so tests can set and unset them by name.
const (
	EnvAppEnv         = "TASKHIVE_APP_ENV"
	EnvAppPort        = "TASKHIVE_APP_PORT"
	EnvLogLevel       = "TASKHIVE_LOG_LEVEL"
	EnvGCPProjectID   = "TASKHIVE_GCP_PROJECT_ID"
	EnvPubSubInvites  = "TASKHIVE_PUBSUB_INVITE_SUBSCRIPTION"
	EnvPubSubProjects = "TASKHIVE_PUBSUB_PROJECT_SUBSCRIPTION"
	EnvPubSubChat     = "TASKHIVE_PUBSUB_CHAT_SUBSCRIPTION"
	EnvRedisURL       = "TASKHIVE_REDIS_URL"
	EnvIdempotencyTTL = "TASKHIVE_EVENTING_IDEMPOTENCY_TTL"
)
