package kronos

import (
	"fmt"
	"strings"

	"github.com/Deepreo/kronos/errors"
	"github.com/Deepreo/kronos/modules/auth"
	"github.com/Deepreo/kronos/modules/event"
	"github.com/Deepreo/kronos/modules/metrics"
	"github.com/Deepreo/kronos/modules/scheduler"
	"github.com/Deepreo/kronos/modules/servers"
	"github.com/Deepreo/kronos/modules/store"
	"github.com/spf13/viper"
)

const EnvPrefix = "KRONOS"

const (
	StoreNone     = "none"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Scheduler scheduler.Config `mapstructure:"scheduler"`
	Events    EventsConfig     `mapstructure:"events"`
	Metrics   metrics.Config   `mapstructure:"metrics"`
	Tracing   TracingConfig    `mapstructure:"tracing"`
	Store     StoreConfig      `mapstructure:"store"`
	Admin     AdminConfig      `mapstructure:"admin"`
}

type EventsConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	event.Config `mapstructure:",squash"`
}

type TracingConfig struct {
	OpenTelemetry bool `mapstructure:"opentelemetry"`
	ElasticAPM    bool `mapstructure:"elastic_apm"`
}

type StoreConfig struct {
	Driver   string               `mapstructure:"driver"`
	Redis    store.RedisConfig    `mapstructure:"redis"`
	Postgres store.PostgresConfig `mapstructure:"postgres"`
}

type AdminConfig struct {
	Enabled bool                     `mapstructure:"enabled"`
	HTTP    servers.HttpServerConfig `mapstructure:"http"`
	Auth    auth.Config              `mapstructure:"auth"`
}

func DefaultConfig() *Config {
	return &Config{
		Scheduler: scheduler.DefaultConfig(),
		Events: EventsConfig{
			Enabled: true,
			Config:  event.DefaultConfig(),
		},
		Metrics: metrics.Config{
			Namespace: metrics.DefaultNamespace,
			Path:      metrics.DefaultPath,
		},
		Store: StoreConfig{Driver: StoreNone},
		Admin: AdminConfig{
			HTTP: servers.HttpServerConfig{
				Host: servers.DefaultHost,
				Port: servers.DefaultPort,
			},
			Auth: auth.DefaultConfig(),
		},
	}
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "", StoreNone, StoreMemory, StoreRedis, StorePostgres:
	default:
		return errors.ValidationError(fmt.Errorf("unknown store driver: %s", c.Store.Driver)).WithCode("INVALID_CONFIG")
	}
	if c.Scheduler.Workers < 0 {
		return errors.ValidationError(fmt.Errorf("scheduler.workers must not be negative, got %d", c.Scheduler.Workers)).WithCode("INVALID_CONFIG")
	}
	if c.Admin.Enabled {
		if err := c.Admin.Auth.Validate(); err != nil {
			return fmt.Errorf("admin.auth: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("scheduler.workers", d.Scheduler.Workers)
	v.SetDefault("scheduler.misfire_threshold", d.Scheduler.MisfireThreshold)
	v.SetDefault("scheduler.shutdown_timeout", d.Scheduler.ShutdownTimeout)
	v.SetDefault("scheduler.timezone", d.Scheduler.Timezone)
	v.SetDefault("scheduler.default_group", d.Scheduler.DefaultGroup)
	v.SetDefault("scheduler.misfire_policy", d.Scheduler.MisfirePolicy)

	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.max_retries", d.Events.MaxRetries)
	v.SetDefault("events.initial_interval", d.Events.InitialInterval)
	v.SetDefault("events.max_interval", d.Events.MaxInterval)
	v.SetDefault("events.poison_topic", d.Events.PoisonTopic)
	v.SetDefault("events.tracing", d.Events.Tracing)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("tracing.opentelemetry", false)
	v.SetDefault("tracing.elastic_apm", false)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.redis.host", "localhost")
	v.SetDefault("store.redis.port", "6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key", store.DefaultRedisKey)
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", "5432")
	v.SetDefault("store.postgres.user", "")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.dbname", "kronos")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.postgres.max_conns", 0)

	v.SetDefault("admin.enabled", d.Admin.Enabled)
	v.SetDefault("admin.http.host", d.Admin.HTTP.Host)
	v.SetDefault("admin.http.port", d.Admin.HTTP.Port)
	v.SetDefault("admin.http.allowed_origins", servers.DefaultAllowedOrigins)
	v.SetDefault("admin.http.features.health_check.enabled", false)
	v.SetDefault("admin.http.features.request_id.enabled", false)
	v.SetDefault("admin.http.features.elastic_apm.enabled", false)
	v.SetDefault("admin.auth.enabled", d.Admin.Auth.Enabled)
	v.SetDefault("admin.auth.secret_key", "")
	v.SetDefault("admin.auth.token_expiration", d.Admin.Auth.TokenExpiration)
	v.SetDefault("admin.auth.issuer", d.Admin.Auth.Issuer)
}

// LoadConfig applies defaults and KRONOS_* environment overrides to v and
// decodes the result. Nested keys map to variables with dots replaced by
// underscores, e.g. KRONOS_SCHEDULER_WORKERS.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ValidationError(fmt.Errorf("decode config: %w", err)).WithCode("INVALID_CONFIG")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFromMap builds a Config from flat properties such as
// {"scheduler.workers": 4}. Unset keys keep their defaults.
func ConfigFromMap(properties map[string]any) (*Config, error) {
	v := viper.New()
	for key, value := range properties {
		v.Set(key, value)
	}
	return LoadConfig(v)
}
