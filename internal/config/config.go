package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ORDER"

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Catalog   UpstreamConfig  `mapstructure:"catalog"`
	Cart      UpstreamConfig  `mapstructure:"cart"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
}

type LifecycleConfig struct {
	CreatedToProcessing  time.Duration `mapstructure:"created_to_processing"`
	ProcessingToShipping time.Duration `mapstructure:"processing_to_shipping"`
	ShippingMin          time.Duration `mapstructure:"shipping_min"`
	ShippingMax          time.Duration `mapstructure:"shipping_max"`
	Retention            time.Duration `mapstructure:"retention"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
}

type PostgresConfig struct {
	URL              string        `mapstructure:"url"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	Topic         string        `mapstructure:"topic"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RelayInterval time.Duration `mapstructure:"relay_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	Lease         time.Duration `mapstructure:"lease"`
}

type RedisConfig struct {
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 5*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("catalog.base_url", "http://backend:8000")
	v.SetDefault("catalog.timeout", 3*time.Second)
	v.SetDefault("cart.base_url", "http://cart-service:8001")
	v.SetDefault("cart.timeout", 3*time.Second)

	v.SetDefault("notify.base_url", "http://user-service:8003")
	v.SetDefault("notify.timeout", 3*time.Second)
	v.SetDefault("notify.max_attempts", 5)
	v.SetDefault("notify.initial_backoff", 200*time.Millisecond)
	v.SetDefault("notify.max_backoff", 5*time.Second)
	v.SetDefault("notify.rate_per_second", 50.0)
	v.SetDefault("notify.burst", 10)

	v.SetDefault("lifecycle.created_to_processing", 5*time.Second)
	v.SetDefault("lifecycle.processing_to_shipping", 5*time.Second)
	v.SetDefault("lifecycle.shipping_min", 60*time.Second)
	v.SetDefault("lifecycle.shipping_max", 300*time.Second)
	v.SetDefault("lifecycle.retention", 300*time.Second)
	v.SetDefault("lifecycle.sweep_interval", 30*time.Second)

	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.snapshot_interval", 30*time.Second)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "order.events")
	v.SetDefault("kafka.max_retries", 10)
	v.SetDefault("kafka.relay_interval", 500*time.Millisecond)
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.lease", 5*time.Second)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "order-service")
}

// Load reads defaults, then path if it is not empty, then ORDER_* environment
// variables. ORDER_NOTIFY_MAX_ATTEMPTS overrides notify.max_attempts.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	l := c.Lifecycle
	if l.CreatedToProcessing < 0 || l.ProcessingToShipping < 0 || l.ShippingMin < 0 {
		errs = append(errs, errors.New("lifecycle delays must not be negative"))
	}
	if l.ShippingMax < l.ShippingMin {
		errs = append(errs, fmt.Errorf("lifecycle.shipping_max %s is below shipping_min %s", l.ShippingMax, l.ShippingMin))
	}
	if l.Retention <= 0 {
		errs = append(errs, errors.New("lifecycle.retention must be positive"))
	}
	if c.Notify.MaxAttempts < 1 {
		errs = append(errs, errors.New("notify.max_attempts must be at least 1"))
	}
	if c.Kafka.RelayInterval <= 0 || c.Kafka.BatchSize < 1 || c.Kafka.Lease <= 0 {
		errs = append(errs, errors.New("kafka relay_interval, batch_size and lease must be positive"))
	}
	if c.Notify.InitialBackoff < 0 || c.Notify.MaxBackoff < c.Notify.InitialBackoff {
		errs = append(errs, errors.New("notify backoff must satisfy 0 <= initial_backoff <= max_backoff"))
	}
	return errors.Join(errs...)
}
