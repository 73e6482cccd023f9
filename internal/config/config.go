package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional: an empty Addr disables the cache client and
// forces direct webhook delivery.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	Region        string
	PublicBaseURL string
}

type WebhookConfig struct {
	URL           string
	Token         string
	SigningSecret string
	TokenTTL      time.Duration
	Timeout       time.Duration
	Delivery      string
	Stream        string
	StreamMaxLen  int64
}

type IntakeConfig struct {
	MaxUploadBytes int64
	IncludeBlobs   bool
}

type JobsConfig struct {
	Enabled        bool
	StaleSweepSpec string
	StaleAfter     time.Duration
	StaleLimit     int
}

type WorkerConfig struct {
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	MaxDeliveries int64
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Webhook          WebhookConfig
	Intake           IntakeConfig
	Jobs             JobsConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

const (
	DeliveryDirect = "direct"
	DeliveryStream = "stream"
)

var ErrMissingDSN = errors.New("postgres.dsn is required")

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("CARDAMAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the API process cannot start without.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		return ErrMissingDSN
	}
	switch c.Webhook.Delivery {
	case DeliveryDirect:
	case DeliveryStream:
		if c.Redis.Addr == "" {
			return errors.New("webhook.delivery=stream requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown webhook.delivery %q", c.Webhook.Delivery)
	}
	if c.Intake.MaxUploadBytes <= 0 {
		return errors.New("intake.maxuploadbytes must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")

	// Registered so AutomaticEnv can override them during Unmarshal.
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "assessment-images")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.publicbaseurl", "")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.token", "")
	v.SetDefault("webhook.signingsecret", "")
	v.SetDefault("webhook.tokenttl", "5m")
	v.SetDefault("webhook.timeout", "15s")
	v.SetDefault("webhook.delivery", DeliveryDirect)
	v.SetDefault("webhook.stream", "assessments:notify")
	v.SetDefault("webhook.streammaxlen", 10000)

	v.SetDefault("intake.maxuploadbytes", 20<<20)
	v.SetDefault("intake.includeblobs", true)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.stalesweepspec", "0 */15 * * * *")
	v.SetDefault("jobs.staleafter", "1h")
	v.SetDefault("jobs.stalelimit", 100)

	v.SetDefault("worker.group", "webhook-delivery")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")
	v.SetDefault("worker.maxdeliveries", 5)

	v.SetDefault("allowcorsorigins", []string{})
}
