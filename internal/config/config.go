package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/Shopify/sarama"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment   DeploymentConfig   `mapstructure:"deployment" validate:"required"`
	Logging      LoggingConfig      `mapstructure:"logging" validate:"required"`
	Postgres     PostgresConfig     `mapstructure:"postgres" validate:"required"`
	ClickHouse   ClickHouseConfig   `mapstructure:"clickhouse"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Invoice      InvoiceConfig      `mapstructure:"invoice" validate:"required"`
	BillRun      BillRunConfig      `mapstructure:"billrun"`
	Notification NotificationConfig `mapstructure:"notification"`
	Ingest       IngestConfig       `mapstructure:"ingest"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type KafkaConfig struct {
	Brokers       []string             `mapstructure:"brokers"`
	ConsumerGroup string               `mapstructure:"consumer_group"`
	ClientID      string               `mapstructure:"client_id"`
	TLS           bool                 `mapstructure:"tls"`
	UseSASL       bool                 `mapstructure:"use_sasl"`
	SASLMechanism sarama.SASLMechanism `mapstructure:"sasl_mechanism"`
	SASLUser      string               `mapstructure:"sasl_user"`
	SASLPassword  string               `mapstructure:"sasl_password"`
}

type ClickHouseConfig struct {
	Address  string `mapstructure:"address"`
	TLS      bool   `mapstructure:"tls"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// InvoiceConfig holds the knobs of the generation engine.
type InvoiceConfig struct {
	// MaxTargetDateMonths rejects target dates further than this many months
	// after today.
	MaxTargetDateMonths int `mapstructure:"max_target_date_months" validate:"gte=0"`
	// ProrationFixedDays switches proration to a fixed month length when > 0.
	ProrationFixedDays int `mapstructure:"proration_fixed_days" validate:"gte=0,lte=31"`
	// MaxDailyItemsPerSubscription bounds the number of items one subscription
	// may carry on a single invoice date. Non-positive disables the check.
	MaxDailyItemsPerSubscription int `mapstructure:"max_daily_items_per_subscription"`
	// ExistingInvoicesCutoffMonths bounds how far back existing invoices are
	// loaded. Zero loads every invoice.
	ExistingInvoicesCutoffMonths int  `mapstructure:"existing_invoices_cutoff_months" validate:"gte=0"`
	InArrearGreedy               bool `mapstructure:"in_arrear_greedy"`
}

type BillRunConfig struct {
	MaxConcurrency int    `mapstructure:"max_concurrency" validate:"gte=0"`
	Topic          string `mapstructure:"topic"`
	// MaxRetries caps the retries of transient persistence failures.
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	// LagInterval is how often the invoice_run consumer lag is sampled
	LagInterval time.Duration `mapstructure:"lag_interval"`
}

// IngestConfig names the topics upstream systems feed billing events and
// raw usage through.
type IngestConfig struct {
	EventsTopic string `mapstructure:"events_topic"`
	UsageTopic  string `mapstructure:"usage_topic"`
}

type NotificationConfig struct {
	Provider types.PubSubProvider `mapstructure:"provider"`
	Topic    string               `mapstructure:"topic"`
}

func NewConfig() (*Configuration, error) {
	// .env is optional and only used for local development
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/invoicer")

	v.SetEnvPrefix("INVOICER")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("invoice.max_target_date_months", 36)
	v.SetDefault("invoice.proration_fixed_days", 0)
	v.SetDefault("invoice.max_daily_items_per_subscription", 15)
	v.SetDefault("invoice.existing_invoices_cutoff_months", 0)
	v.SetDefault("invoice.in_arrear_greedy", false)
	v.SetDefault("billrun.max_concurrency", 8)
	v.SetDefault("billrun.topic", "invoice_run")
	v.SetDefault("billrun.max_retries", 3)
	v.SetDefault("billrun.initial_interval", 200*time.Millisecond)
	v.SetDefault("billrun.max_interval", 5*time.Second)
	v.SetDefault("kafka.consumer_group", "invoicer")
	v.SetDefault("kafka.client_id", "invoicer")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("metrics.lag_interval", time.Minute)
	v.SetDefault("notification.provider", types.PubSubProviderMemory)
	v.SetDefault("notification.topic", "invoice_notifications")
	v.SetDefault("ingest.events_topic", "billing_events")
	v.SetDefault("ingest.usage_topic", "raw_usage")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development and tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Cache:      CacheConfig{Enabled: true, TTL: 5 * time.Minute},
		Invoice: InvoiceConfig{
			MaxTargetDateMonths:          36,
			MaxDailyItemsPerSubscription: 15,
		},
		BillRun: BillRunConfig{
			MaxConcurrency:  4,
			Topic:           "invoice_run",
			MaxRetries:      3,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
		},
		Notification: NotificationConfig{
			Provider: types.PubSubProviderMemory,
			Topic:    "invoice_notifications",
		},
		Ingest: IngestConfig{
			EventsTopic: "billing_events",
			UsageTopic:  "raw_usage",
		},
	}
}

func (c ClickHouseConfig) GetClientOptions() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr: []string{c.Address},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	if c.TLS {
		options.TLS = &tls.Config{}
	}
	return options
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
