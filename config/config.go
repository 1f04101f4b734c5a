// Package config loads EdenKit runtime configuration from edenkit.yaml and
// EDENKIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/AltairaLabs/EdenKit/certificate"
	"github.com/AltairaLabs/EdenKit/logger"
	"github.com/AltairaLabs/EdenKit/settlement"
	"github.com/AltairaLabs/EdenKit/telemetry"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// EnvPrefix prefixes every environment override, e.g. EDENKIT_STORE_DRIVER.
const EnvPrefix = "EDENKIT"

// FileName is the config file searched for when no explicit path is given.
const FileName = "edenkit"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full runtime configuration.
type Config struct {
	Logging    LoggingConfig        `mapstructure:"logging"`
	Store      StoreConfig          `mapstructure:"store"`
	Ledger     LedgerConfig         `mapstructure:"ledger"`
	Settlement SettlementConfig     `mapstructure:"settlement"`
	Authority  AuthorityConfig      `mapstructure:"authority"`
	Fees       settlement.FeePolicy `mapstructure:"fees"`
	Metrics    MetricsConfig        `mapstructure:"metrics"`
	Telemetry  TelemetryConfig      `mapstructure:"telemetry"`

	// Source is the config file that was read, empty when only defaults and
	// environment were used.
	Source string `mapstructure:"-"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level        string            `mapstructure:"level"`
	Format       string            `mapstructure:"format"`
	CommonFields map[string]string `mapstructure:"common_fields"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds connection settings for the redis driver.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LedgerConfig tunes the ledger store.
type LedgerConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// SettlementConfig tunes the inbound settlement queue and ledger forwarding.
type SettlementConfig struct {
	QueueSize      int     `mapstructure:"queue_size"`
	ForwardWorkers int64   `mapstructure:"forward_workers"`
	ForwardRate    float64 `mapstructure:"forward_rate"`
	ForwardRetries int     `mapstructure:"forward_retries"`

	// SweepInterval is how often the settlement worker drains the queue
	// when no enqueue has woken it.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	CashierID   string `mapstructure:"cashier_id"`
	CashierName string `mapstructure:"cashier_name"`

	// Gardens maps provider ids to the garden that indexes them.
	Gardens map[string]string `mapstructure:"gardens"`
}

// AuthorityConfig configures the certificate authority and the orchestrator
// certificate issued at startup.
type AuthorityConfig struct {
	Issuer       string        `mapstructure:"issuer"`
	Subject      string        `mapstructure:"subject"`
	TTL          time.Duration `mapstructure:"ttl"`
	Capabilities []string      `mapstructure:"capabilities"`
}

// MetricsConfig configures the Prometheus exporter. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig configures OTLP tracing. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint   string            `mapstructure:"otlp_endpoint"`
	Headers        map[string]string `mapstructure:"headers"`
	ServiceName    string            `mapstructure:"service_name"`
	ServiceVersion string            `mapstructure:"service_version"`
	Environment    string            `mapstructure:"environment"`
	SampleRatio    float64           `mapstructure:"sample_ratio"`
}

func setDefaults(v *viper.Viper) {
	fees := settlement.DefaultFeePolicy()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logger.FormatText)
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "edenkit")
	v.SetDefault("ledger.debounce", 250*time.Millisecond)
	v.SetDefault("settlement.queue_size", settlement.DefaultQueueSize)
	v.SetDefault("settlement.forward_workers", 4)
	v.SetDefault("settlement.forward_rate", 0)
	v.SetDefault("settlement.forward_retries", 3)
	v.SetDefault("settlement.sweep_interval", settlement.DefaultSweepInterval)
	v.SetDefault("settlement.cashier_id", "cashier-1")
	v.SetDefault("settlement.cashier_name", "Box office")
	v.SetDefault("authority.issuer", fees.AuthorityID)
	v.SetDefault("authority.subject", "orchestrator")
	v.SetDefault("authority.ttl", 24*time.Hour)
	v.SetDefault("authority.capabilities", []string{certificate.CapabilityExecute, certificate.CapabilitySettle})
	v.SetDefault("fees.authority_id", fees.AuthorityID)
	v.SetDefault("fees.authority_bps", fees.AuthorityBps)
	v.SetDefault("fees.garden_bps", fees.GardenBps)
	v.SetDefault("fees.tax_bps", fees.TaxBps)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", telemetry.DefaultServiceName)
	v.SetDefault("telemetry.service_version", "")
	v.SetDefault("telemetry.environment", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration. With an empty path, edenkit.yaml is searched for
// in the working directory and ./config, and a missing file is not an error.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot use.
func (c *Config) Validate() error {
	var problems []string

	switch c.Logging.Format {
	case "", logger.FormatText, logger.FormatJSON:
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if strings.TrimSpace(c.Store.Redis.Addr) == "" {
			problems = append(problems, "store.redis.addr is required for the redis driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of memory, redis", c.Store.Driver))
	}

	if c.Ledger.Debounce < 0 {
		problems = append(problems, "ledger.debounce must not be negative")
	}
	if c.Settlement.QueueSize < 0 {
		problems = append(problems, "settlement.queue_size must not be negative")
	}
	if c.Settlement.ForwardWorkers < 0 {
		problems = append(problems, "settlement.forward_workers must not be negative")
	}
	if c.Settlement.ForwardRate < 0 {
		problems = append(problems, "settlement.forward_rate must not be negative")
	}
	if c.Settlement.ForwardRetries < 0 {
		problems = append(problems, "settlement.forward_retries must not be negative")
	}
	if c.Settlement.SweepInterval <= 0 {
		problems = append(problems, "settlement.sweep_interval must be positive")
	}

	if strings.TrimSpace(c.Settlement.CashierID) == "" {
		problems = append(problems, "settlement.cashier_id is required")
	}

	if strings.TrimSpace(c.Authority.Issuer) == "" {
		problems = append(problems, "authority.issuer is required")
	}
	if strings.TrimSpace(c.Authority.Subject) == "" {
		problems = append(problems, "authority.subject is required")
	}
	if c.Authority.TTL <= 0 {
		problems = append(problems, "authority.ttl must be positive")
	}

	if err := c.Fees.Validate(); err != nil {
		problems = append(problems, "fees: "+err.Error())
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		problems = append(problems, "telemetry.sample_ratio must be between 0 and 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// TelemetryExport converts the telemetry section, tagged with the authority
// and store this process runs with.
func (c *Config) TelemetryExport() telemetry.Export {
	return telemetry.Export{
		Endpoint:       c.Telemetry.OTLPEndpoint,
		Headers:        c.Telemetry.Headers,
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: c.Telemetry.ServiceVersion,
		Environment:    c.Telemetry.Environment,
		Subject:        c.Authority.Subject,
		Issuer:         c.Authority.Issuer,
		StoreDriver:    c.Store.Driver,
		SampleRatio:    c.Telemetry.SampleRatio,
	}
}

// LoggingSpec converts the logging section for logger.Configure.
func (c *Config) LoggingSpec() *logger.LoggingConfigSpec {
	return &logger.LoggingConfigSpec{
		Level:        c.Logging.Level,
		Format:       c.Logging.Format,
		CommonFields: c.Logging.CommonFields,
	}
}
