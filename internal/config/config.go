package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AEGIS_SERVER_ADDR
const EnvPrefix = "AEGIS"

// storage drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// errors
var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrEmptyDSN      = errors.New("storage dsn is required for postgres")
	ErrInvalidValue  = errors.New("invalid configuration value")
)

// Config is the complete runtime configuration
type Config struct {
	Debug  bool   `mapstructure:"debug"`
	LogDir string `mapstructure:"log_dir"`

	Server struct {
		Addr        string        `mapstructure:"addr"`
		CORSOrigins []string      `mapstructure:"cors_origins"`
		QueueBound  int           `mapstructure:"queue_bound"`
		Heartbeat   time.Duration `mapstructure:"heartbeat"`
	} `mapstructure:"server"`

	Storage struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"storage"`

	Session struct {
		PrivateKey string        `mapstructure:"private_key"`
		TTL        time.Duration `mapstructure:"ttl"`
		Skew       time.Duration `mapstructure:"skew"`
	} `mapstructure:"session"`

	Enrollment struct {
		TokenTTL time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"enrollment"`

	Device struct {
		CacheLifetime time.Duration `mapstructure:"cache_lifetime"`
		HashCost      int           `mapstructure:"hash_cost"`
	} `mapstructure:"device"`

	Telemetry struct {
		SkewTolerance time.Duration `mapstructure:"skew_tolerance"`
	} `mapstructure:"telemetry"`

	Severity struct {
		RulesPath string `mapstructure:"rules_path"`
		Watch     bool   `mapstructure:"watch"`
	} `mapstructure:"severity"`

	Anomaly struct {
		ModelPath       string  `mapstructure:"model_path"`
		Watch           bool    `mapstructure:"watch"`
		MinObservations uint64  `mapstructure:"min_observations"`
		NormalThreshold float64 `mapstructure:"normal_threshold"`
		AlertThreshold  float64 `mapstructure:"alert_threshold"`
	} `mapstructure:"anomaly"`

	Baseline struct {
		Path        string `mapstructure:"path"`
		SetCapacity int    `mapstructure:"set_capacity"`
	} `mapstructure:"baseline"`
}

// SetDefaults registers every known key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_dir", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.queue_bound", 100)
	v.SetDefault("server.heartbeat", 15*time.Second)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.dsn", "")

	v.SetDefault("session.private_key", "")
	v.SetDefault("session.ttl", 15*time.Minute)
	v.SetDefault("session.skew", 60*time.Second)

	v.SetDefault("enrollment.token_ttl", time.Hour)

	v.SetDefault("device.cache_lifetime", 10*time.Minute)
	v.SetDefault("device.hash_cost", 10)

	v.SetDefault("telemetry.skew_tolerance", 5*time.Second)

	v.SetDefault("severity.rules_path", "")
	v.SetDefault("severity.watch", true)

	v.SetDefault("anomaly.model_path", "")
	v.SetDefault("anomaly.watch", true)
	v.SetDefault("anomaly.min_observations", 50)
	v.SetDefault("anomaly.normal_threshold", 0.6)
	v.SetDefault("anomaly.alert_threshold", 0.75)

	v.SetDefault("baseline.path", "")
	v.SetDefault("baseline.set_capacity", 256)
}

// Prepare wires defaults and environment overrides into v
func Prepare(v *viper.Viper) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (cfg Config, err error) {
	if err = v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode configuration")
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for contradictions
func (cfg Config) Validate() error {
	switch cfg.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return ErrEmptyDSN
		}
	default:
		return errors.Wrapf(ErrUnknownDriver, "%q", cfg.Storage.Driver)
	}

	if cfg.Anomaly.NormalThreshold <= 0 || cfg.Anomaly.NormalThreshold > 1 {
		return errors.Wrap(ErrInvalidValue, "anomaly.normal_threshold must be within (0, 1]")
	}

	if cfg.Anomaly.AlertThreshold <= 0 || cfg.Anomaly.AlertThreshold > 1 {
		return errors.Wrap(ErrInvalidValue, "anomaly.alert_threshold must be within (0, 1]")
	}

	if cfg.Server.QueueBound <= 0 {
		return errors.Wrap(ErrInvalidValue, "server.queue_bound must be positive")
	}

	if cfg.Session.TTL <= 0 {
		return errors.Wrap(ErrInvalidValue, "session.ttl must be positive")
	}

	return nil
}
