// Package config loads timelock settings from defaults, an optional YAML
// file and TIMELOCK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"timelock/internal/calibrate"
	"timelock/internal/modulus"
)

// EnvPrefix prefixes every environment override, e.g. TIMELOCK_LOG_LEVEL.
const EnvPrefix = "TIMELOCK"

// Keys understood by Load.
const (
	KeyPrimeBits          = "prime_bits"
	KeyCalibrationTrials  = "calibration_trials"
	KeyDefaultDuration    = "default_duration"
	KeyStoreDir           = "store_dir"
	KeyCheckpointInterval = "checkpoint_interval"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	KeyMetricsAddress     = "metrics.address"
	KeyBeaconEnabled      = "beacon.enabled"
	KeyBeaconURL          = "beacon.url"
	KeyBeaconChainHash    = "beacon.chain_hash"
)

// Default drand quicknet endpoint used for beacon escrow.
const (
	DefaultBeaconURL       = "https://api.drand.sh"
	DefaultBeaconChainHash = "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"
)

var (
	ErrInvalidPrimeBits          = errors.New("prime_bits must be at least 256")
	ErrInvalidCalibrationTrials  = errors.New("calibration_trials must be positive")
	ErrInvalidDefaultDuration    = errors.New("default_duration must not be negative")
	ErrInvalidCheckpointInterval = errors.New("checkpoint_interval must be positive")
	ErrInvalidLogLevel           = errors.New("log.level must be debug, info, warn or error")
	ErrInvalidLogFormat          = errors.New("log.format must be json or console")
	ErrMissingBeaconEndpoint     = errors.New("beacon.url and beacon.chain_hash are required when beacon is enabled")
)

// Config holds the complete timelock configuration.
type Config struct {
	PrimeBits          int           `mapstructure:"prime_bits"`
	CalibrationTrials  uint64        `mapstructure:"calibration_trials"`
	DefaultDuration    time.Duration `mapstructure:"default_duration"`
	StoreDir           string        `mapstructure:"store_dir"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`

	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Beacon  BeaconConfig  `mapstructure:"beacon"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Address is where /metrics is served. Empty disables the endpoint.
	Address string `mapstructure:"address"`
}

type BeaconConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	ChainHash string `mapstructure:"chain_hash"`
}

// Defaults returns a configuration with sensible defaults. An empty
// StoreDir means the platform data directory.
func Defaults() *Config {
	return &Config{
		PrimeBits:          modulus.DefaultPrimeBits,
		CalibrationTrials:  calibrate.DefaultTrials,
		DefaultDuration:    7 * time.Hour,
		CheckpointInterval: 30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Beacon: BeaconConfig{
			URL:       DefaultBeaconURL,
			ChainHash: DefaultBeaconChainHash,
		},
	}
}

// New returns a viper instance carrying the defaults and environment
// bindings. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()

	v.SetDefault(KeyPrimeBits, d.PrimeBits)
	v.SetDefault(KeyCalibrationTrials, d.CalibrationTrials)
	v.SetDefault(KeyDefaultDuration, d.DefaultDuration.String())
	v.SetDefault(KeyStoreDir, d.StoreDir)
	v.SetDefault(KeyCheckpointInterval, d.CheckpointInterval.String())
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
	v.SetDefault(KeyMetricsAddress, d.Metrics.Address)
	v.SetDefault(KeyBeaconEnabled, d.Beacon.Enabled)
	v.SetDefault(KeyBeaconURL, d.Beacon.URL)
	v.SetDefault(KeyBeaconChainHash, d.Beacon.ChainHash)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file at path into v and decodes the
// merged result. The returned configuration has been validated.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := new(Config)
	hook := viper.DecodeHook(durationHook())
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durationHook decodes strings with ParseDuration so that config files
// accept the "d" unit.
func durationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return ParseDuration(data.(string))
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.PrimeBits < 256 {
		return ErrInvalidPrimeBits
	}
	if c.CalibrationTrials == 0 {
		return ErrInvalidCalibrationTrials
	}
	if c.DefaultDuration < 0 {
		return ErrInvalidDefaultDuration
	}
	if c.CheckpointInterval <= 0 {
		return ErrInvalidCheckpointInterval
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return ErrInvalidLogFormat
	}

	if c.Beacon.Enabled && (c.Beacon.URL == "" || c.Beacon.ChainHash == "") {
		return ErrMissingBeaconEndpoint
	}

	return nil
}
