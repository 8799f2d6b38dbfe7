// Package config loads service configuration from a YAML file, STARBOOK_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/unklstewy/bigskies-starbook/pkg/starbook"
)

// EnvPrefix is prepended to every environment variable, e.g. STARBOOK_MOUNT_HOST.
const EnvPrefix = "starbook"

// Config is the full service configuration.
type Config struct {
	Mount       MountConfig
	MQTT        MQTTConfig
	Database    DatabaseConfig
	Coordinator CoordinatorConfig
	Simulator   SimulatorConfig
	Log         LogConfig
}

// MountConfig describes the device.
type MountConfig struct {
	Host      string
	Port      int
	Timeout   time.Duration
	UserAgent string
	MinSpeed  int
	MaxSpeed  int
}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// DatabaseConfig describes the command journal database. An empty URL disables it.
type DatabaseConfig struct {
	URL string
}

// CoordinatorConfig tunes the coordinator loops and its ops endpoint.
type CoordinatorConfig struct {
	StatusInterval time.Duration
	HealthInterval time.Duration
	HTTPAddress    string
}

// SimulatorConfig configures the device simulator binary.
type SimulatorConfig struct {
	ListenAddress string
	HorizonLimit  float64
	SlewDuration  time.Duration
	Version       string
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mount.host", "")
	v.SetDefault("mount.port", 80)
	v.SetDefault("mount.timeout", 10*time.Second)
	v.SetDefault("mount.user_agent", starbook.DefaultUserAgent)
	v.SetDefault("mount.min_speed", starbook.DefaultMinSpeed)
	v.SetDefault("mount.max_speed", starbook.DefaultMaxSpeed)

	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "starbook-coordinator")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("database.url", "")

	v.SetDefault("coordinator.status_interval", 5*time.Second)
	v.SetDefault("coordinator.health_interval", 30*time.Second)
	v.SetDefault("coordinator.http_address", ":9090")

	v.SetDefault("simulator.listen_address", ":8080")
	v.SetDefault("simulator.horizon_limit", -30.0)
	v.SetDefault("simulator.slew_duration", 3*time.Second)
	v.SetDefault("simulator.version", "2.7JP")

	v.SetDefault("log.level", "info")
}

// RegisterFlags adds the command-line flags understood by Load. Flag names
// mirror config keys with '.' and '_' replaced by '-'.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file (default: search for starbook.yaml)")
	fs.String("mount-host", "", "Mount host name or IP address")
	fs.Int("mount-port", 80, "Mount HTTP port")
	fs.Duration("mount-timeout", 10*time.Second, "Mount request timeout")
	fs.String("mqtt-broker-url", "tcp://localhost:1883", "MQTT broker URL")
	fs.String("database-url", "", "PostgreSQL URL for the command journal (empty disables it)")
	fs.String("coordinator-http-address", ":9090", "Listen address for health, diagnostics and metrics")
	fs.String("simulator-listen-address", ":8080", "Listen address of the device simulator")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
}

var flagKeys = map[string]string{
	"mount-host":               "mount.host",
	"mount-port":               "mount.port",
	"mount-timeout":            "mount.timeout",
	"mqtt-broker-url":          "mqtt.broker_url",
	"database-url":             "database.url",
	"coordinator-http-address": "coordinator.http_address",
	"simulator-listen-address": "simulator.listen_address",
	"log-level":                "log.level",
}

// Load builds the configuration. fs may be nil; otherwise it must have been
// prepared with RegisterFlags and parsed. Only flags set explicitly override
// file and environment values.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if fs != nil {
		for flagName, key := range flagKeys {
			if f := fs.Lookup(flagName); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("starbook")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/starbook")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Mount: MountConfig{
			Host:      v.GetString("mount.host"),
			Port:      v.GetInt("mount.port"),
			Timeout:   v.GetDuration("mount.timeout"),
			UserAgent: v.GetString("mount.user_agent"),
			MinSpeed:  v.GetInt("mount.min_speed"),
			MaxSpeed:  v.GetInt("mount.max_speed"),
		},
		MQTT: MQTTConfig{
			BrokerURL: v.GetString("mqtt.broker_url"),
			ClientID:  v.GetString("mqtt.client_id"),
			Username:  v.GetString("mqtt.username"),
			Password:  v.GetString("mqtt.password"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Coordinator: CoordinatorConfig{
			StatusInterval: v.GetDuration("coordinator.status_interval"),
			HealthInterval: v.GetDuration("coordinator.health_interval"),
			HTTPAddress:    v.GetString("coordinator.http_address"),
		},
		Simulator: SimulatorConfig{
			ListenAddress: v.GetString("simulator.listen_address"),
			HorizonLimit:  v.GetFloat64("simulator.horizon_limit"),
			SlewDuration:  v.GetDuration("simulator.slew_duration"),
			Version:       v.GetString("simulator.version"),
		},
		Log: LogConfig{
			Level: strings.ToLower(v.GetString("log.level")),
		},
	}

	return cfg, nil
}

// Validate checks the settings every binary needs.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return nil
}

// ValidateCoordinator checks the settings the coordinator needs on top of Validate.
func (c *Config) ValidateCoordinator() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Mount.Host == "" {
		return fmt.Errorf("mount.host is required")
	}
	if c.Mount.Timeout <= 0 {
		return fmt.Errorf("mount.timeout must be positive")
	}
	if c.Mount.MinSpeed > c.Mount.MaxSpeed {
		return fmt.Errorf("mount.min_speed %d exceeds mount.max_speed %d", c.Mount.MinSpeed, c.Mount.MaxSpeed)
	}
	if c.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required")
	}
	if c.Coordinator.StatusInterval <= 0 || c.Coordinator.HealthInterval <= 0 {
		return fmt.Errorf("coordinator intervals must be positive")
	}
	return nil
}

// StarbookConfig returns the command interface configuration.
func (c *Config) StarbookConfig() starbook.Config {
	speed := starbook.SpeedRange{Min: c.Mount.MinSpeed, Max: c.Mount.MaxSpeed}
	return starbook.Config{
		Host:  c.Mount.Host,
		Port:  c.Mount.Port,
		Speed: &speed,
	}
}

// TransportConfig returns the HTTP transport configuration.
func (c *Config) TransportConfig() starbook.HTTPTransportConfig {
	return starbook.HTTPTransportConfig{
		Timeout:   c.Mount.Timeout,
		UserAgent: c.Mount.UserAgent,
	}
}
