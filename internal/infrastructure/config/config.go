package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "MOWERBRIDGE_"

// Config is the root configuration structure for the mower bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud     CloudConfig     `yaml:"cloud" envPrefix:"CLOUD_"`
	Private   PrivateConfig   `yaml:"private" envPrefix:"PRIVATE_"`
	Reconnect ReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" envPrefix:"HEARTBEAT_"`
	Health    HealthConfig    `yaml:"health" envPrefix:"HEALTH_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string   `yaml:"host" env:"HOST"`
	Port     int      `yaml:"port" env:"PORT"`
	TLS      bool     `yaml:"tls" env:"TLS"`
	ALPN     []string `yaml:"alpn" env:"ALPN" envSeparator:","`
	ClientID string   `yaml:"client_id" env:"CLIENT_ID"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// CloudConfig describes the session to the vendor cloud broker.
//
// The broker address and the access token are resolved outside the bridge
// (OAuth login, endpoint lookup) and handed over through this section.
type CloudConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker" envPrefix:"BROKER_"`
	Auth   MQTTAuthConfig   `yaml:"auth" envPrefix:"AUTH_"`

	// AccessToken is the vendor JWT. When set and Auth.Username is empty the
	// broker username is derived from it (custom authorizer format).
	AccessToken string `yaml:"access_token" env:"ACCESS_TOKEN"`

	// UserID identifies the account, used to build the default client id.
	UserID string `yaml:"user_id" env:"USER_ID"`

	// Brands lists the brand prefixes whose status wildcard is subscribed.
	Brands []string `yaml:"brands" env:"BRANDS" envSeparator:","`

	// Devices lists known mowers as "BRAND/SERIAL". They receive a refresh
	// command after every connect. Unlisted devices are still bridged.
	Devices []string `yaml:"devices" env:"DEVICES" envSeparator:","`

	KeepAlive    int  `yaml:"keep_alive" env:"KEEP_ALIVE"`
	CleanSession bool `yaml:"clean_session" env:"CLEAN_SESSION"`
}

// PrivateConfig describes the session to the private (home) broker.
type PrivateConfig struct {
	Broker          MQTTBrokerConfig `yaml:"broker" envPrefix:"BROKER_"`
	Auth            MQTTAuthConfig   `yaml:"auth" envPrefix:"AUTH_"`
	Namespace       string           `yaml:"namespace" env:"NAMESPACE"`
	DiscoveryPrefix string           `yaml:"discovery_prefix" env:"DISCOVERY_PREFIX"`
	KeepAlive       int              `yaml:"keep_alive" env:"KEEP_ALIVE"`
}

// ReconnectConfig contains reconnection backoff settings shared by both links.
type ReconnectConfig struct {
	InitialDelay int     `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     int     `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier   float64 `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter       float64 `yaml:"jitter" env:"JITTER"`
}

// HeartbeatConfig controls when a silent device is reported offline.
type HeartbeatConfig struct {
	OfflineTimeout int `yaml:"offline_timeout" env:"OFFLINE_TIMEOUT"`
	SweepInterval  int `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// HealthConfig contains bridge health reporting settings.
type HealthConfig struct {
	Interval int `yaml:"interval" env:"INTERVAL"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	Output string `yaml:"output" env:"OUTPUT"`
}

// DeviceRef names one mower by brand prefix and serial number.
type DeviceRef struct {
	Brand  string
	Serial string
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern MOWERBRIDGE_SECTION_KEY, for
// example MOWERBRIDGE_CLOUD_ACCESS_TOKEN or MOWERBRIDGE_PRIVATE_BROKER_HOST.
// An empty path skips the file and configures from defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			Broker: MQTTBrokerConfig{
				Port: 443,
				TLS:  true,
				ALPN: []string{"mqtt"},
			},
			Brands:    []string{"WX"},
			KeepAlive: 45,
		},
		Private: PrivateConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mower_mqtt_bridge",
			},
			Namespace:       "mower_mqtt_bridge",
			DiscoveryPrefix: "homeassistant",
			KeepAlive:       60,
		},
		Reconnect: ReconnectConfig{
			InitialDelay: 10,
			MaxDelay:     300,
			Multiplier:   2,
			Jitter:       0.5,
		},
		Heartbeat: HeartbeatConfig{
			OfflineTimeout: 900,
			SweepInterval:  60,
		},
		Health: HealthConfig{
			Interval: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Variables that are unset leave the file or default value untouched.
func applyEnvOverrides(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Cloud validation
	if c.Cloud.Broker.Host == "" {
		errs = append(errs, "cloud.broker.host is required")
	}
	if c.Cloud.Broker.Port < 1 || c.Cloud.Broker.Port > 65535 {
		errs = append(errs, "cloud.broker.port must be between 1 and 65535")
	}
	if c.Cloud.Auth.Username == "" && c.Cloud.AccessToken == "" {
		errs = append(errs, "cloud.access_token or cloud.auth.username is required (set MOWERBRIDGE_CLOUD_ACCESS_TOKEN)")
	}
	if c.Cloud.Broker.ClientID == "" && c.Cloud.UserID == "" {
		errs = append(errs, "cloud.user_id is required when cloud.broker.client_id is not set")
	}
	if len(c.Cloud.Brands) == 0 {
		errs = append(errs, "cloud.brands must list at least one brand prefix")
	}
	for _, brand := range c.Cloud.Brands {
		if brand == "" || strings.ContainsAny(brand, "/+#") {
			errs = append(errs, fmt.Sprintf("cloud.brands: invalid brand prefix %q", brand))
		}
	}
	if _, err := c.Cloud.DeviceRefs(); err != nil {
		errs = append(errs, err.Error())
	}

	// Private validation
	if c.Private.Broker.Host == "" {
		errs = append(errs, "private.broker.host is required")
	}
	if c.Private.Broker.Port < 1 || c.Private.Broker.Port > 65535 {
		errs = append(errs, "private.broker.port must be between 1 and 65535")
	}
	if c.Private.Broker.ClientID == "" {
		errs = append(errs, "private.broker.client_id is required")
	}
	if c.Private.Namespace == "" || strings.ContainsAny(c.Private.Namespace, "+#") {
		errs = append(errs, "private.namespace must be a non-empty topic without wildcards")
	}
	if c.Private.DiscoveryPrefix == "" || strings.ContainsAny(c.Private.DiscoveryPrefix, "+#") {
		errs = append(errs, "private.discovery_prefix must be a non-empty topic without wildcards")
	}

	// Reconnect validation
	if c.Reconnect.InitialDelay < 1 {
		errs = append(errs, "reconnect.initial_delay must be at least 1 second")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		errs = append(errs, "reconnect.max_delay must not be less than reconnect.initial_delay")
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, "reconnect.multiplier must be at least 1")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		errs = append(errs, "reconnect.jitter must be between 0 and 1")
	}

	// Heartbeat validation
	if c.Heartbeat.OfflineTimeout < 1 {
		errs = append(errs, "heartbeat.offline_timeout must be at least 1 second")
	}
	if c.Heartbeat.SweepInterval < 1 {
		errs = append(errs, "heartbeat.sweep_interval must be at least 1 second")
	}

	if c.Health.Interval < 1 {
		errs = append(errs, "health.interval must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DeviceRefs parses the configured "BRAND/SERIAL" device list.
func (c CloudConfig) DeviceRefs() ([]DeviceRef, error) {
	var errs []error
	refs := make([]DeviceRef, 0, len(c.Devices))
	for _, raw := range c.Devices {
		brand, serial, ok := strings.Cut(strings.TrimSpace(raw), "/")
		if !ok || brand == "" || serial == "" || strings.ContainsAny(serial, "/+#") {
			errs = append(errs, fmt.Errorf("cloud.devices: %q is not in BRAND/SERIAL form", raw))
			continue
		}
		refs = append(refs, DeviceRef{Brand: brand, Serial: serial})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return refs, nil
}

// GetInitialDelay returns the first reconnect delay as a Duration.
func (c *Config) GetInitialDelay() time.Duration {
	return time.Duration(c.Reconnect.InitialDelay) * time.Second
}

// GetMaxDelay returns the reconnect delay ceiling as a Duration.
func (c *Config) GetMaxDelay() time.Duration {
	return time.Duration(c.Reconnect.MaxDelay) * time.Second
}

// GetOfflineTimeout returns the device heartbeat timeout as a Duration.
func (c *Config) GetOfflineTimeout() time.Duration {
	return time.Duration(c.Heartbeat.OfflineTimeout) * time.Second
}

// GetSweepInterval returns how often device heartbeats are checked.
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Heartbeat.SweepInterval) * time.Second
}

// GetHealthInterval returns the health publish interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Health.Interval) * time.Second
}

// GetCloudKeepAlive returns the cloud session keepalive as a Duration.
func (c *Config) GetCloudKeepAlive() time.Duration {
	return time.Duration(c.Cloud.KeepAlive) * time.Second
}

// GetPrivateKeepAlive returns the private session keepalive as a Duration.
func (c *Config) GetPrivateKeepAlive() time.Duration {
	return time.Duration(c.Private.KeepAlive) * time.Second
}
