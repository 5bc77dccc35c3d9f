// Mower Bridge
//
// mowerbridge relays robotic lawn mower status from the vendor cloud broker
// to a private MQTT broker, publishes Home Assistant discovery for every
// mower it sees, and forwards commands from the private broker back to the
// cloud.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/nerrad567/mower-bridge/internal/bridges/mower"
	"github.com/nerrad567/mower-bridge/internal/infrastructure/config"
	"github.com/nerrad567/mower-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/mower-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/mowerbridge.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM so the bridge can publish offline
	// availability before exiting.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "mowerbridge",
		Usage:   "bridge robotic lawn mowers from the vendor cloud to a private MQTT broker",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				Value:   defaultConfigPath,
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{config.EnvPrefix + "LOG_LEVEL"},
				Usage:   "override the configured log level (debug, info, warn, error)",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, resolveConfigPath(c), c.String("log-level"))
		},
	}
}

// resolveConfigPath returns the file to load, or "" to configure from the
// environment alone when the default file is absent.
func resolveConfigPath(c *cli.Context) string {
	path := c.String("config")
	if c.IsSet("config") {
		return path
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return path
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath, logLevel string) error {
	log := logging.Default()
	log.Info("starting mower bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if configPath == "" {
		log.Info("configuration loaded from environment")
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if cfg.Cloud.AccessToken != "" {
		if expiry, expErr := config.TokenExpiry(cfg.Cloud.AccessToken); expErr == nil && time.Now().After(expiry) {
			log.Warn("cloud access token has expired, the cloud broker will likely refuse it",
				"expired_at", expiry,
			)
		}
	}

	username, clientID, err := cfg.Cloud.CloudCredentials()
	if err != nil {
		return fmt.Errorf("resolving cloud credentials: %w", err)
	}

	refs, err := cfg.Cloud.DeviceRefs()
	if err != nil {
		return fmt.Errorf("parsing device list: %w", err)
	}

	cloudBroker := cfg.Cloud.Broker
	cloudBroker.ClientID = clientID
	cloudClient := mqtt.New(mqtt.Options{
		Broker:       cloudBroker,
		Auth:         config.MQTTAuthConfig{Username: username, Password: cfg.Cloud.Auth.Password},
		KeepAlive:    cfg.GetCloudKeepAlive(),
		CleanSession: cfg.Cloud.CleanSession,
	})
	cloudClient.SetLogger(log.With("component", "mqtt_cloud"))

	topics := mower.NewTopics(cfg.Private.Namespace, cfg.Private.DiscoveryPrefix)
	privateClient := mqtt.New(mqtt.Options{
		Broker:       cfg.Private.Broker,
		Auth:         cfg.Private.Auth,
		KeepAlive:    cfg.GetPrivateKeepAlive(),
		CleanSession: true,
		Status: &mqtt.StatusMessage{
			Topic:   topics.BridgeStatus(),
			Online:  mower.PayloadOnline,
			Offline: mower.PayloadOffline,
			QoS:     0,
		},
	})
	privateClient.SetLogger(log.With("component", "mqtt_private"))

	log.Info("bridge configured",
		"cloud_broker", fmt.Sprintf("%s:%d", cloudBroker.Host, cloudBroker.Port),
		"cloud_client_id", clientID,
		"private_broker", fmt.Sprintf("%s:%d", cfg.Private.Broker.Host, cfg.Private.Broker.Port),
		"namespace", cfg.Private.Namespace,
		"brands", cfg.Cloud.Brands,
		"devices", len(refs),
	)

	ctrl, err := mower.NewBridgeController(mower.ControllerOptions{
		CloudSession:   &sessionAdapter{client: cloudClient},
		PrivateSession: &sessionAdapter{client: privateClient},
		Topics:         topics,
		Brands:         cfg.Cloud.Brands,
		Devices: lo.Map(refs, func(r config.DeviceRef, _ int) mower.DeviceKey {
			return mower.DeviceKey{Brand: r.Brand, Serial: r.Serial}
		}),
		Retry: mower.RetryPolicy{
			InitialDelay: cfg.GetInitialDelay(),
			MaxDelay:     cfg.GetMaxDelay(),
			Multiplier:   cfg.Reconnect.Multiplier,
			Jitter:       cfg.Reconnect.Jitter,
		},
		OfflineTimeout: cfg.GetOfflineTimeout(),
		SweepInterval:  cfg.GetSweepInterval(),
		HealthInterval: cfg.GetHealthInterval(),
		Version:        version,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if err := ctrl.Run(ctx); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}

	log.Info("mower bridge stopped")
	return nil
}
