package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/mower-bridge/internal/bridges/mower"
	"github.com/nerrad567/mower-bridge/internal/infrastructure/config"
	"github.com/nerrad567/mower-bridge/internal/infrastructure/mqtt"
)

const testConfig = `
cloud:
  broker:
    host: "127.0.0.1"
    port: 1
    tls: false
    client_id: "WX/USER/1/bot/test"
  auth:
    username: "bot?x-amz-customauthorizer-name=test"
  brands: ["WX"]
  devices: ["WX/SN123"]

private:
  broker:
    host: "127.0.0.1"
    port: 1
    client_id: "mower_mqtt_bridge_test"

reconnect:
  initial_delay: 1
  max_delay: 2

logging:
  level: error
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mowerbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/mowerbridge.yaml", ""); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidDeviceList verifies a malformed device entry is rejected
// before any connection is attempted.
func TestRun_InvalidDeviceList(t *testing.T) {
	path := writeConfig(t, testConfig)
	t.Setenv(config.EnvPrefix+"CLOUD_DEVICES", "not-a-device")

	err := run(context.Background(), path, "")
	if err == nil {
		t.Fatal("run() should fail with a malformed device list")
	}
}

// TestRun_CancelledContext verifies run returns cleanly when shutdown is
// requested while both brokers are unreachable.
func TestRun_CancelledContext(t *testing.T) {
	path := writeConfig(t, testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, path, "error") }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}

func TestSessionAdapter_ConnectFailureIsTransient(t *testing.T) {
	adapter := &sessionAdapter{client: mqtt.New(mqtt.Options{
		Broker:         config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1, ClientID: "adapter-test"},
		ConnectTimeout: 2 * time.Second,
	})}
	defer adapter.Close()

	err := adapter.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect() to a closed port should fail")
	}
	if !errors.Is(err, mower.ErrConnect) {
		t.Errorf("error = %v, want ErrConnect", err)
	}
	if errors.Is(err, mower.ErrAuth) {
		t.Errorf("error = %v, must not be ErrAuth", err)
	}
	if adapter.IsConnected() {
		t.Error("IsConnected() = true after failed connect")
	}
}

func TestSessionAdapter_PublishWhileDisconnected(t *testing.T) {
	adapter := &sessionAdapter{client: mqtt.New(mqtt.Options{
		Broker: config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1, ClientID: "adapter-test"},
	})}

	err := adapter.Publish("mower_mqtt_bridge/WX/SN123/status", []byte("{}"), 0, false)
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestNewApp_Flags(t *testing.T) {
	app := newApp()

	names := map[string]bool{}
	for _, f := range app.Flags {
		for _, n := range f.Names() {
			names[n] = true
		}
	}
	for _, want := range []string{"config", "c", "log-level"} {
		if !names[want] {
			t.Errorf("missing flag %q", want)
		}
	}
	if app.Name != "mowerbridge" {
		t.Errorf("Name = %q", app.Name)
	}
}
