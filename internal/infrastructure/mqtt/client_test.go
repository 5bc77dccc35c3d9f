package mqtt

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/mower-bridge/internal/infrastructure/config"
)

func testOptions() Options {
	return Options{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1,
			ClientID: "mowerbridge-test",
		},
		ConnectTimeout: 2 * time.Second,
	}
}

func TestBrokerURL(t *testing.T) {
	opts := testOptions()
	assert.Equal(t, "tcp://127.0.0.1:1", opts.brokerURL())

	opts.Broker.TLS = true
	opts.Broker.Port = 443
	assert.Equal(t, "ssl://127.0.0.1:443", opts.brokerURL())
}

func TestBuildClientOptions(t *testing.T) {
	opts := testOptions()
	opts.Auth = config.MQTTAuthConfig{Username: "bot", Password: "pw"}
	opts.KeepAlive = 45 * time.Second
	opts.Status = &StatusMessage{Topic: "ns/status", Online: "online", Offline: "offline"}

	po := buildClientOptions(opts)

	assert.Equal(t, "mowerbridge-test", po.ClientID)
	assert.Equal(t, "bot", po.Username)
	assert.Equal(t, "pw", po.Password)
	assert.False(t, po.AutoReconnect)
	assert.False(t, po.ConnectRetry)
	assert.False(t, po.CleanSession)
	assert.Equal(t, int64(45), po.KeepAlive)
	assert.True(t, po.WillEnabled)
	assert.Equal(t, "ns/status", po.WillTopic)
	assert.Equal(t, []byte("offline"), po.WillPayload)
	assert.True(t, po.WillRetained)
}

func TestBuildClientOptions_Defaults(t *testing.T) {
	po := buildClientOptions(testOptions())

	assert.Empty(t, po.Username)
	assert.False(t, po.WillEnabled)
	assert.Equal(t, int64(defaultKeepAlive/time.Second), po.KeepAlive)
}

func TestBuildTLSConfig(t *testing.T) {
	cfg := buildTLSConfig(config.MQTTBrokerConfig{Host: "iot.example.com", TLS: true, ALPN: []string{"mqtt"}})

	assert.Equal(t, "iot.example.com", cfg.ServerName)
	assert.Equal(t, []string{"mqtt"}, cfg.NextProtos)
	assert.Equal(t, uint16(tlsMinVersion), cfg.MinVersion)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, isAuthError(packets.ErrorRefusedBadUsernameOrPassword))
	assert.True(t, isAuthError(packets.ErrorRefusedNotAuthorised))
	assert.True(t, isAuthError(fmt.Errorf("connack: %w", packets.ErrorRefusedNotAuthorised)))
	assert.False(t, isAuthError(packets.ErrorRefusedServerUnavailable))
	assert.False(t, isAuthError(errors.New("dial tcp: connection refused")))
}

func TestConnectUnreachableBroker(t *testing.T) {
	client := New(testOptions())

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.NotErrorIs(t, err, ErrNotAuthorized)
	assert.False(t, client.IsConnected())
}

func TestConnectCancelled(t *testing.T) {
	client := New(testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Connect(ctx)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestOperationsWhenDisconnected(t *testing.T) {
	client := New(testOptions())
	noop := func(string, []byte) error { return nil }

	assert.ErrorIs(t, client.Publish("a/b", []byte("x"), 0, false), ErrNotConnected)
	assert.ErrorIs(t, client.Subscribe("a/+", 0, noop), ErrNotConnected)
	assert.ErrorIs(t, client.Unsubscribe("a/+"), ErrNotConnected)
	assert.NoError(t, client.Close())
}

func TestPublishValidation(t *testing.T) {
	client := New(testOptions())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 0, ErrInvalidTopic},
		{"single-level wildcard", "WX/+/commandIn", nil, 0, ErrInvalidTopic},
		{"multi-level wildcard", "ns/#", nil, 0, ErrInvalidTopic},
		{"qos too high", "a/b", nil, 3, ErrInvalidQoS},
		{"payload too large", "a/b", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := New(testOptions())

	assert.ErrorIs(t, client.Subscribe("", 0, func(string, []byte) error { return nil }), ErrInvalidTopic)
	assert.ErrorIs(t, client.Subscribe("a/b", 3, func(string, []byte) error { return nil }), ErrInvalidQoS)
	assert.ErrorIs(t, client.Subscribe("a/b", 0, nil), ErrSubscribeFailed)
	assert.ErrorIs(t, client.Unsubscribe(""), ErrInvalidTopic)
}

func TestDisconnectCallback(t *testing.T) {
	client := New(testOptions())

	lost := make(chan error, 1)
	client.SetOnDisconnect(func(err error) { lost <- err })

	wantErr := errors.New("keepalive timeout")
	client.handleDisconnect(wantErr)
	select {
	case err := <-lost:
		assert.Equal(t, wantErr, err)
	case <-time.After(time.Second):
		t.Fatal("onDisconnect callback not invoked")
	}
	assert.False(t, client.IsConnected())
}

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestWrapHandler(t *testing.T) {
	client := New(testOptions())
	logger := &recordingLogger{}
	client.SetLogger(logger)

	msg := fakeMessage{topic: "WX/SN1/commandOut", payload: []byte(`{}`)}

	client.wrapHandler(func(string, []byte) error { return errors.New("boom") })(nil, msg)
	client.wrapHandler(func(string, []byte) error { panic("bad handler") })(nil, msg)

	var got string
	client.wrapHandler(func(topic string, _ []byte) error {
		got = topic
		return nil
	})(nil, msg)

	assert.Equal(t, []string{"MQTT handler returned error"}, logger.warns)
	assert.Equal(t, []string{"MQTT handler panic recovered"}, logger.errors)
	assert.Equal(t, "WX/SN1/commandOut", got)
}
