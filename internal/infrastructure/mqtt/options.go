package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mower-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a single connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval when none is configured.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options configures one broker session.
type Options struct {
	// Broker is the address, TLS and client id of the broker.
	Broker config.MQTTBrokerConfig

	// Auth holds the credentials. An empty username connects anonymously.
	Auth config.MQTTAuthConfig

	// KeepAlive is the MQTT keepalive interval. Zero uses 60 seconds.
	KeepAlive time.Duration

	// CleanSession asks the broker to discard session state on connect.
	CleanSession bool

	// ConnectTimeout bounds a single connection attempt. Zero uses 10 seconds.
	ConnectTimeout time.Duration

	// Status, when set, is published online on every connect, offline on
	// Close, and registered as the Last Will so the broker publishes offline
	// after an unexpected disconnect.
	Status *StatusMessage
}

// StatusMessage describes a retained availability topic.
type StatusMessage struct {
	Topic   string
	Online  string
	Offline string
	QoS     byte
}

func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout > 0 {
		return o.ConnectTimeout
	}
	return defaultConnectTimeout
}

// brokerURL returns the paho broker URL (tcp:// or ssl:// based on TLS setting).
func (o Options) brokerURL() string {
	scheme := "tcp"
	if o.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Broker.Host, o.Broker.Port)
}

// buildClientOptions creates paho MQTT options for one session.
//
// paho's auto-reconnect and connect-retry are off: each Connect call is
// exactly one attempt and the caller owns the backoff schedule.
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.brokerURL())
	opts.SetClientID(o.Broker.ClientID)

	if o.Auth.Username != "" {
		opts.SetUsername(o.Auth.Username)
		opts.SetPassword(o.Auth.Password)
	}

	opts.SetCleanSession(o.CleanSession)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(o.connectTimeout())

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if o.Broker.TLS {
		opts.SetTLSConfig(buildTLSConfig(o.Broker))
	}

	if o.Status != nil {
		opts.SetWill(o.Status.Topic, o.Status.Offline, o.Status.QoS, true)
	}

	return opts
}

// buildTLSConfig returns the TLS settings for a broker. ALPN protocols are
// required by brokers that multiplex MQTT on port 443.
func buildTLSConfig(b config.MQTTBrokerConfig) *tls.Config {
	return &tls.Config{
		MinVersion: tlsMinVersion,
		ServerName: b.Host,
		NextProtos: b.ALPN,
	}
}
