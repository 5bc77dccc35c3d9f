// Package mqtt provides MQTT session management for the mower bridge.
//
// One Client wraps one paho.mqtt.golang session. The bridge runs two of them:
// one to the vendor cloud broker (TLS on port 443 with ALPN "mqtt") and one
// to the private home broker.
//
// This package manages:
//   - Single-attempt connects with CONNACK auth-failure classification
//   - Message publishing with topic, QoS and size validation
//   - Topic subscriptions with wildcard support and panic-safe handlers
//   - Optional retained availability topic with Last Will and Testament
//
// Reconnection is not automatic. The owner watches SetOnDisconnect and calls
// Connect again on its own backoff schedule, then subscribes again.
//
// # Usage
//
//	client := mqtt.New(mqtt.Options{
//	    Broker: cfg.Private.Broker,
//	    Auth:   cfg.Private.Auth,
//	    Status: &mqtt.StatusMessage{Topic: "mower_mqtt_bridge/status", Online: "online", Offline: "offline"},
//	})
//	if err := client.Connect(ctx); err != nil {
//	    if errors.Is(err, mqtt.ErrNotAuthorized) {
//	        // credentials rejected, give up
//	    }
//	}
//	defer client.Close()
//
//	err := client.Subscribe("mower_mqtt_bridge/+/+/commandIn", 0,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
