package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/mower-bridge/internal/bridges/mower"
	"github.com/nerrad567/mower-bridge/internal/infrastructure/mqtt"
)

// sessionAdapter adapts the infrastructure MQTT client to mower.Session.
// The differences are the Subscribe handler signature and the connect
// errors:
//   - Infrastructure mqtt: func(topic, payload []byte) error, ErrNotAuthorized
//   - Mower bridge expects: func(topic, payload []byte), mower.ErrAuth
type sessionAdapter struct {
	client *mqtt.Client
}

// Connect implements mower.Session.
func (a *sessionAdapter) Connect(ctx context.Context) error {
	err := a.client.Connect(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mqtt.ErrNotAuthorized):
		return fmt.Errorf("%w: %w", mower.ErrAuth, err)
	default:
		return fmt.Errorf("%w: %w", mower.ErrConnect, err)
	}
}

// Publish implements mower.Session.
func (a *sessionAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements mower.Session.
func (a *sessionAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Mower handlers log their own failures.
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements mower.Session.
func (a *sessionAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements mower.Session.
func (a *sessionAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// SetOnDisconnect implements mower.Session.
func (a *sessionAdapter) SetOnDisconnect(callback func(err error)) {
	a.client.SetOnDisconnect(callback)
}

// Close implements mower.Session.
func (a *sessionAdapter) Close() error {
	return a.client.Close()
}
