package mower

import (
	"context"
	"fmt"
)

// CommandHandler receives every command published on the private broker.
type CommandHandler func(brand, serial string, payload []byte)

// PrivateLinkOptions configures a PrivateLink.
type PrivateLinkOptions struct {
	// Session is the private broker session. Its last will and online
	// message are expected on Topics.BridgeStatus().
	Session Session

	// Topics builds private and discovery topics.
	Topics Topics

	// Retry controls reconnect backoff.
	Retry RetryPolicy

	// OnCommand is called for every command message.
	OnCommand CommandHandler

	// OnConnected runs after the command subscription is in place on each
	// new session, before the link is reported up.
	OnConnected func(ctx context.Context) error
}

// PrivateLink is the connection to the local broker that Home Assistant uses.
type PrivateLink struct {
	*link
	topics      Topics
	onCommand   CommandHandler
	onConnected func(ctx context.Context) error
}

// NewPrivateLink creates a private link.
func NewPrivateLink(opts PrivateLinkOptions) (*PrivateLink, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("private session is required")
	}

	p := &PrivateLink{
		link:        newLink(LinkPrivate, opts.Session, opts.Retry),
		topics:      opts.Topics,
		onCommand:   opts.OnCommand,
		onConnected: opts.OnConnected,
	}
	p.onUp = p.setup
	return p, nil
}

func (p *PrivateLink) setup(ctx context.Context) error {
	if err := p.subscribe(p.topics.CommandWildcard(), p.handleCommand); err != nil {
		return err
	}
	if p.onConnected != nil {
		return p.onConnected(ctx)
	}
	return nil
}

func (p *PrivateLink) handleCommand(topic string, payload []byte) {
	brand, serial, err := p.topics.ParseCommand(topic)
	if err != nil {
		p.logWarn("ignoring command on unexpected topic", "topic", topic, "error", err)
		return
	}
	if p.onCommand != nil {
		p.onCommand(brand, serial, payload)
	}
}

// PublishStatus publishes the merged status document on the status mirror
// topic and the derived entity values on the state topic.
func (p *PrivateLink) PublishStatus(key DeviceKey, merged, derived []byte) error {
	if err := p.publish(p.topics.Status(key.Brand, key.Serial), merged, false); err != nil {
		return err
	}
	return p.publish(p.topics.State(key.Brand, key.Serial), derived, false)
}

// PublishDiscovery publishes one retained discovery config.
func (p *PrivateLink) PublishDiscovery(topic string, payload []byte) error {
	return p.publish(topic, payload, true)
}

// PublishAvailability publishes the retained availability of a device.
func (p *PrivateLink) PublishAvailability(key DeviceKey, online bool) error {
	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}
	return p.publish(p.topics.Availability(key.Brand, key.Serial), []byte(payload), true)
}

// Publish satisfies HealthPublisher. Health messages are retained.
func (p *PrivateLink) Publish(topic string, payload []byte, retained bool) error {
	return p.publish(topic, payload, retained)
}

// IsConnected returns true while the private session is up.
func (p *PrivateLink) IsConnected() bool {
	return p.connected()
}
