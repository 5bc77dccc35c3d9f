package mower

import (
	"context"
	"fmt"
)

// StatusHandler receives every status message from the vendor cloud.
type StatusHandler func(brand, serial string, payload []byte)

// CloudLinkOptions configures a CloudLink.
type CloudLinkOptions struct {
	// Session is the vendor cloud broker session.
	Session Session

	// Brands are the brand prefixes whose status topics are subscribed.
	Brands []string

	// Devices receive a refresh command after each connect so the bridge
	// gets a full status without waiting for the next device report.
	Devices []DeviceKey

	// Retry controls reconnect backoff.
	Retry RetryPolicy

	// OnStatus is called for every status message.
	OnStatus StatusHandler
}

// CloudLink is the connection to the vendor cloud broker.
//
// It subscribes to {brand}/+/commandOut for each configured brand and
// publishes commands to {brand}/{serial}/commandIn.
type CloudLink struct {
	*link
	brands   []string
	devices  []DeviceKey
	onStatus StatusHandler
}

// NewCloudLink creates a cloud link. Call run (via BridgeController) to connect.
func NewCloudLink(opts CloudLinkOptions) (*CloudLink, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("cloud session is required")
	}
	if len(opts.Brands) == 0 {
		return nil, fmt.Errorf("at least one brand is required")
	}
	for _, code := range opts.Brands {
		if _, err := LookupBrand(code); err != nil {
			return nil, err
		}
	}

	c := &CloudLink{
		link:     newLink(LinkCloud, opts.Session, opts.Retry),
		brands:   opts.Brands,
		devices:  opts.Devices,
		onStatus: opts.OnStatus,
	}
	c.onUp = c.setup
	return c, nil
}

// setup subscribes to brand status topics and asks known devices for a
// full status.
func (c *CloudLink) setup(_ context.Context) error {
	for _, brand := range c.brands {
		if err := c.subscribe(CloudStatusWildcard(brand), c.handleStatus); err != nil {
			return err
		}
	}

	for _, dev := range c.devices {
		if err := c.SendCommand(dev.Brand, dev.Serial, []byte(cmdRefresh)); err != nil {
			c.logWarn("refresh request failed", "device", dev.String(), "error", err)
		}
	}
	return nil
}

func (c *CloudLink) handleStatus(topic string, payload []byte) {
	brand, serial, err := ParseCloudStatus(topic)
	if err != nil {
		c.logWarn("ignoring status on unexpected topic", "topic", topic, "error", err)
		return
	}
	if c.onStatus != nil {
		c.onStatus(brand, serial, payload)
	}
}

// SendCommand publishes a command to a device, non-retained.
func (c *CloudLink) SendCommand(brand, serial string, payload []byte) error {
	return c.publish(CloudCommand(brand, serial), payload, false)
}
