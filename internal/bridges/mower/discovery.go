package mower

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Availability payloads understood by Home Assistant without configuration.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// DiscoverySink receives retained discovery configs.
type DiscoverySink interface {
	PublishDiscovery(topic string, payload []byte) error
}

// DiscoveryMessage is one rendered discovery config.
type DiscoveryMessage struct {
	Topic   string
	Payload []byte
}

// DiscoveryPublisher renders and publishes Home Assistant discovery configs.
//
// Rendering is deterministic: the same device state always yields the same
// bytes, so republishing is a no-op for Home Assistant.
type DiscoveryPublisher struct {
	topics Topics
	sink   DiscoverySink
}

// NewDiscoveryPublisher creates a publisher writing to sink.
func NewDiscoveryPublisher(topics Topics, sink DiscoverySink) *DiscoveryPublisher {
	return &DiscoveryPublisher{topics: topics, sink: sink}
}

// discoveryConfig is the JSON layout of one entity config. Field order is
// fixed by the struct, which keeps encoding byte-stable.
type discoveryConfig struct {
	Name     string `json:"name"`
	UniqueID string `json:"unique_id"`
	ObjectID string `json:"object_id"`

	StateTopic    string `json:"state_topic,omitempty"`
	ValueTemplate string `json:"value_template,omitempty"`

	ActivityStateTopic    string `json:"activity_state_topic,omitempty"`
	ActivityValueTemplate string `json:"activity_value_template,omitempty"`

	JSONAttributesTopic    string `json:"json_attributes_topic,omitempty"`
	JSONAttributesTemplate string `json:"json_attributes_template,omitempty"`

	CommandTopic               string `json:"command_topic,omitempty"`
	CommandTemplate            string `json:"command_template,omitempty"`
	DockCommandTopic           string `json:"dock_command_topic,omitempty"`
	DockCommandTemplate        string `json:"dock_command_template,omitempty"`
	PauseCommandTopic          string `json:"pause_command_topic,omitempty"`
	PauseCommandTemplate       string `json:"pause_command_template,omitempty"`
	StartMowingCommandTopic    string `json:"start_mowing_command_topic,omitempty"`
	StartMowingCommandTemplate string `json:"start_mowing_command_template,omitempty"`

	DeviceClass       string `json:"device_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	Icon              string `json:"icon,omitempty"`
	EntityCategory    string `json:"entity_category,omitempty"`

	Availability     []discoveryAvailability `json:"availability"`
	AvailabilityMode string                  `json:"availability_mode"`

	Device discoveryDevice `json:"device"`
}

type discoveryAvailability struct {
	Topic string `json:"topic"`
}

type discoveryDevice struct {
	Identifiers  []string    `json:"identifiers"`
	Connections  [][2]string `json:"connections,omitempty"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	SerialNumber string      `json:"serial_number"`
	SWVersion    string      `json:"sw_version,omitempty"`
}

// Render builds every discovery config for a device.
func (p *DiscoveryPublisher) Render(dev MowerDevice) ([]DiscoveryMessage, error) {
	brand, err := LookupBrand(dev.Key.Brand)
	if err != nil {
		return nil, err
	}

	deviceID := DeviceID(dev.Key.Brand, dev.Key.Serial)
	device := p.deviceInfo(brand, dev, deviceID)

	msgs := make([]DiscoveryMessage, 0, len(Catalog))
	for _, entity := range Catalog {
		cfg := p.entityConfig(entity, dev.Key, deviceID, device)

		payload, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encoding %s discovery for %s: %w", entity.Key, dev.Key, err)
		}
		msgs = append(msgs, DiscoveryMessage{
			Topic:   p.topics.Discovery(entity.Component, deviceID, entity.Key),
			Payload: payload,
		})
	}
	return msgs, nil
}

// Publish renders and publishes every config of a device. The device's
// DiscoveryPublished flag is set only if all of them were published; the
// caller must hold the device's registry lock.
func (p *DiscoveryPublisher) Publish(dev *MowerDevice) error {
	msgs, err := p.Render(*dev)
	if err != nil {
		return err
	}

	var errs []error
	for _, msg := range msgs {
		if err := p.sink.PublishDiscovery(msg.Topic, msg.Payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", msg.Topic, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	dev.DiscoveryPublished = true
	return nil
}

func (p *DiscoveryPublisher) deviceInfo(brand Brand, dev MowerDevice, deviceID string) discoveryDevice {
	info := discoveryDevice{
		Identifiers:  []string{deviceID},
		Name:         fmt.Sprintf("%s %s", brand.Manufacturer, dev.Key.Serial),
		Manufacturer: brand.Manufacturer,
		SerialNumber: dev.Key.Serial,
	}
	if fw, ok := ExtractField(brand, dev.State, FieldFirmware); ok {
		info.SWVersion = fmt.Sprint(fw)
	}
	if mac, ok := ExtractField(brand, dev.State, FieldMAC); ok {
		if s, isString := mac.(string); isString && s != "" {
			info.Connections = [][2]string{{"mac", s}}
		}
	}
	return info
}

func (p *DiscoveryPublisher) entityConfig(e Entity, key DeviceKey, deviceID string, device discoveryDevice) discoveryConfig {
	stateTopic := p.topics.State(key.Brand, key.Serial)
	commandTopic := p.topics.Command(key.Brand, key.Serial)
	valueTemplate := fmt.Sprintf("{{ value_json.%s }}", e.Key)

	cfg := discoveryConfig{
		Name:           e.Name,
		UniqueID:       deviceID + "_" + e.Key,
		ObjectID:       deviceID + "_" + e.Key,
		DeviceClass:    e.DeviceClass,
		Icon:           e.Icon,
		EntityCategory: e.EntityCategory,
		Availability: []discoveryAvailability{
			{Topic: p.topics.BridgeStatus()},
			{Topic: p.topics.Availability(key.Brand, key.Serial)},
		},
		AvailabilityMode: "all",
		Device:           device,
	}
	cfg.UnitOfMeasurement = e.Unit

	if e.Component == ComponentLawnMower {
		cfg.ActivityStateTopic = stateTopic
		cfg.ActivityValueTemplate = valueTemplate
	} else {
		cfg.StateTopic = stateTopic
		cfg.ValueTemplate = valueTemplate
	}

	if e.Attributes {
		cfg.JSONAttributesTopic = stateTopic
		cfg.JSONAttributesTemplate = fmt.Sprintf("{{ value_json.%s | tojson }}", attributesKey)
	}

	cmds := e.Commands
	if cmds.Command != "" {
		cfg.CommandTopic, cfg.CommandTemplate = commandTopic, cmds.Command
	}
	if cmds.Dock != "" {
		cfg.DockCommandTopic, cfg.DockCommandTemplate = commandTopic, cmds.Dock
	}
	if cmds.Pause != "" {
		cfg.PauseCommandTopic, cfg.PauseCommandTemplate = commandTopic, cmds.Pause
	}
	if cmds.StartMowing != "" {
		cfg.StartMowingCommandTopic, cfg.StartMowingCommandTemplate = commandTopic, cmds.StartMowing
	}

	return cfg
}
