package mower

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

// Topic defaults and suffixes.
const (
	// DefaultNamespace is the private topic root for bridged devices.
	DefaultNamespace = "mower_mqtt_bridge"

	// DefaultDiscoveryPrefix is Home Assistant's discovery topic root.
	DefaultDiscoveryPrefix = "homeassistant"

	// suffixStatus carries device status; the vendor names it from the
	// device's point of view ("out" of the mower).
	suffixStatus = "commandOut"

	// suffixCommand carries commands into the device.
	suffixCommand = "commandIn"

	suffixState        = "state"
	suffixAvailability = "availability"

	// deviceTopicParts is {brand}/{serial}/{suffix}.
	deviceTopicParts = 3
)

// CloudStatus returns the vendor status topic of a device.
//
// Example: WX/SN123/commandOut
func CloudStatus(brand, serial string) string {
	return fmt.Sprintf("%s/%s/%s", brand, serial, suffixStatus)
}

// CloudCommand returns the vendor command topic of a device.
//
// Example: WX/SN123/commandIn
func CloudCommand(brand, serial string) string {
	return fmt.Sprintf("%s/%s/%s", brand, serial, suffixCommand)
}

// CloudStatusWildcard matches the status topic of every device of a brand.
//
// Pattern: WX/+/commandOut
func CloudStatusWildcard(brand string) string {
	return CloudStatus(brand, "+")
}

// ParseCloudStatus extracts brand and serial from a vendor status topic.
func ParseCloudStatus(topic string) (brand, serial string, err error) {
	return parseDeviceTopic(topic, suffixStatus)
}

// Topics builds private broker topics under a namespace.
//
//	topics := mower.NewTopics("mower_mqtt_bridge", "homeassistant")
//	topics.Status("WX", "SN123")
//	// Returns: "mower_mqtt_bridge/WX/SN123/commandOut"
type Topics struct {
	Namespace       string
	DiscoveryPrefix string
}

// NewTopics returns topic builders, substituting defaults for empty values.
func NewTopics(namespace, discoveryPrefix string) Topics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if discoveryPrefix == "" {
		discoveryPrefix = DefaultDiscoveryPrefix
	}
	return Topics{
		Namespace:       strings.TrimSuffix(namespace, "/"),
		DiscoveryPrefix: strings.TrimSuffix(discoveryPrefix, "/"),
	}
}

// Status returns the private mirror of the vendor status topic.
// It carries the merged status document.
//
// Example: mower_mqtt_bridge/WX/SN123/commandOut
func (t Topics) Status(brand, serial string) string {
	return t.device(brand, serial, suffixStatus)
}

// Command returns the private command topic of a device.
//
// Example: mower_mqtt_bridge/WX/SN123/commandIn
func (t Topics) Command(brand, serial string) string {
	return t.device(brand, serial, suffixCommand)
}

// State returns the topic of the derived entity values document.
//
// Example: mower_mqtt_bridge/WX/SN123/state
func (t Topics) State(brand, serial string) string {
	return t.device(brand, serial, suffixState)
}

// Availability returns the retained per-device availability topic.
//
// Example: mower_mqtt_bridge/WX/SN123/availability
func (t Topics) Availability(brand, serial string) string {
	return t.device(brand, serial, suffixAvailability)
}

// CommandWildcard matches the private command topic of every device.
//
// Pattern: mower_mqtt_bridge/+/+/commandIn
func (t Topics) CommandWildcard() string {
	return t.device("+", "+", suffixCommand)
}

// ParseCommand extracts brand and serial from a private command topic.
func (t Topics) ParseCommand(topic string) (brand, serial string, err error) {
	rest, ok := strings.CutPrefix(topic, t.Namespace+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is outside namespace %q", ErrInvalidTopic, topic, t.Namespace)
	}
	return parseDeviceTopic(rest, suffixCommand)
}

// BridgeStatus returns the retained bridge availability topic (LWT).
//
// Example: mower_mqtt_bridge/status
func (t Topics) BridgeStatus() string {
	return t.Namespace + "/status"
}

// BridgeHealth returns the retained bridge health topic.
//
// Example: mower_mqtt_bridge/health
func (t Topics) BridgeHealth() string {
	return t.Namespace + "/health"
}

// Discovery returns the config topic of one entity.
//
// Example: homeassistant/sensor/wx_sn123/battery_level/config
func (t Topics) Discovery(component, deviceID, entityKey string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.DiscoveryPrefix, component, deviceID, entityKey)
}

func (t Topics) device(brand, serial, suffix string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Namespace, brand, serial, suffix)
}

// DeviceID returns the Home Assistant safe identifier of a device.
//
// Example: DeviceID("WX", "SN123") = "wx_sn123"
func DeviceID(brand, serial string) string {
	return strings.ReplaceAll(slug.Make(brand+"_"+serial), "-", "_")
}

// parseDeviceTopic splits {brand}/{serial}/{suffix}.
func parseDeviceTopic(topic, suffix string) (brand, serial string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != deviceTopicParts || parts[2] != suffix {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: empty brand or serial in %q", ErrInvalidTopic, topic)
	}
	return parts[0], parts[1], nil
}
