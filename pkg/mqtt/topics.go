package mqtt

import (
	"fmt"
	"strings"

	"github.com/viljami/ruuvi-home/internal/ruuvi"
)

// Gateways publish on ruuvi/<gateway-mac>/<sensor-mac>. MAC segments are
// case-insensitive hex, with or without colons.
const (
	TopicPrefix        = "ruuvi"
	DefaultTopicFilter = "ruuvi/+/+"
)

// ParseGatewayTopic extracts the canonical gateway and sensor MACs from a
// publish topic. Topics outside the ruuvi/<gw>/<sensor> shape return an
// error; callers count and drop those.
func ParseGatewayTopic(topic string) (gateway, sensor ruuvi.MAC, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix {
		return "", "", fmt.Errorf("topic %q does not match %s/<gateway>/<sensor>", topic, TopicPrefix)
	}

	gateway, err = ruuvi.ParseMAC(parts[1])
	if err != nil {
		return "", "", fmt.Errorf("topic %q: bad gateway segment: %w", topic, err)
	}

	sensor, err = ruuvi.ParseMAC(parts[2])
	if err != nil {
		return "", "", fmt.Errorf("topic %q: bad sensor segment: %w", topic, err)
	}

	return gateway, sensor, nil
}

// SensorTopic constructs the publish topic for a gateway/sensor pair
func SensorTopic(gateway, sensor ruuvi.MAC) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, gateway, sensor)
}
