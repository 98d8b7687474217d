package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every hub topic.
const TopicPrefix = "graylogic/hub"

// Topics provides builders for hub MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.ChannelValue("outlet", "power") // graylogic/hub/value/outlet/power
type Topics struct{}

// ChannelValue is where a device publishes the value of one channel.
func (Topics) ChannelValue(deviceID, channelID string) string {
	return fmt.Sprintf("%s/value/%s/%s", TopicPrefix, deviceID, channelID)
}

// AllChannelValues matches every channel value topic.
func (Topics) AllChannelValues() string {
	return TopicPrefix + "/value/+/+"
}

// DeviceRequest is the conventional topic for requests to a device
// channel, used in templates as mqtt://graylogic/hub/request/{device}/<CHANNEL>.
func (Topics) DeviceRequest(deviceID, channelID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, deviceID, channelID)
}

// Event carries a mirrored automation event (automation.added, ...).
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// AllEvents matches every event topic.
func (Topics) AllEvents() string {
	return TopicPrefix + "/event/+"
}

// SystemStatus carries the hub's retained online/offline status (and LWT).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ParseChannelValueTopic extracts the device and channel IDs from a
// channel value topic.
func ParseChannelValueTopic(topic string) (deviceID, channelID string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/value/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
