package rule

import (
	"regexp"
	"sort"
)

// channelPattern matches "device:channel" with alphanumeric parts.
var channelPattern = regexp.MustCompile(`^([[:alnum:]]+):([[:alnum:]]+)$`)

// Channel addresses a single value-bearing endpoint of a device.
// It is comparable and used as a map key throughout the hub.
type Channel struct {
	DeviceID  string `json:"deviceId"`
	ChannelID string `json:"channelId"`
}

// NewChannel builds a channel from its two identifiers without validation.
func NewChannel(deviceID, channelID string) Channel {
	return Channel{DeviceID: deviceID, ChannelID: channelID}
}

// ParseChannel parses the "device:channel" text form.
func ParseChannel(text string) (Channel, error) {
	m := channelPattern.FindStringSubmatch(text)
	if m == nil {
		return Channel{}, newParseError(ErrInvalidChannel, text)
	}
	return Channel{DeviceID: m[1], ChannelID: m[2]}, nil
}

// String returns the "device:channel" text form.
func (c Channel) String() string {
	return c.DeviceID + ":" + c.ChannelID
}

// Valid reports whether both identifiers match the channel syntax.
func (c Channel) Valid() bool {
	return channelPattern.MatchString(c.String())
}

// ChannelSet is an unordered set of channels.
type ChannelSet map[Channel]struct{}

// NewChannelSet returns a set holding the given channels.
func NewChannelSet(channels ...Channel) ChannelSet {
	s := make(ChannelSet, len(channels))
	for _, c := range channels {
		s[c] = struct{}{}
	}
	return s
}

// Add inserts a channel.
func (s ChannelSet) Add(c Channel) { s[c] = struct{}{} }

// Contains reports set membership.
func (s ChannelSet) Contains(c Channel) bool {
	_, ok := s[c]
	return ok
}

// Union adds every channel of other to s.
func (s ChannelSet) Union(other ChannelSet) {
	for c := range other {
		s[c] = struct{}{}
	}
}

// Sorted returns the channels ordered by device then channel ID.
func (s ChannelSet) Sorted() []Channel {
	out := make([]Channel, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	return out
}

// Values is a snapshot of known channel values. A missing key means the
// value is unknown.
type Values map[Channel]float64
