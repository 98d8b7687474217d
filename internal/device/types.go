package device

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// Address template placeholders.
const (
	PlaceholderChannel = "<CHANNEL>"
	PlaceholderValue   = "<VALUE>"
)

// Supported template URL schemes.
var supportedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"mqtt":  true,
}

var idPattern = regexp.MustCompile(`^[[:alnum:]]+$`)

// Definition is the registration payload of a device.
type Definition struct {
	// ID is the device identifier used in rule text (alphanumeric).
	ID string `json:"id" yaml:"id"`

	// Channels lists the channel IDs the device exposes (alphanumeric, unique).
	Channels []string `json:"channels" yaml:"channels"`

	// Subscribe is the connect address template, asking the device to open a
	// session for <CHANNEL>.
	Subscribe string `json:"subscribe" yaml:"subscribe"`

	// Update is an optional template that sets <CHANNEL> to <VALUE> directly.
	Update string `json:"update,omitempty" yaml:"update,omitempty"`
}

// Validate checks identifiers and templates.
func (d Definition) Validate() error {
	if !idPattern.MatchString(d.ID) {
		return fmt.Errorf("%w: id %q must be alphanumeric", ErrInvalidDevice, d.ID)
	}
	if len(d.Channels) == 0 {
		return fmt.Errorf("%w: device %s declares no channels", ErrInvalidDevice, d.ID)
	}
	seen := make(map[string]bool, len(d.Channels))
	for _, ch := range d.Channels {
		if !idPattern.MatchString(ch) {
			return fmt.Errorf("%w: channel %q must be alphanumeric", ErrInvalidDevice, ch)
		}
		if seen[ch] {
			return fmt.Errorf("%w: duplicate channel %q", ErrInvalidDevice, ch)
		}
		seen[ch] = true
	}
	if err := validateTemplate(d.Subscribe); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if d.Update != "" {
		if err := validateTemplate(d.Update); err != nil {
			return fmt.Errorf("update: %w", err)
		}
	}
	return nil
}

func validateTemplate(tmpl string) error {
	if tmpl == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTemplate)
	}
	u, err := url.Parse(ExpandTemplate(tmpl, "channel", 0))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if !supportedSchemes[u.Scheme] {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTemplate, u.Scheme)
	}
	return nil
}

// ExpandTemplate substitutes the channel ID and the "%f" formatted value.
func ExpandTemplate(tmpl, channelID string, value float64) string {
	out := strings.ReplaceAll(tmpl, PlaceholderChannel, channelID)
	if strings.Contains(out, PlaceholderValue) {
		out = strings.ReplaceAll(out, PlaceholderValue, fmt.Sprintf("%f", value))
	}
	return out
}

// Device is a registered device and its channel bindings.
// The channel set is fixed at construction.
type Device struct {
	def      Definition
	bindings map[string]*Binding
}

// New validates the definition and builds a device with one binding per
// declared channel.
func New(def Definition) (*Device, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	d := &Device{
		def:      def,
		bindings: make(map[string]*Binding, len(def.Channels)),
	}
	d.def.Channels = append([]string(nil), def.Channels...)
	for _, ch := range def.Channels {
		d.bindings[ch] = newBinding(rule.NewChannel(def.ID, ch), def.Subscribe, def.Update)
	}
	return d, nil
}

// ID returns the device identifier.
func (d *Device) ID() string { return d.def.ID }

// Definition returns a copy of the registration payload.
func (d *Device) Definition() Definition {
	def := d.def
	def.Channels = append([]string(nil), d.def.Channels...)
	return def
}

// Binding returns the binding of a declared channel.
func (d *Device) Binding(channelID string) (*Binding, bool) {
	b, ok := d.bindings[channelID]
	return b, ok
}

// ChannelIDs returns the declared channel IDs, sorted.
func (d *Device) ChannelIDs() []string {
	ids := make([]string, 0, len(d.bindings))
	for id := range d.bindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RequestKind distinguishes outbound request types.
type RequestKind string

// Outbound request kinds.
const (
	// RequestConnect asks the device to open a session for the channel.
	RequestConnect RequestKind = "connect"

	// RequestUpdate asks the device to set the channel to a value.
	RequestUpdate RequestKind = "update"
)

// Request is an outbound request the hub must send to a device.
// Requests are built under a lock and sent after it is released.
type Request struct {
	Kind    RequestKind  `json:"kind"`
	Channel rule.Channel `json:"channel"`
	URL     string       `json:"url"`

	// Value is set for update requests.
	Value float64 `json:"value,omitempty"`
}

func (r Request) String() string {
	return fmt.Sprintf("%s %s -> %s", r.Kind, r.Channel, r.URL)
}
