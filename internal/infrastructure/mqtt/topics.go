package mqtt

import "fmt"

// Topic prefixes for the Envelope Sorting MQTT hierarchy.
//
// All topics use the flat scheme: envsort/{category}/{id}
const (
	// TopicPrefix is the base for all topics.
	TopicPrefix = "envsort"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "envsort/system"
)

// Topics provides builders for Envelope Sorting MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	resultTopic := topics.ItemResult()
//	// Returns: "envsort/item/result"
type Topics struct{}

// ScanAccepted returns the topic for accepted scans on a channel.
//
// Example: envsort/scan/1
func (Topics) ScanAccepted(channel int) string {
	return fmt.Sprintf("%s/scan/%d", TopicPrefix, channel)
}

// ItemResult returns the topic for completed item results.
//
// Example: envsort/item/result
func (Topics) ItemResult() string {
	return fmt.Sprintf("%s/item/result", TopicPrefix)
}

// SessionEvent returns the topic for session lifecycle events.
//
// Example: envsort/session/started
func (Topics) SessionEvent(event string) string {
	return fmt.Sprintf("%s/session/%s", TopicPrefix, event)
}

// SettingsChanged returns the topic for validation settings updates.
//
// Example: envsort/settings/changed
func (Topics) SettingsChanged() string {
	return fmt.Sprintf("%s/settings/changed", TopicPrefix)
}

// HardwareEvent returns the topic for sorter hardware events.
//
// Example: envsort/hardware/servo
func (Topics) HardwareEvent(event string) string {
	return fmt.Sprintf("%s/hardware/%s", TopicPrefix, event)
}

// SystemStatus returns the system status topic. This is also used as
// the LWT topic so subscribers see offline on unclean disconnect.
//
// Example: envsort/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllScans returns a pattern matching accepted scans on every channel.
//
// Pattern: envsort/scan/+
func (Topics) AllScans() string {
	return fmt.Sprintf("%s/scan/+", TopicPrefix)
}

// AllSessionEvents returns a pattern matching all session lifecycle events.
//
// Pattern: envsort/session/+
func (Topics) AllSessionEvents() string {
	return fmt.Sprintf("%s/session/+", TopicPrefix)
}

// AllTopics returns a pattern matching every Envelope Sorting topic.
// Use with caution - this receives ALL traffic.
//
// Pattern: envsort/#
func (Topics) AllTopics() string {
	return "envsort/#"
}
