// Package realtime carries events between publishers and connected clients
// over Redis pub/sub.
package realtime

import "strings"

// Channel is one of the fixed logical topics.
type Channel string

const (
	ChannelNotifications Channel = "realtime:notifications"
	ChannelApplications  Channel = "realtime:applications"
	ChannelUsers         Channel = "realtime:users"
)

const channelPrefix = "realtime:"

// AllChannels is the set every client stream subscribes to, in a fixed order.
var AllChannels = []Channel{ChannelNotifications, ChannelApplications, ChannelUsers}

func (c Channel) Valid() bool {
	switch c {
	case ChannelNotifications, ChannelApplications, ChannelUsers:
		return true
	}
	return false
}

func (c Channel) String() string {
	return string(c)
}

// ParseChannel accepts either the full name ("realtime:users") or the short
// form ("users").
func ParseChannel(name string) (Channel, bool) {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, channelPrefix) {
		name = channelPrefix + name
	}
	ch := Channel(name)
	return ch, ch.Valid()
}

func channelNames(channels []Channel) []string {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = string(ch)
	}
	return names
}
