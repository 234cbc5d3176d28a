package gateway

import "strings"

// Room is a routing key. A room exists only as the set of connections
// currently subscribed to it.
type Room string

func ServerRoom(serverID string) Room  { return Room("server:" + serverID) }
func ChannelRoom(channelID string) Room { return Room("channel:" + channelID) }
func DirectRoom(threadID string) Room   { return Room("direct:" + threadID) }
func UserRoom(userID string) Room       { return Room("user:" + userID) }
func VoiceRoom(channelID string) Room   { return Room("voice:" + channelID) }

// Kind returns the prefix of the room key, e.g. "server".
func (r Room) Kind() string {
	kind, _, _ := strings.Cut(string(r), ":")
	return kind
}

// ID returns the identifier after the prefix.
func (r Room) ID() string {
	_, id, _ := strings.Cut(string(r), ":")
	return id
}
