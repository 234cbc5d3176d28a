package gateway

import "chat-gateway/internal/models"

// Emit helpers used by domain services. Payloads are forwarded as given.

func (g *Gateway) EmitServerUpdated(serverID string, payload any) error {
	return g.Emit(ServerRoom(serverID), models.EventServerUpdated, payload)
}

func (g *Gateway) EmitChannelCreated(serverID string, payload any) error {
	return g.Emit(ServerRoom(serverID), models.EventChannelCreated, payload)
}

func (g *Gateway) EmitChannelUpdated(serverID string, payload any) error {
	return g.Emit(ServerRoom(serverID), models.EventChannelUpdated, payload)
}

func (g *Gateway) EmitChannelDeleted(serverID string, payload any) error {
	return g.Emit(ServerRoom(serverID), models.EventChannelDeleted, payload)
}

func (g *Gateway) EmitMessageCreated(channelID string, payload any) error {
	return g.Emit(ChannelRoom(channelID), models.EventMessageCreated, payload)
}

func (g *Gateway) EmitMessageUpdated(channelID string, payload any) error {
	return g.Emit(ChannelRoom(channelID), models.EventMessageUpdated, payload)
}

func (g *Gateway) EmitMessageDeleted(channelID string, payload any) error {
	return g.Emit(ChannelRoom(channelID), models.EventMessageDeleted, payload)
}

func (g *Gateway) EmitReactionAdded(channelID string, payload any) error {
	return g.Emit(ChannelRoom(channelID), models.EventReactionAdded, payload)
}

func (g *Gateway) EmitReactionRemoved(channelID string, payload any) error {
	return g.Emit(ChannelRoom(channelID), models.EventReactionRemoved, payload)
}

func (g *Gateway) EmitDirectMessageCreated(threadID string, payload any) error {
	return g.Emit(DirectRoom(threadID), models.EventDirectMessageCreated, payload)
}

func (g *Gateway) EmitDirectMessageUpdated(threadID string, payload any) error {
	return g.Emit(DirectRoom(threadID), models.EventDirectMessageUpdated, payload)
}

func (g *Gateway) EmitDirectMessageDeleted(threadID string, payload any) error {
	return g.Emit(DirectRoom(threadID), models.EventDirectMessageDeleted, payload)
}

func (g *Gateway) EmitDirectReactionAdded(threadID string, payload any) error {
	return g.Emit(DirectRoom(threadID), models.EventDirectReactionAdded, payload)
}

func (g *Gateway) EmitDirectReactionRemoved(threadID string, payload any) error {
	return g.Emit(DirectRoom(threadID), models.EventDirectReactionRemoved, payload)
}

func (g *Gateway) EmitDirectThreadCreated(userID string, payload any) error {
	return g.Emit(UserRoom(userID), models.EventDirectThreadCreated, payload)
}

func (g *Gateway) JoinDirectRoomForUser(userID, threadID string) error {
	return g.JoinRoomForActor(userID, DirectRoom(threadID))
}

func (g *Gateway) JoinServerRoomForUser(userID, serverID string) error {
	return g.JoinRoomForActor(userID, ServerRoom(serverID))
}
