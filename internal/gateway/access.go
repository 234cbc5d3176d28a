package gateway

import (
	"context"
	"errors"

	"chat-gateway/internal/models"
)

// channelAccess re-derives from the directory whether actorID may read
// channelID: the channel must exist, the actor must be an unbanned member
// of its server holding at least the channel's minimum role.
func (g *Gateway) channelAccess(ctx context.Context, channelID, actorID string) (*models.Channel, error) {
	ch, err := g.directory.GetChannel(ctx, channelID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get channel", err)
	}

	banned, err := g.directory.IsBanned(ctx, ch.ServerID, actorID)
	if err != nil {
		return nil, unavailable("check ban", err)
	}
	if banned {
		return nil, forbidden("banned")
	}

	member, err := g.directory.GetMember(ctx, ch.ServerID, actorID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, forbidden("not a member")
	}
	if err != nil {
		return nil, unavailable("get member", err)
	}

	minRole := ch.MinRole
	if minRole == "" {
		minRole = models.RoleMember
	}
	if !models.HasAtLeastRole(member.Role, minRole) {
		return nil, forbidden("insufficient role")
	}
	return ch, nil
}
