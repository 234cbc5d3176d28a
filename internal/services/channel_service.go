package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"chat-gateway/internal/database"
	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"
)

type ChannelStore interface {
	database.ChannelRepository
	GetChannel(ctx context.Context, channelID string) (*models.Channel, error)
	memberLookup
}

type ChannelService struct {
	db       ChannelStore
	realtime Realtime
	log      *logger.Logger
}

func NewChannelService(db ChannelStore, rt Realtime) *ChannelService {
	return &ChannelService{db: db, realtime: rt, log: logger.For("channels")}
}

func cleanChannelName(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "", fmt.Errorf("%w: channel name too short", ErrBadRequest)
	}
	if utf8.RuneCountInString(clean) > MaxChannelNameLength {
		return "", fmt.Errorf("%w: channel name longer than %d characters", ErrBadRequest, MaxChannelNameLength)
	}
	return clean, nil
}

// Create adds a channel to a server. Type defaults to TEXT and the minimum
// role to MEMBER.
func (s *ChannelService) Create(ctx context.Context, serverID, userID string, req models.CreateChannelRequest) (*models.Channel, error) {
	if _, err := ensurePermission(ctx, s.db, serverID, userID, models.PermManageChannels); err != nil {
		return nil, err
	}
	name, err := cleanChannelName(req.Name)
	if err != nil {
		return nil, err
	}
	ch := &models.Channel{ServerID: serverID, Name: name, Type: req.Type, MinRole: req.MinRole}
	if ch.Type == "" {
		ch.Type = models.ChannelText
	}
	if ch.MinRole == "" {
		ch.MinRole = models.RoleMember
	}
	if !ch.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown channel type %q", ErrBadRequest, ch.Type)
	}
	if !ch.MinRole.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrBadRequest, ch.MinRole)
	}

	created, err := s.db.CreateChannel(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	if err := s.realtime.EmitChannelCreated(serverID, created); err != nil {
		s.log.Error("Error emitting channel.created to %s: %v", serverID, err)
	}
	return created, nil
}

// Update renames a channel and optionally changes its minimum role.
// Connections already subscribed keep their subscription until they
// rejoin.
func (s *ChannelService) Update(ctx context.Context, channelID, userID string, req models.UpdateChannelRequest) (*models.Channel, error) {
	current, err := s.db.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	if _, err := ensurePermission(ctx, s.db, current.ServerID, userID, models.PermManageChannels); err != nil {
		return nil, err
	}
	name, err := cleanChannelName(req.Name)
	if err != nil {
		return nil, err
	}
	next := *current
	next.Name = name
	if req.MinRole != "" {
		if !req.MinRole.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrBadRequest, req.MinRole)
		}
		next.MinRole = req.MinRole
	}

	updated, err := s.db.UpdateChannel(ctx, &next)
	if err != nil {
		return nil, fmt.Errorf("update channel: %w", err)
	}
	if err := s.realtime.EmitChannelUpdated(current.ServerID, updated); err != nil {
		s.log.Error("Error emitting channel.updated to %s: %v", current.ServerID, err)
	}
	return updated, nil
}

// Delete removes a channel, tells the server room and releases every
// subscription, typing mark and voice participant held in it.
func (s *ChannelService) Delete(ctx context.Context, channelID, userID string) error {
	ch, err := s.db.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get channel %s: %w", channelID, err)
	}
	if _, err := ensurePermission(ctx, s.db, ch.ServerID, userID, models.PermManageChannels); err != nil {
		return err
	}
	if err := s.db.DeleteChannel(ctx, channelID); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}

	if err := s.realtime.EmitChannelDeleted(ch.ServerID, models.ChannelRef{ID: channelID}); err != nil {
		s.log.Error("Error emitting channel.deleted to %s: %v", ch.ServerID, err)
	}
	if err := s.realtime.CloseChannel(channelID); err != nil {
		s.log.Error("Error closing channel %s: %v", channelID, err)
	}
	return nil
}
