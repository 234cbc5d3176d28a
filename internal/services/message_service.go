package services

import (
	"context"
	"fmt"

	"chat-gateway/internal/database"
	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"

	"github.com/benbjohnson/clock"
)

type MessageStore interface {
	database.MessageRepository
	GetChannel(ctx context.Context, channelID string) (*models.Channel, error)
	memberLookup
}

type MessageService struct {
	db       MessageStore
	realtime Realtime
	clock    clock.Clock
	log      *logger.Logger
}

func NewMessageService(db MessageStore, rt Realtime, clk clock.Clock) *MessageService {
	if clk == nil {
		clk = clock.New()
	}
	return &MessageService{db: db, realtime: rt, clock: clk, log: logger.For("messages")}
}

func minRoleOf(ch *models.Channel) models.Role {
	if ch.MinRole == "" {
		return models.RoleMember
	}
	return ch.MinRole
}

// Send stores a message in a text channel and pushes message.created to the
// channel room.
func (s *MessageService) Send(ctx context.Context, channelID, authorID, content string) (*models.Message, error) {
	clean, err := cleanContent(content)
	if err != nil {
		return nil, err
	}

	channel, err := s.db.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	if channel.Type != models.ChannelText {
		return nil, fmt.Errorf("%w: not a text channel", ErrBadRequest)
	}

	member, err := ensurePermission(ctx, s.db, channel.ServerID, authorID, models.PermSendMessages)
	if err != nil {
		return nil, err
	}
	if !models.HasAtLeastRole(member.Role, minRoleOf(channel)) {
		return nil, fmt.Errorf("%w: insufficient role", ErrForbidden)
	}

	msg, err := s.db.SaveMessage(ctx, channelID, authorID, clean)
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	if err := s.realtime.EmitMessageCreated(channelID, msg); err != nil {
		s.log.Error("Error emitting message.created to %s: %v", channelID, err)
	}
	return msg, nil
}

// Edit replaces a message's content. Authors may edit their own messages;
// moderators and above may edit any.
func (s *MessageService) Edit(ctx context.Context, messageID, userID, content string) (*models.Message, error) {
	clean, err := cleanContent(content)
	if err != nil {
		return nil, err
	}
	msg, member, err := s.access(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if !canModify(msg.AuthorID, userID, member.Role) {
		return nil, fmt.Errorf("%w: cannot edit message", ErrForbidden)
	}

	updated, err := s.db.EditMessage(ctx, messageID, clean, s.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	if err := s.realtime.EmitMessageUpdated(msg.ChannelID, updated); err != nil {
		s.log.Error("Error emitting message.updated to %s: %v", msg.ChannelID, err)
	}
	return updated, nil
}

// Delete soft-deletes a message under the same rules as Edit.
func (s *MessageService) Delete(ctx context.Context, messageID, userID string) error {
	msg, member, err := s.access(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if !canModify(msg.AuthorID, userID, member.Role) {
		return fmt.Errorf("%w: cannot delete message", ErrForbidden)
	}

	if err := s.db.DeleteMessage(ctx, messageID, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	ref := models.MessageRef{ID: msg.ID, ChannelID: msg.ChannelID}
	if err := s.realtime.EmitMessageDeleted(msg.ChannelID, ref); err != nil {
		s.log.Error("Error emitting message.deleted to %s: %v", msg.ChannelID, err)
	}
	return nil
}

func (s *MessageService) AddReaction(ctx context.Context, messageID, userID, emoji string) (*models.Reaction, error) {
	clean, err := cleanEmoji(emoji)
	if err != nil {
		return nil, err
	}
	msg, _, err := s.access(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	reaction, err := s.db.AddReaction(ctx, messageID, userID, clean)
	if err != nil {
		return nil, fmt.Errorf("add reaction: %w", err)
	}
	if err := s.realtime.EmitReactionAdded(msg.ChannelID, reaction); err != nil {
		s.log.Error("Error emitting reaction.added to %s: %v", msg.ChannelID, err)
	}
	return reaction, nil
}

// RemoveReaction withdraws the user's own reaction. Removing a reaction
// that was never added still emits reaction.removed.
func (s *MessageService) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	clean, err := cleanEmoji(emoji)
	if err != nil {
		return err
	}
	msg, _, err := s.access(ctx, messageID, userID)
	if err != nil {
		return err
	}

	if err := s.db.RemoveReaction(ctx, messageID, userID, clean); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	removed := models.Reaction{MessageID: messageID, UserID: userID, Emoji: clean}
	if err := s.realtime.EmitReactionRemoved(msg.ChannelID, removed); err != nil {
		s.log.Error("Error emitting reaction.removed to %s: %v", msg.ChannelID, err)
	}
	return nil
}

// access loads a live message and checks that userID may read its channel.
func (s *MessageService) access(ctx context.Context, messageID, userID string) (*models.Message, *models.ServerMember, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, fmt.Errorf("get message %s: %w", messageID, err)
	}
	if msg.DeletedAt != nil {
		return nil, nil, fmt.Errorf("get message %s: %w", messageID, models.ErrNotFound)
	}
	channel, err := s.db.GetChannel(ctx, msg.ChannelID)
	if err != nil {
		return nil, nil, fmt.Errorf("get channel %s: %w", msg.ChannelID, err)
	}
	member, err := ensureMember(ctx, s.db, channel.ServerID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !models.HasAtLeastRole(member.Role, minRoleOf(channel)) {
		return nil, nil, fmt.Errorf("%w: insufficient role", ErrForbidden)
	}
	return msg, member, nil
}

func canModify(authorID, userID string, role models.Role) bool {
	return authorID == userID || models.HasAtLeastRole(role, models.RoleMod)
}
