package services

import (
	"context"
	"errors"
	"fmt"

	"chat-gateway/internal/database"
	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"

	"github.com/benbjohnson/clock"
)

type DirectStore interface {
	database.DirectRepository
	database.DirectMessageRepository
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type DirectService struct {
	db       DirectStore
	realtime Realtime
	clock    clock.Clock
	log      *logger.Logger
}

func NewDirectService(db DirectStore, rt Realtime, clk clock.Clock) *DirectService {
	if clk == nil {
		clk = clock.New()
	}
	return &DirectService{db: db, realtime: rt, clock: clk, log: logger.For("direct")}
}

// StartThread returns the direct thread between the two users, creating it
// when none exists. A new thread is joined by both users' live connections
// and announced on their user rooms.
func (s *DirectService) StartThread(ctx context.Context, userID, otherID string) (*models.DirectThread, error) {
	if otherID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrBadRequest)
	}
	if userID == otherID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrBadRequest)
	}
	if _, err := s.db.GetUserByID(ctx, otherID); err != nil {
		return nil, fmt.Errorf("get user %s: %w", otherID, err)
	}

	existing, err := s.db.FindThreadBetween(ctx, userID, otherID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("find thread: %w", err)
	}

	thread, err := s.db.CreateThread(ctx, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	for _, id := range []string{userID, otherID} {
		if err := s.realtime.JoinDirectRoomForUser(id, thread.ID); err != nil {
			s.log.Error("Error joining direct room for %s: %v", id, err)
		}
	}
	for _, id := range []string{userID, otherID} {
		if err := s.realtime.EmitDirectThreadCreated(id, thread); err != nil {
			s.log.Error("Error emitting direct.thread.created to %s: %v", id, err)
		}
	}
	return thread, nil
}

// Send posts a message to a direct thread the author belongs to.
func (s *DirectService) Send(ctx context.Context, threadID, authorID, content string) (*models.DirectMessage, error) {
	clean, err := cleanContent(content)
	if err != nil {
		return nil, err
	}
	if err := s.ensureThreadMember(ctx, threadID, authorID); err != nil {
		return nil, err
	}

	msg, err := s.db.SaveDirectMessage(ctx, threadID, authorID, clean)
	if err != nil {
		return nil, fmt.Errorf("save direct message: %w", err)
	}
	if err := s.realtime.EmitDirectMessageCreated(threadID, msg); err != nil {
		s.log.Error("Error emitting direct.message.created to %s: %v", threadID, err)
	}
	return msg, nil
}

// Edit replaces the content of the caller's own direct message.
func (s *DirectService) Edit(ctx context.Context, messageID, userID, content string) (*models.DirectMessage, error) {
	clean, err := cleanContent(content)
	if err != nil {
		return nil, err
	}
	msg, err := s.access(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != userID {
		return nil, fmt.Errorf("%w: cannot edit message", ErrForbidden)
	}

	updated, err := s.db.EditDirectMessage(ctx, messageID, clean, s.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("edit direct message: %w", err)
	}
	if err := s.realtime.EmitDirectMessageUpdated(msg.ThreadID, updated); err != nil {
		s.log.Error("Error emitting direct.message.updated to %s: %v", msg.ThreadID, err)
	}
	return updated, nil
}

// Delete soft-deletes the caller's own direct message.
func (s *DirectService) Delete(ctx context.Context, messageID, userID string) error {
	msg, err := s.access(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if msg.AuthorID != userID {
		return fmt.Errorf("%w: cannot delete message", ErrForbidden)
	}

	if err := s.db.DeleteDirectMessage(ctx, messageID, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("delete direct message: %w", err)
	}
	ref := models.MessageRef{ID: msg.ID, ThreadID: msg.ThreadID}
	if err := s.realtime.EmitDirectMessageDeleted(msg.ThreadID, ref); err != nil {
		s.log.Error("Error emitting direct.message.deleted to %s: %v", msg.ThreadID, err)
	}
	return nil
}

func (s *DirectService) AddReaction(ctx context.Context, messageID, userID, emoji string) (*models.Reaction, error) {
	clean, err := cleanEmoji(emoji)
	if err != nil {
		return nil, err
	}
	msg, err := s.access(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	reaction, err := s.db.AddDirectReaction(ctx, messageID, userID, clean)
	if err != nil {
		return nil, fmt.Errorf("add direct reaction: %w", err)
	}
	if err := s.realtime.EmitDirectReactionAdded(msg.ThreadID, reaction); err != nil {
		s.log.Error("Error emitting direct.reaction.added to %s: %v", msg.ThreadID, err)
	}
	return reaction, nil
}

func (s *DirectService) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	clean, err := cleanEmoji(emoji)
	if err != nil {
		return err
	}
	msg, err := s.access(ctx, messageID, userID)
	if err != nil {
		return err
	}

	if err := s.db.RemoveDirectReaction(ctx, messageID, userID, clean); err != nil {
		return fmt.Errorf("remove direct reaction: %w", err)
	}
	removed := models.Reaction{MessageID: messageID, UserID: userID, Emoji: clean}
	if err := s.realtime.EmitDirectReactionRemoved(msg.ThreadID, removed); err != nil {
		s.log.Error("Error emitting direct.reaction.removed to %s: %v", msg.ThreadID, err)
	}
	return nil
}

func (s *DirectService) access(ctx context.Context, messageID, userID string) (*models.DirectMessage, error) {
	msg, err := s.db.GetDirectMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get direct message %s: %w", messageID, err)
	}
	if msg.DeletedAt != nil {
		return nil, fmt.Errorf("get direct message %s: %w", messageID, models.ErrNotFound)
	}
	if err := s.ensureThreadMember(ctx, msg.ThreadID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *DirectService) ensureThreadMember(ctx context.Context, threadID, userID string) error {
	member, err := s.db.IsThreadMember(ctx, threadID, userID)
	if err != nil {
		return fmt.Errorf("check thread member: %w", err)
	}
	if !member {
		return fmt.Errorf("%w: not a thread member", ErrForbidden)
	}
	return nil
}
