package services

import (
	"context"
	"fmt"
	"strings"

	"chat-gateway/internal/database"
	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"
)

type ModerationStore interface {
	database.ModerationRepository
	memberLookup
}

type ModerationService struct {
	db       ModerationStore
	realtime Realtime
	log      *logger.Logger
}

func NewModerationService(db ModerationStore, rt Realtime) *ModerationService {
	return &ModerationService{db: db, realtime: rt, log: logger.For("moderation")}
}

// Kick removes targetID from the server and withdraws the target's live
// subscriptions to it.
func (s *ModerationService) Kick(ctx context.Context, serverID, actorID, targetID string) error {
	if err := s.authorize(ctx, serverID, actorID, targetID, models.PermKickMembers); err != nil {
		return err
	}
	if err := s.db.RemoveMember(ctx, serverID, targetID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.revoke(serverID, targetID)
	s.log.Info("%s kicked %s from server %s", actorID, targetID, serverID)
	return nil
}

// Ban records a ban, removes the membership and withdraws the target's live
// subscriptions.
func (s *ModerationService) Ban(ctx context.Context, serverID, actorID, targetID, reason string) error {
	if err := s.authorize(ctx, serverID, actorID, targetID, models.PermBanMembers); err != nil {
		return err
	}
	if err := s.db.BanMember(ctx, serverID, targetID, actorID, strings.TrimSpace(reason)); err != nil {
		return fmt.Errorf("ban member: %w", err)
	}
	s.revoke(serverID, targetID)
	s.log.Info("%s banned %s from server %s", actorID, targetID, serverID)
	return nil
}

func (s *ModerationService) authorize(ctx context.Context, serverID, actorID, targetID string, perm models.Permission) error {
	actor, err := ensurePermission(ctx, s.db, serverID, actorID, perm)
	if err != nil {
		return err
	}
	if actorID == targetID {
		return fmt.Errorf("%w: cannot target yourself", ErrBadRequest)
	}
	target, err := s.db.GetMember(ctx, serverID, targetID)
	if err != nil {
		return fmt.Errorf("get target member: %w", err)
	}
	if target.Role == models.RoleOwner {
		return fmt.Errorf("%w: cannot target the owner", ErrForbidden)
	}
	if !models.IsHigherRole(actor.Role, target.Role) {
		return fmt.Errorf("%w: insufficient role", ErrForbidden)
	}
	return nil
}

func (s *ModerationService) revoke(serverID, targetID string) {
	if err := s.realtime.RevokeServer(targetID, serverID); err != nil {
		s.log.Error("Error revoking realtime access of %s to %s: %v", targetID, serverID, err)
	}
}
