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

type InviteStore interface {
	database.InviteRepository
	memberLookup
}

type InviteService struct {
	db       InviteStore
	realtime Realtime
	clock    clock.Clock
	log      *logger.Logger
}

func NewInviteService(db InviteStore, rt Realtime, clk clock.Clock) *InviteService {
	if clk == nil {
		clk = clock.New()
	}
	return &InviteService{db: db, realtime: rt, clock: clk, log: logger.For("invites")}
}

// Accept redeems an invite code for userID. On success the user's live
// connections join the server room and the server's members see
// server.updated.
func (s *InviteService) Accept(ctx context.Context, code, userID string) (*models.Server, error) {
	invite, err := s.db.GetInviteByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("invite %s: %w", code, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get invite: %w", err)
	}
	if invite.Revoked {
		return nil, fmt.Errorf("invite %s: %w", code, models.ErrNotFound)
	}
	if invite.ExpiresAt != nil && invite.ExpiresAt.Before(s.clock.Now()) {
		return nil, fmt.Errorf("%w: expired", ErrInviteUnusable)
	}
	if invite.MaxUses != nil && invite.Uses >= *invite.MaxUses {
		return nil, fmt.Errorf("%w: exhausted", ErrInviteUnusable)
	}

	banned, err := s.db.IsBanned(ctx, invite.ServerID, userID)
	if err != nil {
		return nil, fmt.Errorf("check ban: %w", err)
	}
	if banned {
		return nil, ErrBanned
	}
	if _, err := s.db.GetMember(ctx, invite.ServerID, userID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get member: %w", err)
	}

	if err := s.db.AcceptInvite(ctx, invite, userID); err != nil {
		switch {
		case errors.Is(err, models.ErrAlreadyExists):
			return nil, ErrAlreadyMember
		case errors.Is(err, models.ErrNotFound):
			return nil, fmt.Errorf("%w: exhausted", ErrInviteUnusable)
		}
		return nil, fmt.Errorf("accept invite: %w", err)
	}

	server, err := s.db.GetServer(ctx, invite.ServerID)
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}

	if err := s.realtime.JoinServerRoomForUser(userID, server.ID); err != nil {
		s.log.Error("Error joining server room for %s: %v", userID, err)
	}
	if err := s.realtime.EmitServerUpdated(server.ID, server); err != nil {
		s.log.Error("Error emitting server.updated for %s: %v", server.ID, err)
	}
	s.log.Info("user %s joined server %s via invite %s", userID, server.ID, code)
	return server, nil
}
