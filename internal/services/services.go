// Package services holds the domain operations that change membership or
// produce content and push the result through the realtime gateway.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"chat-gateway/internal/models"
)

var (
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrBanned         = errors.New("banned from server")
	ErrAlreadyMember  = errors.New("already a member")
	ErrInviteUnusable = errors.New("invite unusable")
)

// Realtime is the gateway surface the services push through.
type Realtime interface {
	JoinServerRoomForUser(userID, serverID string) error
	JoinDirectRoomForUser(userID, threadID string) error
	RevokeServer(actorID, serverID string) error
	CloseChannel(channelID string) error

	EmitServerUpdated(serverID string, payload any) error
	EmitChannelCreated(serverID string, payload any) error
	EmitChannelUpdated(serverID string, payload any) error
	EmitChannelDeleted(serverID string, payload any) error

	EmitMessageCreated(channelID string, payload any) error
	EmitMessageUpdated(channelID string, payload any) error
	EmitMessageDeleted(channelID string, payload any) error
	EmitReactionAdded(channelID string, payload any) error
	EmitReactionRemoved(channelID string, payload any) error

	EmitDirectThreadCreated(userID string, payload any) error
	EmitDirectMessageCreated(threadID string, payload any) error
	EmitDirectMessageUpdated(threadID string, payload any) error
	EmitDirectMessageDeleted(threadID string, payload any) error
	EmitDirectReactionAdded(threadID string, payload any) error
	EmitDirectReactionRemoved(threadID string, payload any) error
}

const (
	MaxMessageLength     = 4000
	MaxEmojiLength       = 64
	MaxChannelNameLength = 100
)

// cleanContent trims message text and enforces the length limits.
func cleanContent(content string) (string, error) {
	clean := strings.TrimSpace(content)
	if clean == "" {
		return "", fmt.Errorf("%w: empty message", ErrBadRequest)
	}
	if utf8.RuneCountInString(clean) > MaxMessageLength {
		return "", fmt.Errorf("%w: message longer than %d characters", ErrBadRequest, MaxMessageLength)
	}
	return clean, nil
}

func cleanEmoji(emoji string) (string, error) {
	clean := strings.TrimSpace(emoji)
	if clean == "" || utf8.RuneCountInString(clean) > MaxEmojiLength {
		return "", fmt.Errorf("%w: invalid emoji", ErrBadRequest)
	}
	return clean, nil
}

// memberLookup is the slice of the membership directory the permission
// checks read.
type memberLookup interface {
	GetMember(ctx context.Context, serverID, userID string) (*models.ServerMember, error)
	IsBanned(ctx context.Context, serverID, userID string) (bool, error)
}

// ensureMember returns the actor's membership, refusing banned and
// non-members.
func ensureMember(ctx context.Context, db memberLookup, serverID, userID string) (*models.ServerMember, error) {
	banned, err := db.IsBanned(ctx, serverID, userID)
	if err != nil {
		return nil, fmt.Errorf("check ban: %w", err)
	}
	if banned {
		return nil, ErrBanned
	}
	member, err := db.GetMember(ctx, serverID, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: not a server member", ErrForbidden)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return member, nil
}

func ensurePermission(ctx context.Context, db memberLookup, serverID, userID string, perm models.Permission) (*models.ServerMember, error) {
	member, err := ensureMember(ctx, db, serverID, userID)
	if err != nil {
		return nil, err
	}
	if !models.RoleHasPermission(member.Role, perm) {
		return nil, fmt.Errorf("%w: missing %s", ErrForbidden, perm)
	}
	return member, nil
}
