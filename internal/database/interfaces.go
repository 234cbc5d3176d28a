package database

import (
	"context"
	"time"

	"chat-gateway/internal/models"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type TokenRepository interface {
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*models.RefreshToken, error)
	// RevokeRefreshToken reports whether the token was still active.
	RevokeRefreshToken(ctx context.Context, id string) (bool, error)
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// AuthStore is everything the credential service persists.
type AuthStore interface {
	UserRepository
	TokenRepository
}

// MembershipDirectory is the read surface over server and thread
// membership that realtime authorization is derived from.
type MembershipDirectory interface {
	ServerIDsForUser(ctx context.Context, userID string) ([]string, error)
	DirectThreadIDsForUser(ctx context.Context, userID string) ([]string, error)
	GetChannel(ctx context.Context, channelID string) (*models.Channel, error)
	GetMember(ctx context.Context, serverID, userID string) (*models.ServerMember, error)
	IsBanned(ctx context.Context, serverID, userID string) (bool, error)
}

type InviteRepository interface {
	GetInviteByCode(ctx context.Context, code string) (*models.Invite, error)
	// AcceptInvite adds userID as a MEMBER and consumes one use, atomically.
	AcceptInvite(ctx context.Context, invite *models.Invite, userID string) error
	GetServer(ctx context.Context, id string) (*models.Server, error)
}

type ModerationRepository interface {
	RemoveMember(ctx context.Context, serverID, userID string) error
	BanMember(ctx context.Context, serverID, userID, bannedBy, reason string) error
}

type ChannelRepository interface {
	CreateChannel(ctx context.Context, ch *models.Channel) (*models.Channel, error)
	UpdateChannel(ctx context.Context, ch *models.Channel) (*models.Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

type DirectRepository interface {
	FindThreadBetween(ctx context.Context, userA, userB string) (*models.DirectThread, error)
	CreateThread(ctx context.Context, userA, userB string) (*models.DirectThread, error)
}

// DirectMessageRepository reads and writes messages inside direct threads.
// Soft-deleted messages are returned with DeletedAt set.
type DirectMessageRepository interface {
	IsThreadMember(ctx context.Context, threadID, userID string) (bool, error)
	SaveDirectMessage(ctx context.Context, threadID, authorID, content string) (*models.DirectMessage, error)
	GetDirectMessage(ctx context.Context, id string) (*models.DirectMessage, error)
	EditDirectMessage(ctx context.Context, id, content string, at time.Time) (*models.DirectMessage, error)
	DeleteDirectMessage(ctx context.Context, id string, at time.Time) error
	AddDirectReaction(ctx context.Context, messageID, userID, emoji string) (*models.Reaction, error)
	RemoveDirectReaction(ctx context.Context, messageID, userID, emoji string) error
}

// MessageRepository reads and writes channel messages. Soft-deleted
// messages are returned with DeletedAt set.
type MessageRepository interface {
	SaveMessage(ctx context.Context, channelID, authorID, content string) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	EditMessage(ctx context.Context, id, content string, at time.Time) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string, at time.Time) error
	AddReaction(ctx context.Context, messageID, userID, emoji string) (*models.Reaction, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) error
}

type Database interface {
	AuthStore
	MembershipDirectory
	InviteRepository
	ModerationRepository
	ChannelRepository
	DirectRepository
	DirectMessageRepository
	MessageRepository
	Close() error
}
