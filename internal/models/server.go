package models

import "time"

type Role string

const (
	RoleMember Role = "MEMBER"
	RoleMod    Role = "MOD"
	RoleAdmin  Role = "ADMIN"
	RoleOwner  Role = "OWNER"
)

type Permission string

const (
	PermManageServer   Permission = "MANAGE_SERVER"
	PermManageRoles    Permission = "MANAGE_ROLES"
	PermManageChannels Permission = "MANAGE_CHANNELS"
	PermKickMembers    Permission = "KICK_MEMBERS"
	PermBanMembers     Permission = "BAN_MEMBERS"
	PermViewChannel    Permission = "VIEW_CHANNEL"
	PermSendMessages   Permission = "SEND_MESSAGES"
)

var rolePriority = map[Role]int{
	RoleMember: 0,
	RoleMod:    1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

var rolePermissions = map[Role][]Permission{
	RoleOwner: {
		PermManageServer, PermManageRoles, PermManageChannels,
		PermKickMembers, PermBanMembers, PermViewChannel, PermSendMessages,
	},
	RoleAdmin: {
		PermManageServer, PermManageRoles, PermManageChannels,
		PermKickMembers, PermBanMembers, PermViewChannel, PermSendMessages,
	},
	RoleMod:    {PermManageChannels, PermKickMembers, PermBanMembers, PermViewChannel, PermSendMessages},
	RoleMember: {PermViewChannel, PermSendMessages},
}

// Valid reports whether r is one of the known server roles.
func (r Role) Valid() bool {
	_, ok := rolePriority[r]
	return ok
}

// HasAtLeastRole reports whether role ranks at or above min. Unknown roles
// never satisfy the check.
func HasAtLeastRole(role, min Role) bool {
	rp, ok := rolePriority[role]
	if !ok {
		return false
	}
	mp, ok := rolePriority[min]
	if !ok {
		return false
	}
	return rp >= mp
}

func RoleHasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// IsHigherRole reports whether actor strictly outranks target.
func IsHigherRole(actor, target Role) bool {
	return HasAtLeastRole(actor, target) && actor != target
}

type ChannelType string

const (
	ChannelText  ChannelType = "TEXT"
	ChannelVoice ChannelType = "VOICE"
)

func (t ChannelType) Valid() bool {
	return t == ChannelText || t == ChannelVoice
}

type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IconURL   string    `json:"iconUrl,omitempty"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Channel struct {
	ID       string      `json:"id"`
	ServerID string      `json:"serverId"`
	Name     string      `json:"name"`
	Type     ChannelType `json:"type"`
	MinRole  Role        `json:"minRole"`
}

type ServerMember struct {
	ServerID string    `json:"serverId"`
	UserID   string    `json:"userId"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Invite struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	ServerID  string     `json:"serverId"`
	MaxUses   *int       `json:"maxUses,omitempty"`
	Uses      int        `json:"uses"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
}

type Message struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channelId"`
	AuthorID  string     `json:"authorId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type DirectMessage struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"threadId"`
	AuthorID  string     `json:"authorId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type Reaction struct {
	ID        string `json:"id,omitempty"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
}

// MessageRef identifies a deleted message. Exactly one of ChannelID and
// ThreadID is set.
type MessageRef struct {
	ID        string `json:"id"`
	ChannelID string `json:"channelId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
}

type ChannelRef struct {
	ID string `json:"id"`
}

type DirectThread struct {
	ID        string    `json:"id"`
	UserIDs   []string  `json:"userIds"`
	CreatedAt time.Time `json:"createdAt"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

type CreateChannelRequest struct {
	Name    string      `json:"name"`
	Type    ChannelType `json:"type"`
	MinRole Role        `json:"minRole"`
}

type UpdateChannelRequest struct {
	Name    string `json:"name"`
	MinRole Role   `json:"minRole"`
}

type StartThreadRequest struct {
	UserID string `json:"userId"`
}

type BanRequest struct {
	Reason string `json:"reason"`
}
