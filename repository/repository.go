package repository

import (
	"context"

	"chatsync/models"
)

type CreateConversationParams struct {
	Kind      models.ConversationKind `json:"kind"`
	Name      string                  `json:"name,omitempty"`
	Avatar    string                  `json:"avatar,omitempty"`
	MemberIDs []string                `json:"member_ids"`
}

// Conversations is the typed accessor over the backend's conversation
// surface. It owns no state; the session user is implied by the bearer
// token, so calls never take a caller-supplied viewer id.
type Conversations interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetUnreadCount(ctx context.Context, conversationID string) (int, error)
	GetTotalUnread(ctx context.Context) (int, error)
	CreateConversation(ctx context.Context, p CreateConversationParams) (*models.Conversation, error)
	// EnsurePrivate lazily creates the two-party conversation on first
	// message intent and returns the existing one otherwise.
	EnsurePrivate(ctx context.Context, otherUserID string) (*models.Conversation, error)
	RenameGroup(ctx context.Context, conversationID, name string) error
	UpdateGroupAvatar(ctx context.Context, conversationID, image string) (string, error)
	AddMembers(ctx context.Context, conversationID string, userIDs []string) error
	RemoveMember(ctx context.Context, conversationID, userID string) error
	GrantAdmin(ctx context.Context, conversationID, userID string) error
	LeaveGroup(ctx context.Context, conversationID string) error
	DissolveGroup(ctx context.Context, conversationID string) error
	DeleteHistory(ctx context.Context, conversationID string) error
	// MarkRead advances the viewer's last-read marker; fire-and-forget from
	// the UI's perspective.
	MarkRead(ctx context.Context, conversationID string) error
}

// Follows covers the follow graph. Follow/Unfollow act as the session user.
type Follows interface {
	FollowUser(ctx context.Context, followeeID string) error
	UnfollowUser(ctx context.Context, followeeID string) error
	GetFollowers(ctx context.Context, userID string) ([]models.UserRef, error)
	GetFollowing(ctx context.Context, userID string) ([]models.UserRef, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
}

type Repository interface {
	Conversations
	Follows
}
