package models

import "time"

type ConversationKind string

const (
	KindPrivate ConversationKind = "private"
	KindGroup   ConversationKind = "group"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type Membership struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

func (m Membership) Ref() UserRef {
	return UserRef{ID: m.UserID, Name: m.Name}
}

type Conversation struct {
	ID          string           `json:"id"`
	Kind        ConversationKind `json:"kind"`
	Name        string           `json:"name,omitempty"`
	Avatar      string           `json:"avatar,omitempty"`
	Members     []Membership     `json:"members"`
	LastMessage *Message         `json:"last_message,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Member returns a pointer into the membership slice so role updates are
// visible on the conversation, or nil when the user is not a member.
func (c *Conversation) Member(userID string) *Membership {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

func (c *Conversation) IsMember(userID string) bool {
	return c.Member(userID) != nil
}

func (c *Conversation) RoleOf(userID string) (Role, bool) {
	if m := c.Member(userID); m != nil {
		return m.Role, true
	}
	return "", false
}

func (c *Conversation) AdminCount() int {
	n := 0
	for i := range c.Members {
		if c.Members[i].Role == RoleAdmin {
			n++
		}
	}
	return n
}

func (c *Conversation) RemoveMember(userID string) bool {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			return true
		}
	}
	return false
}

// DisplayName derives the title shown in list views: a group's explicit name,
// or the other participant's name for a private conversation.
func (c *Conversation) DisplayName(viewerID string) string {
	if c.Kind == KindGroup {
		return c.Name
	}
	for i := range c.Members {
		if c.Members[i].UserID != viewerID {
			return c.Members[i].Name
		}
	}
	return ""
}

// mosaic sizes for groups without an explicit avatar; 3-member groups use a
// triangle layout, larger groups a 2x2 grid.
const (
	mosaicTriangle = 3
	mosaicGrid     = 4
)

// MosaicAvatars picks the member avatars composing the fallback group avatar.
// Returns nil when the conversation has an explicit avatar or is private.
func (c *Conversation) MosaicAvatars() []string {
	if c.Kind != KindGroup || c.Avatar != "" {
		return nil
	}
	limit := mosaicGrid
	if len(c.Members) == mosaicTriangle {
		limit = mosaicTriangle
	}
	out := make([]string, 0, limit)
	for i := range c.Members {
		if len(out) == limit {
			break
		}
		out = append(out, c.Members[i].Avatar)
	}
	return out
}

// Clone returns a deep copy suitable for snapshot/rollback: mutating the
// copy's members or last message never aliases the original.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Members = make([]Membership, len(c.Members))
	copy(cp.Members, c.Members)
	cp.LastMessage = c.LastMessage.clone()
	return &cp
}
