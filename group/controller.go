package group

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/models"
	"chatsync/repository"
	"chatsync/store"
)

// Controller applies group-structure mutations: membership and metadata are
// mutated optimistically in the local store, the repository call is issued,
// and on rejection the pre-operation snapshot is restored. Each successful
// mutation also records its system event as the conversation's new last
// message; the server-confirmed event supersedes the local guess on the
// next refetch.
type Controller struct {
	repo   repository.Conversations
	store  *store.ConversationListStore
	viewer models.UserRef
	// resync forces a refetch when the server reports the conversation or
	// member is gone, i.e. local state is stale.
	resync func()
}

func NewController(repo repository.Conversations, st *store.ConversationListStore, viewer models.UserRef, resync func()) *Controller {
	return &Controller{repo: repo, store: st, viewer: viewer, resync: resync}
}

func (c *Controller) systemMessage(conversationID string, ev models.SystemEvent) *models.Message {
	return &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       c.viewer.ID,
		Type:           models.ContentSystem,
		Content:        ev,
		CreatedAt:      time.Now(),
	}
}

func (c *Controller) group(conversationID, op string) (*models.Conversation, error) {
	conv, ok := c.store.Get(conversationID)
	if !ok {
		c.forceResync()
		return nil, &repository.Error{Kind: repository.KindNotFound, Op: op, Msg: "conversation not found"}
	}
	if conv.Kind != models.KindGroup {
		return nil, repository.Validation(op, "not a group conversation")
	}
	return conv, nil
}

func (c *Controller) forceResync() {
	if c.resync != nil {
		c.resync()
	}
}

// rollback restores the snapshot after a failed call. A not-found answer
// means local state was stale, so a refetch is forced on top.
func (c *Controller) rollback(op string, snap store.Snapshot, err error) error {
	c.store.Restore(snap)
	metrics.Rollbacks.Inc()
	logger.Log.Warn("group_op_rolled_back", zap.String("op", op), zap.Error(err))
	if repository.IsNotFound(err) {
		c.forceResync()
	}
	return err
}

// AddMembers invites users into the group. Any member may invite.
func (c *Controller) AddMembers(ctx context.Context, conversationID string, users []models.UserRef) error {
	const op = "add_members"
	conv, err := c.group(conversationID, op)
	if err != nil {
		return err
	}
	if !conv.IsMember(c.viewer.ID) {
		return repository.Validation(op, "not a member of this conversation")
	}

	added := make([]models.UserRef, 0, len(users))
	for _, u := range users {
		if !conv.IsMember(u.ID) {
			added = append(added, u)
		}
	}
	if len(added) == 0 {
		return repository.Validation(op, "no users to add")
	}

	snap := c.store.Snapshot(conversationID)
	c.store.Mutate(conversationID, func(conv *models.Conversation) {
		for _, u := range added {
			conv.Members = append(conv.Members, models.Membership{
				UserID: u.ID, Role: models.RoleMember, Name: u.Name,
			})
		}
		conv.LastMessage = c.systemMessage(conversationID, models.SystemEvent{
			Action:  models.ActionMemberAdded,
			Actor:   c.viewer,
			Targets: added,
		})
		conv.UpdatedAt = time.Now()
	})

	ids := make([]string, len(added))
	for i, u := range added {
		ids[i] = u.ID
	}
	if err := c.repo.AddMembers(ctx, conversationID, ids); err != nil {
		return c.rollback(op, snap, err)
	}
	return nil
}

// RemoveMember ejects a member. Admin only; self-removal goes through Leave.
func (c *Controller) RemoveMember(ctx context.Context, conversationID string, target models.UserRef) error {
	const op = "remove_member"
	conv, err := c.group(conversationID, op)
	if err != nil {
		return err
	}
	if role, _ := conv.RoleOf(c.viewer.ID); role != models.RoleAdmin {
		return repository.Validation(op, "only an admin can remove members")
	}
	if target.ID == c.viewer.ID {
		return repository.Validation(op, "use leave to remove yourself")
	}
	if !conv.IsMember(target.ID) {
		c.forceResync()
		return &repository.Error{Kind: repository.KindNotFound, Op: op, Msg: "target is not a member"}
	}

	snap := c.store.Snapshot(conversationID)
	c.store.Mutate(conversationID, func(conv *models.Conversation) {
		conv.RemoveMember(target.ID)
		conv.LastMessage = c.systemMessage(conversationID, models.SystemEvent{
			Action:  models.ActionMemberRemoved,
			Actor:   c.viewer,
			Targets: []models.UserRef{target},
		})
		conv.UpdatedAt = time.Now()
	})

	if err := c.repo.RemoveMember(ctx, conversationID, target.ID); err != nil {
		return c.rollback(op, snap, err)
	}
	return nil
}

// Promote grants admin to another member. Admin only.
func (c *Controller) Promote(ctx context.Context, conversationID string, target models.UserRef) error {
	const op = "promote"
	conv, err := c.group(conversationID, op)
	if err != nil {
		return err
	}
	if role, _ := conv.RoleOf(c.viewer.ID); role != models.RoleAdmin {
		return repository.Validation(op, "only an admin can promote members")
	}
	if target.ID == c.viewer.ID {
		return repository.Validation(op, "already an admin")
	}
	if !conv.IsMember(target.ID) {
		c.forceResync()
		return &repository.Error{Kind: repository.KindNotFound, Op: op, Msg: "target is not a member"}
	}

	snap := c.store.Snapshot(conversationID)
	c.applyPromotion(conversationID, target)

	if err := c.repo.GrantAdmin(ctx, conversationID, target.ID); err != nil {
		return c.rollback(op, snap, err)
	}
	return nil
}

func (c *Controller) applyPromotion(conversationID string, target models.UserRef) {
	c.store.Mutate(conversationID, func(conv *models.Conversation) {
		if m := conv.Member(target.ID); m != nil {
			m.Role = models.RoleAdmin
		}
		conv.LastMessage = c.systemMessage(conversationID, models.SystemEvent{
			Action:  models.ActionAdminGranted,
			Actor:   c.viewer,
			Targets: []models.UserRef{target},
		})
		conv.UpdatedAt = time.Now()
	})
}

// Rename sets the group's display name. Any member; name must be non-empty
// after trimming, checked before any network call.
func (c *Controller) Rename(ctx context.Context, conversationID, newName string) error {
	const op = "rename"
	conv, err := c.group(conversationID, op)
	if err != nil {
		return err
	}
	if !conv.IsMember(c.viewer.ID) {
		return repository.Validation(op, "not a member of this conversation")
	}
	name := strings.TrimSpace(newName)
	if name == "" {
		return repository.Validation(op, "name must not be empty")
	}

	snap := c.store.Snapshot(conversationID)
	c.store.Mutate(conversationID, func(conv *models.Conversation) {
		conv.Name = name
		conv.LastMessage = c.systemMessage(conversationID, models.SystemEvent{
			Action:  models.ActionRenamed,
			Actor:   c.viewer,
			NewName: name,
		})
		conv.UpdatedAt = time.Now()
	})

	if err := c.repo.RenameGroup(ctx, conversationID, name); err != nil {
		return c.rollback(op, snap, err)
	}
	return nil
}

// UpdateAvatar replaces the group avatar. Any member. The optimistic copy
// carries the local image reference until the server returns the stored URL.
func (c *Controller) UpdateAvatar(ctx context.Context, conversationID, image string) error {
	const op = "update_avatar"
	conv, err := c.group(conversationID, op)
	if err != nil {
		return err
	}
	if !conv.IsMember(c.viewer.ID) {
		return repository.Validation(op, "not a member of this conversation")
	}
	if image == "" {
		return repository.Validation(op, "image must not be empty")
	}

	snap := c.store.Snapshot(conversationID)
	c.store.Mutate(conversationID, func(conv *models.Conversation) {
		conv.Avatar = image
		conv.LastMessage = c.systemMessage(conversationID, models.SystemEvent{
			Action: models.ActionAvatarUpdated,
			Actor:  c.viewer,
		})
		conv.UpdatedAt = time.Now()
	})

	stored, err := c.repo.UpdateGroupAvatar(ctx, conversationID, image)
	if err != nil {
		return c.rollback(op, snap, err)
	}
	if stored != "" && stored != image {
		c.store.Mutate(conversationID, func(conv *models.Conversation) {
			conv.Avatar = stored
		})
	}
	return nil
}

// Leave removes the viewer's own membership; the conversation disappears
// from the local list. The sole admin of a non-empty group must transfer
// admin first (PromoteAndLeave).
func (c *Controller) Leave(ctx context.Context, conversationID string) error {
	const op = "leave"
	conv, err := c.group(conversationID, op)
	if err != nil {
		return err
	}
	role, ok := conv.RoleOf(c.viewer.ID)
	if !ok {
		return repository.Validation(op, "not a member of this conversation")
	}
	if role == models.RoleAdmin && conv.AdminCount() == 1 && len(conv.Members) > 1 {
		return repository.Validation(op, "promote another admin before leaving")
	}

	snap := c.store.Snapshot(conversationID)
	c.store.Remove(conversationID)

	if err := c.repo.LeaveGroup(ctx, conversationID); err != nil {
		return c.rollback(op, snap, err)
	}
	return nil
}

// PromoteAndLeave transfers admin and leaves as one user-visible action.
// The server records admin_transferred followed by user_left.
func (c *Controller) PromoteAndLeave(ctx context.Context, conversationID string, newAdmin models.UserRef) error {
	const op = "promote_and_leave"
	conv, err := c.group(conversationID, op)
	if err != nil {
		return err
	}
	if role, _ := conv.RoleOf(c.viewer.ID); role != models.RoleAdmin {
		return repository.Validation(op, "only an admin can transfer admin")
	}
	if newAdmin.ID == c.viewer.ID {
		return repository.Validation(op, "pick another member")
	}
	if !conv.IsMember(newAdmin.ID) {
		c.forceResync()
		return &repository.Error{Kind: repository.KindNotFound, Op: op, Msg: "target is not a member"}
	}

	snap := c.store.Snapshot(conversationID)
	c.applyPromotion(conversationID, newAdmin)
	c.store.Remove(conversationID)

	if err := c.repo.GrantAdmin(ctx, conversationID, newAdmin.ID); err != nil {
		return c.rollback(op, snap, err)
	}
	if err := c.repo.LeaveGroup(ctx, conversationID); err != nil {
		// The promotion already landed server-side; restoring the snapshot
		// keeps the conversation visible and the next refetch reconciles
		// the membership roles.
		return c.rollback(op, snap, err)
	}
	return nil
}

// Dissolve destroys the conversation and all memberships. Admin only.
func (c *Controller) Dissolve(ctx context.Context, conversationID string) error {
	const op = "dissolve"
	conv, err := c.group(conversationID, op)
	if err != nil {
		return err
	}
	if role, _ := conv.RoleOf(c.viewer.ID); role != models.RoleAdmin {
		return repository.Validation(op, "only an admin can dissolve the group")
	}

	snap := c.store.Snapshot(conversationID)
	c.store.Remove(conversationID)

	if err := c.repo.DissolveGroup(ctx, conversationID); err != nil {
		return c.rollback(op, snap, err)
	}
	return nil
}

// DeleteHistory clears the viewer's copy of the timeline; locally only the
// last-message preview needs dropping.
func (c *Controller) DeleteHistory(ctx context.Context, conversationID string) error {
	const op = "delete_history"
	conv, ok := c.store.Get(conversationID)
	if !ok {
		c.forceResync()
		return &repository.Error{Kind: repository.KindNotFound, Op: op, Msg: "conversation not found"}
	}
	if !conv.IsMember(c.viewer.ID) {
		return repository.Validation(op, "not a member of this conversation")
	}

	snap := c.store.Snapshot(conversationID)
	c.store.Mutate(conversationID, func(conv *models.Conversation) {
		conv.LastMessage = nil
	})

	if err := c.repo.DeleteHistory(ctx, conversationID); err != nil {
		return c.rollback(op, snap, err)
	}
	return nil
}

// CreateGroup creates a group with the viewer as admin plus at least two
// invitees. Creation is not optimistic: there is no id until the server
// answers, so the store is only updated on success.
func (c *Controller) CreateGroup(ctx context.Context, name string, invitees []models.UserRef) (*models.Conversation, error) {
	const op = "create_group"
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, repository.Validation(op, "name must not be empty")
	}
	if len(invitees) < 2 {
		return nil, repository.Validation(op, "a group needs at least two other members")
	}

	ids := make([]string, len(invitees))
	for i, u := range invitees {
		ids[i] = u.ID
	}
	conv, err := c.repo.CreateConversation(ctx, repository.CreateConversationParams{
		Kind:      models.KindGroup,
		Name:      trimmed,
		MemberIDs: ids,
	})
	if err != nil {
		return nil, err
	}
	c.store.Upsert(conv)
	return conv, nil
}

// StartPrivate lazily creates (or fetches) the two-party conversation with
// another user on first message intent.
func (c *Controller) StartPrivate(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	const op = "start_private"
	if otherUserID == c.viewer.ID {
		return nil, repository.Validation(op, "cannot chat with yourself")
	}
	conv, err := c.repo.EnsurePrivate(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	c.store.Upsert(conv)
	return conv, nil
}
