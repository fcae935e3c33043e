package follow

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/models"
	"chatsync/repository"
)

// Controller keeps the viewer's side of the follow graph with the same
// optimistic discipline as group administration: mutate locally, issue the
// call, revert on failure. Rapid toggles each issue their own call; a
// per-target sequence number makes sure a rollback only fires if no later
// toggle touched the edge, so the last local action always wins regardless
// of response arrival order.
type Controller struct {
	repo     repository.Follows
	viewerID string

	mu        sync.Mutex
	following map[string]bool
	seq       map[string]uint64
}

func NewController(repo repository.Follows, viewerID string) *Controller {
	return &Controller{
		repo:      repo,
		viewerID:  viewerID,
		following: make(map[string]bool),
		seq:       make(map[string]uint64),
	}
}

// Load replaces the local view with the server's follow list.
func (c *Controller) Load(ctx context.Context) error {
	users, err := c.repo.GetFollowing(ctx, c.viewerID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.following = make(map[string]bool, len(users))
	for _, u := range users {
		c.following[u.ID] = true
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) IsFollowing(targetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.following[targetID]
}

func (c *Controller) Following() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.following))
	for id := range c.following {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Edges returns the viewer's outgoing follow edges, sorted by followee id.
func (c *Controller) Edges() []models.FollowEdge {
	ids := c.Following()
	edges := make([]models.FollowEdge, len(ids))
	for i, id := range ids {
		edges[i] = models.FollowEdge{FollowerID: c.viewerID, FolloweeID: id}
	}
	return edges
}

func (c *Controller) Follow(ctx context.Context, targetID string) error {
	const op = "follow"
	if targetID == c.viewerID {
		return repository.Validation(op, "cannot follow yourself")
	}

	c.mu.Lock()
	c.seq[targetID]++
	mine := c.seq[targetID]
	c.following[targetID] = true
	c.mu.Unlock()

	if err := c.repo.FollowUser(ctx, targetID); err != nil {
		c.revert(targetID, mine, false)
		logger.Log.Warn("follow_failed", zap.String("target", targetID), zap.Error(err))
		return err
	}
	return nil
}

func (c *Controller) Unfollow(ctx context.Context, targetID string) error {
	const op = "unfollow"
	if targetID == c.viewerID {
		return repository.Validation(op, "cannot unfollow yourself")
	}

	c.mu.Lock()
	c.seq[targetID]++
	mine := c.seq[targetID]
	delete(c.following, targetID)
	c.mu.Unlock()

	if err := c.repo.UnfollowUser(ctx, targetID); err != nil {
		c.revert(targetID, mine, true)
		logger.Log.Warn("unfollow_failed", zap.String("target", targetID), zap.Error(err))
		return err
	}
	return nil
}

// revert undoes one toggle's optimistic write, unless a later toggle on the
// same edge superseded it.
func (c *Controller) revert(targetID string, mine uint64, wasFollowing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq[targetID] != mine {
		return
	}
	if wasFollowing {
		c.following[targetID] = true
	} else {
		delete(c.following, targetID)
	}
	metrics.Rollbacks.Inc()
}
