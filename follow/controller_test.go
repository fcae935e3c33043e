package follow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/models"
	"chatsync/repository"
)

// fakeFollows scripts errors per call; when gate is set, FollowUser
// announces itself on entered and blocks until the gate closes, so a test
// can order responses deliberately.
type fakeFollows struct {
	mu          sync.Mutex
	following   []models.UserRef
	followErr   error
	unfollowErr error
	gate        chan struct{}
	entered     chan struct{}

	followCalls   int
	unfollowCalls int
}

func (f *fakeFollows) FollowUser(ctx context.Context, targetID string) error {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followCalls++
	return f.followErr
}

func (f *fakeFollows) UnfollowUser(ctx context.Context, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unfollowCalls++
	return f.unfollowErr
}

func (f *fakeFollows) GetFollowers(ctx context.Context, userID string) ([]models.UserRef, error) {
	return nil, nil
}

func (f *fakeFollows) GetFollowing(ctx context.Context, userID string) ([]models.UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.following, nil
}

func (f *fakeFollows) IsFollowing(ctx context.Context, userID, targetID string) (bool, error) {
	return false, nil
}

func TestLoadReplacesLocalView(t *testing.T) {
	repo := &fakeFollows{following: []models.UserRef{{ID: "u2"}, {ID: "u3"}}}
	c := NewController(repo, "u1")
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"u2", "u3"}, c.Following())
	assert.True(t, c.IsFollowing("u2"))
	assert.False(t, c.IsFollowing("u9"))
}

func TestEdges(t *testing.T) {
	repo := &fakeFollows{following: []models.UserRef{{ID: "u3"}, {ID: "u2"}}}
	c := NewController(repo, "u1")
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, []models.FollowEdge{
		{FollowerID: "u1", FolloweeID: "u2"},
		{FollowerID: "u1", FolloweeID: "u3"},
	}, c.Edges())
}

func TestFollowOptimisticAndRollback(t *testing.T) {
	repo := &fakeFollows{}
	c := NewController(repo, "u1")

	require.NoError(t, c.Follow(context.Background(), "u2"))
	assert.True(t, c.IsFollowing("u2"))

	repo.followErr = repository.Transient("follow", "down", nil)
	err := c.Follow(context.Background(), "u3")
	require.Error(t, err)
	assert.False(t, c.IsFollowing("u3"))
	assert.True(t, c.IsFollowing("u2"))
}

func TestUnfollowRollbackRestoresEdge(t *testing.T) {
	repo := &fakeFollows{following: []models.UserRef{{ID: "u2"}}}
	c := NewController(repo, "u1")
	require.NoError(t, c.Load(context.Background()))

	repo.unfollowErr = repository.Transient("unfollow", "down", nil)
	err := c.Unfollow(context.Background(), "u2")
	require.Error(t, err)
	assert.True(t, c.IsFollowing("u2"))
}

func TestSelfFollowRejected(t *testing.T) {
	c := NewController(&fakeFollows{}, "u1")
	assert.True(t, repository.IsValidation(c.Follow(context.Background(), "u1")))
	assert.True(t, repository.IsValidation(c.Unfollow(context.Background(), "u1")))
}

// A failed toggle must not clobber a later toggle on the same edge: the
// follow call is held until after the unfollow has been issued, then fails.
// The last local action (unfollow) wins.
func TestStaleFailureDoesNotOverrideLaterToggle(t *testing.T) {
	repo := &fakeFollows{gate: make(chan struct{}), entered: make(chan struct{})}
	repo.followErr = repository.Transient("follow", "timeout", nil)
	c := NewController(repo, "u1")

	done := make(chan error, 1)
	go func() { done <- c.Follow(context.Background(), "u2") }()
	<-repo.entered

	// unfollow supersedes the in-flight follow
	require.NoError(t, c.Unfollow(context.Background(), "u2"))

	close(repo.gate)
	require.Error(t, <-done)

	assert.False(t, c.IsFollowing("u2"))
}

func TestEachToggleIssuesItsOwnCall(t *testing.T) {
	repo := &fakeFollows{}
	c := NewController(repo, "u1")
	ctx := context.Background()

	require.NoError(t, c.Follow(ctx, "u2"))
	require.NoError(t, c.Unfollow(ctx, "u2"))
	require.NoError(t, c.Follow(ctx, "u2"))

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, 2, repo.followCalls)
	assert.Equal(t, 1, repo.unfollowCalls)
}
