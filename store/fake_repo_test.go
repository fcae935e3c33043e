package store

import (
	"context"
	"sync"

	"chatsync/models"
	"chatsync/repository"
)

// fakeRepo is a scriptable repository.Conversations for store-level tests.
type fakeRepo struct {
	mu       sync.Mutex
	convs    []models.Conversation
	unread   map[string]int
	total    int
	listErr  error
	countErr error
	readErr  error

	markReadCalls []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{unread: make(map[string]int)}
}

func (f *fakeRepo) setConversations(convs ...models.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs = convs
}

func (f *fakeRepo) setUnread(counts map[string]int, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread = counts
	f.total = total
}

func (f *fakeRepo) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Conversation, len(f.convs))
	copy(out, f.convs)
	return out, nil
}

func (f *fakeRepo) GetUnreadCount(ctx context.Context, conversationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.unread[conversationID], nil
}

func (f *fakeRepo) GetTotalUnread(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.total, nil
}

func (f *fakeRepo) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls = append(f.markReadCalls, conversationID)
	return f.readErr
}

func (f *fakeRepo) CreateConversation(ctx context.Context, p repository.CreateConversationParams) (*models.Conversation, error) {
	return nil, nil
}
func (f *fakeRepo) EnsurePrivate(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	return nil, nil
}
func (f *fakeRepo) RenameGroup(ctx context.Context, id, name string) error          { return nil }
func (f *fakeRepo) UpdateGroupAvatar(ctx context.Context, id, img string) (string, error) {
	return img, nil
}
func (f *fakeRepo) AddMembers(ctx context.Context, id string, userIDs []string) error { return nil }
func (f *fakeRepo) RemoveMember(ctx context.Context, id, userID string) error         { return nil }
func (f *fakeRepo) GrantAdmin(ctx context.Context, id, userID string) error           { return nil }
func (f *fakeRepo) LeaveGroup(ctx context.Context, id string) error                   { return nil }
func (f *fakeRepo) DissolveGroup(ctx context.Context, id string) error                { return nil }
func (f *fakeRepo) DeleteHistory(ctx context.Context, id string) error                { return nil }
