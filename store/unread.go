package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatsync/logger"
	"chatsync/repository"
)

// UnreadCounter caches per-conversation unread counts. Recomputation is
// push-driven: the syncer replaces all counts on every refetch, and opening
// a conversation zeroes its count optimistically while the mark-read call
// runs in the background. If that call fails, the next resync restores
// whatever the server reports.
type UnreadCounter struct {
	mu     sync.RWMutex
	repo   repository.Conversations
	counts map[string]int
	total  int

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func NewUnreadCounter(repo repository.Conversations) *UnreadCounter {
	return &UnreadCounter{
		repo:      repo,
		counts:    make(map[string]int),
		listeners: make(map[int]Listener),
	}
}

func (u *UnreadCounter) Subscribe(l Listener) func() {
	u.lmu.Lock()
	defer u.lmu.Unlock()
	id := u.nextID
	u.nextID++
	u.listeners[id] = l
	return func() {
		u.lmu.Lock()
		defer u.lmu.Unlock()
		delete(u.listeners, id)
	}
}

func (u *UnreadCounter) notify() {
	u.lmu.Lock()
	ls := make([]Listener, 0, len(u.listeners))
	for _, l := range u.listeners {
		ls = append(ls, l)
	}
	u.lmu.Unlock()
	for _, l := range ls {
		l()
	}
}

// Count reports the cached unread count; conversations never seen (or with
// no messages) report zero.
func (u *UnreadCounter) Count(conversationID string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counts[conversationID]
}

// Total reports the cached badge total across all conversations.
func (u *UnreadCounter) Total() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.total
}

// ReplaceAll swaps in server-derived counts, usually after a list refetch.
func (u *UnreadCounter) ReplaceAll(counts map[string]int, total int) {
	next := make(map[string]int, len(counts))
	for id, n := range counts {
		if n > 0 {
			next[id] = n
		}
	}
	u.mu.Lock()
	u.counts = next
	u.total = total
	u.mu.Unlock()
	u.notify()
}

func (u *UnreadCounter) snapshot() (map[string]int, int) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	counts := make(map[string]int, len(u.counts))
	for id, n := range u.counts {
		counts[id] = n
	}
	return counts, u.total
}

// MarkOpened records that the viewer opened the conversation: the local
// count drops to zero immediately and the mark-read request is issued
// fire-and-forget. Failure never blocks navigation; a later resync wins.
func (u *UnreadCounter) MarkOpened(ctx context.Context, conversationID string) {
	u.mu.Lock()
	had := u.counts[conversationID]
	if had > 0 {
		delete(u.counts, conversationID)
		u.total -= had
		if u.total < 0 {
			u.total = 0
		}
	}
	u.mu.Unlock()
	if had > 0 {
		u.notify()
	}

	go func() {
		if err := u.repo.MarkRead(ctx, conversationID); err != nil {
			logger.Log.Warn("mark_read_failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}()
}

// Forget drops a conversation's cached count, e.g. after dissolution.
func (u *UnreadCounter) Forget(conversationID string) {
	u.mu.Lock()
	had := u.counts[conversationID]
	delete(u.counts, conversationID)
	u.total -= had
	if u.total < 0 {
		u.total = 0
	}
	u.mu.Unlock()
	if had > 0 {
		u.notify()
	}
}
