package store

import (
	"sort"
	"sync"

	"chatsync/models"
)

type Listener func()

// ConversationListStore is the single mutable aggregate of all conversations
// visible to the current user. All mutation goes through Upsert/Remove/
// Mutate/ReplaceAll; controllers never reach into its state directly, which
// keeps optimistic writes and refetch applies from diverging.
type ConversationListStore struct {
	mu         sync.RWMutex
	viewerID   string
	convs      map[string]*models.Conversation
	generation uint64

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func NewConversationListStore(viewerID string) *ConversationListStore {
	return &ConversationListStore{
		viewerID:  viewerID,
		convs:     make(map[string]*models.Conversation),
		listeners: make(map[int]Listener),
	}
}

func (s *ConversationListStore) ViewerID() string { return s.viewerID }

// Subscribe registers a change listener, fired after every applied mutation.
func (s *ConversationListStore) Subscribe(l Listener) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *ConversationListStore) notify() {
	s.lmu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.lmu.Unlock()
	for _, l := range ls {
		l()
	}
}

// Generation identifies the store's current lifetime. Responses captured
// against an older generation are dropped instead of applied.
func (s *ConversationListStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Reset clears all state and invalidates in-flight refetch results.
func (s *ConversationListStore) Reset() {
	s.mu.Lock()
	s.convs = make(map[string]*models.Conversation)
	s.generation++
	s.mu.Unlock()
	s.notify()
}

// List returns the conversations ordered most-recently-active first:
// lastMessage.CreatedAt descending, conversations without messages last.
// Returned values are deep copies; callers may not alias store state.
func (s *ConversationListStore) List() []models.Conversation {
	s.mu.RLock()
	out := make([]models.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, *c.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return out
}

func (s *ConversationListStore) Get(id string) (*models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (s *ConversationListStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

func (s *ConversationListStore) Upsert(conv *models.Conversation) {
	s.mu.Lock()
	s.convs[conv.ID] = conv.Clone()
	s.mu.Unlock()
	s.notify()
}

func (s *ConversationListStore) Remove(id string) {
	s.mu.Lock()
	delete(s.convs, id)
	s.mu.Unlock()
	s.notify()
}

// Mutate applies fn to the stored conversation under the store's lock.
// Returns false when the conversation is not present.
func (s *ConversationListStore) Mutate(id string, fn func(*models.Conversation)) bool {
	s.mu.Lock()
	c, ok := s.convs[id]
	if ok {
		fn(c)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// ReplaceAll swaps in a full server-fetched list. The generation captured
// when the fetch started guards against applying a response into a store
// that has since been reset.
func (s *ConversationListStore) ReplaceAll(generation uint64, convs []models.Conversation) bool {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return false
	}
	next := make(map[string]*models.Conversation, len(convs))
	for i := range convs {
		next[convs[i].ID] = convs[i].Clone()
	}
	s.convs = next
	s.mu.Unlock()
	s.notify()
	return true
}

// Snapshot captures one conversation's pre-operation state for rollback.
// Absence is captured too, so a rolled-back optimistic insert disappears.
type Snapshot struct {
	id   string
	conv *models.Conversation
}

func (s *ConversationListStore) Snapshot(id string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return Snapshot{id: id}
	}
	return Snapshot{id: id, conv: c.Clone()}
}

// Restore reverts a conversation to its snapshotted state.
func (s *ConversationListStore) Restore(snap Snapshot) {
	s.mu.Lock()
	if snap.conv == nil {
		delete(s.convs, snap.id)
	} else {
		s.convs[snap.id] = snap.conv.Clone()
	}
	s.mu.Unlock()
	s.notify()
}
