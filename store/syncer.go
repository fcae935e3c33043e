package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chatsync/cache"
	"chatsync/events"
	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/repository"
)

// Syncer wires the event channel to the store: every "something changed"
// signal triggers a coarse full refetch of the conversation list and unread
// counts. Signals are at-least-once and refetches are idempotent, so
// duplicates are harmless; a rate limiter coalesces bursts.
type Syncer struct {
	repo    repository.Conversations
	store   *ConversationListStore
	unread  *UnreadCounter
	channel events.Channel
	cache   *cache.Cache // optional warm-start/persist layer

	limiter  *rate.Limiter
	requests chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsubs []func()
}

func NewSyncer(repo repository.Conversations, st *ConversationListStore, unread *UnreadCounter, ch events.Channel, c *cache.Cache) *Syncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		repo:     repo,
		store:    st,
		unread:   unread,
		channel:  ch,
		cache:    c,
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		requests: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start serves cached state immediately, registers the signal handlers, and
// issues the initial refetch.
func (s *Syncer) Start() {
	s.warmStart()

	onSignal := func(events.Signal) { s.RequestRefetch() }
	for _, sig := range []events.Signal{
		events.SignalNewMessage,
		events.SignalMessagesRead,
		events.SignalResync,
	} {
		s.unsubs = append(s.unsubs, s.channel.Subscribe(sig, onSignal))
	}

	s.wg.Add(1)
	go s.loop()
	s.RequestRefetch()
}

// Close detaches from the channel and stops the refetch loop. The store
// generation is bumped so an in-flight refetch result is dropped.
func (s *Syncer) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	s.cancel()
	s.wg.Wait()
	s.persist()
	s.store.Reset()
}

// RequestRefetch schedules a refetch; pending requests coalesce into one.
func (s *Syncer) RequestRefetch() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

func (s *Syncer) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.requests:
		}
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		if err := s.Refetch(s.ctx); err != nil {
			logger.Log.Warn("refetch_failed", zap.Error(err))
		}
	}
}

// Refetch re-pulls the whole list plus unread counts and replaces local
// state with server truth. On any error the previous (possibly stale) state
// is left untouched; the next signal retries.
func (s *Syncer) Refetch(ctx context.Context) error {
	generation := s.store.Generation()

	convs, err := s.repo.ListConversations(ctx)
	if err != nil {
		return err
	}

	counts := make(map[string]int, len(convs))
	for i := range convs {
		n, err := s.repo.GetUnreadCount(ctx, convs[i].ID)
		if err != nil {
			return err
		}
		counts[convs[i].ID] = n
	}
	total, err := s.repo.GetTotalUnread(ctx)
	if err != nil {
		return err
	}

	if !s.store.ReplaceAll(generation, convs) {
		logger.Log.Debug("refetch_dropped_stale_generation")
		return nil
	}
	s.unread.ReplaceAll(counts, total)
	metrics.Refetches.Inc()
	s.persist()
	return nil
}

func (s *Syncer) warmStart() {
	if s.cache == nil {
		return
	}
	userID := s.store.ViewerID()
	if convs, ok, err := s.cache.LoadConversations(userID); err == nil && ok {
		s.store.ReplaceAll(s.store.Generation(), convs)
		logger.Log.Info("warm_start", zap.Int("conversations", len(convs)))
	}
	if counts, total, ok, err := s.cache.LoadUnread(userID); err == nil && ok {
		s.unread.ReplaceAll(counts, total)
	}
}

func (s *Syncer) persist() {
	if s.cache == nil {
		return
	}
	userID := s.store.ViewerID()
	if err := s.cache.SaveConversations(userID, s.store.List()); err != nil {
		logger.Log.Warn("cache_save_failed", zap.Error(err))
		return
	}
	counts, total := s.unread.snapshot()
	if err := s.cache.SaveUnread(userID, counts, total); err != nil {
		logger.Log.Warn("cache_save_failed", zap.Error(err))
	}
}
