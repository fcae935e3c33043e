package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"chatsync/cache"
	"chatsync/config"
	"chatsync/events"
	"chatsync/follow"
	"chatsync/logger"
	"chatsync/repository"
	"chatsync/session"
	"chatsync/store"
	"chatsync/sysmsg"
)

func main() {
	config.Load()

	if err := logger.Init(config.Cfg.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if config.Cfg.Token == "" {
		logger.Log.Fatal("CHATSYNC_TOKEN is required")
	}
	sess, err := session.New(config.Cfg.Token)
	if err != nil {
		logger.Log.Fatal("invalid token", zap.Error(err))
	}

	repo := repository.NewClient(config.Cfg.ServerURL, sess.Token)

	c, err := cache.Open(config.Cfg.CacheDir)
	if err != nil {
		logger.Log.Fatal("failed to open cache", zap.Error(err))
	}
	defer c.Close()

	socket := events.NewSocket(config.Cfg.SocketURL, sess.Token)
	if err := socket.Open(); err != nil {
		logger.Log.Fatal("failed to connect event channel", zap.Error(err))
	}
	defer socket.Close()

	listStore := store.NewConversationListStore(sess.UserID)
	unread := store.NewUnreadCounter(repo)
	syncer := store.NewSyncer(repo, listStore, unread, socket, c)

	follows := follow.NewController(repo, sess.UserID)
	if err := follows.Load(context.Background()); err != nil {
		logger.Log.Warn("failed to load follow graph", zap.Error(err))
	}

	unsubscribe := listStore.Subscribe(func() {
		for _, conv := range listStore.List() {
			preview := ""
			if conv.LastMessage != nil {
				if ev, ok := conv.LastMessage.SystemEvent(); ok {
					preview = sysmsg.Render(ev, sess.UserID)
				}
			}
			logger.Log.Info("conversation",
				zap.String("id", conv.ID),
				zap.String("name", conv.DisplayName(sess.UserID)),
				zap.Int("unread", unread.Count(conv.ID)),
				zap.String("preview", preview))
		}
	})
	defer unsubscribe()

	syncer.Start()
	defer syncer.Close()

	logger.Log.Info("chatsync running", zap.String("user_id", sess.UserID))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down")
}
