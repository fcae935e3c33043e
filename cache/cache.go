package cache

import (
	"encoding/json"
	"errors"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"chatsync/logger"
	"chatsync/models"
)

// Cache persists the last-known conversation list and unread counts so a
// restarted client can render something immediately while the first refetch
// is in flight. Contents are advisory; server truth always replaces them.
type Cache struct {
	db *pebble.DB
}

func Open(path string) (*Cache, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("cache_open_failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func convKey(userID string) []byte   { return []byte("conv|" + userID) }
func unreadKey(userID string) []byte { return []byte("unread|" + userID) }

func (c *Cache) set(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.db.Set(key, data, pebble.NoSync)
}

func (c *Cache) get(key []byte, out interface{}) (bool, error) {
	data, closer, err := c.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) SaveConversations(userID string, convs []models.Conversation) error {
	return c.set(convKey(userID), convs)
}

func (c *Cache) LoadConversations(userID string) ([]models.Conversation, bool, error) {
	var convs []models.Conversation
	ok, err := c.get(convKey(userID), &convs)
	return convs, ok, err
}

type unreadSnapshot struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

func (c *Cache) SaveUnread(userID string, counts map[string]int, total int) error {
	return c.set(unreadKey(userID), unreadSnapshot{Counts: counts, Total: total})
}

func (c *Cache) LoadUnread(userID string) (map[string]int, int, bool, error) {
	var snap unreadSnapshot
	ok, err := c.get(unreadKey(userID), &snap)
	return snap.Counts, snap.Total, ok, err
}
