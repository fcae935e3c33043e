package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"chatsync/logger"
	"chatsync/models"
)

// Client talks to the backend's REST surface. Responses arrive in the
// standard envelope {"code": ..., "message": ..., "data": ...}.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ Repository = (*Client)(nil)

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    http.DefaultClient,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return Transient(op, "encode request", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Transient(op, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Log.Warn("repository_call_failed",
			zap.String("op", op), zap.Error(err))
		return Transient(op, "request failed", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 400 {
		return Transient(op, "decode response", err)
	}

	if resp.StatusCode >= 400 {
		return statusError(op, resp.StatusCode, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return Transient(op, "decode payload", err)
		}
	}
	return nil
}

func statusError(op string, status int, msg string) *Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound:
		return newError(KindNotFound, op, msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(KindAuthorization, op, msg, nil)
	case status == http.StatusBadRequest:
		return newError(KindValidation, op, msg, nil)
	default:
		return Transient(op, msg, fmt.Errorf("status %d", status))
	}
}

func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := c.do(ctx, "list_conversations", http.MethodGet, "/api/conversations", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

type countPayload struct {
	Count int `json:"count"`
}

func (c *Client) GetUnreadCount(ctx context.Context, conversationID string) (int, error) {
	var p countPayload
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/unread"
	if err := c.do(ctx, "get_unread_count", http.MethodGet, path, nil, &p); err != nil {
		return 0, err
	}
	return p.Count, nil
}

func (c *Client) GetTotalUnread(ctx context.Context) (int, error) {
	var p countPayload
	if err := c.do(ctx, "get_total_unread", http.MethodGet, "/api/unread", nil, &p); err != nil {
		return 0, err
	}
	return p.Count, nil
}

func (c *Client) CreateConversation(ctx context.Context, p CreateConversationParams) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, "create_conversation", http.MethodPost, "/api/conversations", p, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) EnsurePrivate(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	var conv models.Conversation
	body := map[string]string{"user_id": otherUserID}
	if err := c.do(ctx, "ensure_private", http.MethodPost, "/api/conversations/private", body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) RenameGroup(ctx context.Context, conversationID, name string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, "rename_group", http.MethodPut, path, map[string]string{"name": name}, nil)
}

func (c *Client) UpdateGroupAvatar(ctx context.Context, conversationID, image string) (string, error) {
	var p struct {
		Avatar string `json:"avatar"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/avatar"
	if err := c.do(ctx, "update_group_avatar", http.MethodPut, path, map[string]string{"image": image}, &p); err != nil {
		return "", err
	}
	return p.Avatar, nil
}

func (c *Client) AddMembers(ctx context.Context, conversationID string, userIDs []string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/members"
	return c.do(ctx, "add_members", http.MethodPost, path, map[string][]string{"user_ids": userIDs}, nil)
}

func (c *Client) RemoveMember(ctx context.Context, conversationID, userID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/members/" + url.PathEscape(userID)
	return c.do(ctx, "remove_member", http.MethodDelete, path, nil, nil)
}

func (c *Client) GrantAdmin(ctx context.Context, conversationID, userID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/members/" + url.PathEscape(userID)
	return c.do(ctx, "grant_admin", http.MethodPut, path, map[string]string{"role": string(models.RoleAdmin)}, nil)
}

func (c *Client) LeaveGroup(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/leave"
	return c.do(ctx, "leave_group", http.MethodPost, path, nil, nil)
}

func (c *Client) DissolveGroup(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, "dissolve_group", http.MethodDelete, path, nil, nil)
}

func (c *Client) DeleteHistory(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	return c.do(ctx, "delete_history", http.MethodDelete, path, nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, "mark_read", http.MethodPost, path, nil, nil)
}

func (c *Client) FollowUser(ctx context.Context, followeeID string) error {
	return c.do(ctx, "follow_user", http.MethodPost, "/api/follows", map[string]string{"user_id": followeeID}, nil)
}

func (c *Client) UnfollowUser(ctx context.Context, followeeID string) error {
	return c.do(ctx, "unfollow_user", http.MethodDelete, "/api/follows/"+url.PathEscape(followeeID), nil, nil)
}

func (c *Client) GetFollowers(ctx context.Context, userID string) ([]models.UserRef, error) {
	var users []models.UserRef
	path := "/api/users/" + url.PathEscape(userID) + "/followers"
	if err := c.do(ctx, "get_followers", http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) GetFollowing(ctx context.Context, userID string) ([]models.UserRef, error) {
	var users []models.UserRef
	path := "/api/users/" + url.PathEscape(userID) + "/following"
	if err := c.do(ctx, "get_following", http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var p struct {
		Following bool `json:"following"`
	}
	path := "/api/users/" + url.PathEscape(followerID) + "/following/" + url.PathEscape(followeeID)
	if err := c.do(ctx, "is_following", http.MethodGet, path, nil, &p); err != nil {
		return false, err
	}
	return p.Following, nil
}
