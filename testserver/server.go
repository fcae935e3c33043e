// Package testserver is an in-memory stand-in for the chat backend: the
// REST surface plus the websocket signal feed, with the same role
// preconditions and system-event recording the real service applies. It
// exists so the sync engine's behavior is testable end to end without a
// database.
package testserver

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chatsync/models"
	"chatsync/session"
)

const secret = "chatsync-test-secret"

type user struct {
	ID       string
	Username string
	Nickname string
	Avatar   string
	password []byte
}

type conversation struct {
	models.Conversation
	messages []models.Message
	lastRead map[string]time.Time
}

type Server struct {
	mu       sync.Mutex
	users    map[string]*user
	byName   map[string]string
	convs    map[string]*conversation
	follows  map[string]map[string]bool
	lastTime time.Time

	hub  *hub
	http *httptest.Server
}

// Account is what tests get back when seeding a user.
type Account struct {
	ID    string
	Name  string
	Token string
}

func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		users:   make(map[string]*user),
		byName:  make(map[string]string),
		convs:   make(map[string]*conversation),
		follows: make(map[string]map[string]bool),
		hub:     newHub(),
	}
	s.http = httptest.NewServer(s.router())
	return s
}

func (s *Server) Close() {
	s.hub.closeAll()
	s.http.Close()
}

func (s *Server) URL() string { return s.http.URL }

func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
}

// DropConnections severs a user's websocket connections server-side so
// tests can exercise reconnect behavior.
func (s *Server) DropConnections(userID string) {
	s.hub.closeUser(userID)
}

// MustRegister seeds a user and returns their id and a signed token.
func (s *Server) MustRegister(username string) Account {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	u := &user{
		ID:       uuid.New().String(),
		Username: username,
		Nickname: username,
		password: hash,
	}
	s.mu.Lock()
	s.users[u.ID] = u
	s.byName[username] = u.ID
	s.mu.Unlock()

	token, err := session.GenerateToken(secret, u.ID, u.Nickname)
	if err != nil {
		panic(err)
	}
	return Account{ID: u.ID, Name: u.Nickname, Token: token}
}

// tick returns a strictly increasing timestamp so message ordering is
// deterministic even within one scheduling quantum. Callers hold s.mu.
func (s *Server) tick() time.Time {
	now := time.Now()
	if !now.After(s.lastTime) {
		now = s.lastTime.Add(time.Millisecond)
	}
	s.lastTime = now
	return now
}

func respond(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"code": status, "message": msg})
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			fail(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}
		claims, err := session.ParseToken(secret, parts[1])
		if err != nil {
			fail(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

func callerID(c *gin.Context) string { return c.GetString("user_id") }

func (s *Server) router() http.Handler {
	r := gin.New()

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", s.handleRegister)
		auth.POST("/login", s.handleLogin)
	}

	api := r.Group("/api")
	api.Use(s.auth())
	{
		api.GET("/conversations", s.handleListConversations)
		api.POST("/conversations", s.handleCreateGroup)
		api.POST("/conversations/private", s.handleEnsurePrivate)
		api.PUT("/conversations/:id", s.handleRename)
		api.DELETE("/conversations/:id", s.handleDissolve)
		api.PUT("/conversations/:id/avatar", s.handleUpdateAvatar)
		api.POST("/conversations/:id/members", s.handleAddMembers)
		api.DELETE("/conversations/:id/members/:user_id", s.handleRemoveMember)
		api.PUT("/conversations/:id/members/:user_id", s.handleUpdateMember)
		api.POST("/conversations/:id/leave", s.handleLeave)
		api.POST("/conversations/:id/read", s.handleMarkRead)
		api.POST("/conversations/:id/messages", s.handleSendMessage)
		api.DELETE("/conversations/:id/messages", s.handleDeleteHistory)
		api.GET("/conversations/:id/unread", s.handleUnread)
		api.GET("/unread", s.handleTotalUnread)

		api.POST("/follows", s.handleFollow)
		api.DELETE("/follows/:user_id", s.handleUnfollow)
		api.GET("/users/:id/followers", s.handleFollowers)
		api.GET("/users/:id/following", s.handleFollowing)
		api.GET("/users/:id/following/:other", s.handleIsFollowing)
	}

	r.GET("/ws", s.handleWebSocket)
	return r
}

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,min=3,max=50"`
		Password string `json:"password" binding:"required,min=6"`
		Nickname string `json:"nickname"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	if _, taken := s.byName[req.Username]; taken {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, "username already exists")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.mu.Unlock()
		fail(c, http.StatusInternalServerError, "failed to hash password")
		return
	}
	nickname := req.Nickname
	if nickname == "" {
		nickname = req.Username
	}
	u := &user{
		ID:       uuid.New().String(),
		Username: req.Username,
		Nickname: nickname,
		password: hash,
	}
	s.users[u.ID] = u
	s.byName[u.Username] = u.ID
	s.mu.Unlock()

	token, err := session.GenerateToken(secret, u.ID, u.Nickname)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respond(c, gin.H{"token": token, "user": gin.H{"id": u.ID, "nickname": u.Nickname}})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	id, ok := s.byName[req.Username]
	var u *user
	if ok {
		u = s.users[id]
	}
	s.mu.Unlock()

	if u == nil || bcrypt.CompareHashAndPassword(u.password, []byte(req.Password)) != nil {
		fail(c, http.StatusUnauthorized, "invalid username or password")
		return
	}
	token, err := session.GenerateToken(secret, u.ID, u.Nickname)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respond(c, gin.H{"token": token, "user": gin.H{"id": u.ID, "nickname": u.Nickname}})
}

func (s *Server) memberIDs(conv *conversation) []string {
	ids := make([]string, len(conv.Members))
	for i, m := range conv.Members {
		ids[i] = m.UserID
	}
	return ids
}

func (s *Server) userRef(id string) models.UserRef {
	if u, ok := s.users[id]; ok {
		return models.UserRef{ID: u.ID, Name: u.Nickname}
	}
	return models.UserRef{ID: id}
}

// recordSystem appends a system message as the conversation's new last
// message. Callers hold s.mu and notify members after releasing it.
func (s *Server) recordSystem(conv *conversation, actorID string, ev models.SystemEvent) {
	msg := models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       actorID,
		Type:           models.ContentSystem,
		Content:        ev,
		CreatedAt:      s.tick(),
	}
	conv.messages = append(conv.messages, msg)
	conv.LastMessage = &msg
	conv.UpdatedAt = msg.CreatedAt
}

func (s *Server) handleListConversations(c *gin.Context) {
	userID := callerID(c)

	s.mu.Lock()
	var out []models.Conversation
	for _, conv := range s.convs {
		if conv.Member(userID) != nil {
			out = append(out, *conv.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if out == nil {
		out = []models.Conversation{}
	}
	respond(c, out)
}

func (s *Server) handleCreateGroup(c *gin.Context) {
	userID := callerID(c)
	var req struct {
		Kind      models.ConversationKind `json:"kind"`
		Name      string                  `json:"name" binding:"required"`
		MemberIDs []string                `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.MemberIDs) < 2 {
		fail(c, http.StatusBadRequest, "a group needs at least two other members")
		return
	}

	s.mu.Lock()
	now := s.tick()
	conv := &conversation{
		Conversation: models.Conversation{
			ID:        uuid.New().String(),
			Kind:      models.KindGroup,
			Name:      req.Name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		lastRead: make(map[string]time.Time),
	}
	creator := s.users[userID]
	conv.Members = append(conv.Members, models.Membership{
		UserID: userID, Role: models.RoleAdmin, Name: creator.Nickname, Avatar: creator.Avatar,
	})
	var invited []models.UserRef
	for _, id := range req.MemberIDs {
		u, ok := s.users[id]
		if !ok || id == userID {
			continue
		}
		conv.Members = append(conv.Members, models.Membership{
			UserID: id, Role: models.RoleMember, Name: u.Nickname, Avatar: u.Avatar,
		})
		invited = append(invited, s.userRef(id))
	}
	s.recordSystem(conv, userID, models.SystemEvent{
		Action:  models.ActionMemberAdded,
		Actor:   s.userRef(userID),
		Targets: invited,
	})
	s.convs[conv.ID] = conv
	members := s.memberIDs(conv)
	view := conv.Clone()
	s.mu.Unlock()

	s.hub.sendToUsers(members, "notification_new_message")
	respond(c, view)
}

func (s *Server) handleEnsurePrivate(c *gin.Context) {
	userID := callerID(c)
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == userID {
		fail(c, http.StatusBadRequest, "cannot chat with yourself")
		return
	}

	s.mu.Lock()
	other, ok := s.users[req.UserID]
	if !ok {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	for _, conv := range s.convs {
		if conv.Kind == models.KindPrivate && conv.Member(userID) != nil && conv.Member(req.UserID) != nil {
			view := conv.Clone()
			s.mu.Unlock()
			respond(c, view)
			return
		}
	}
	now := s.tick()
	me := s.users[userID]
	conv := &conversation{
		Conversation: models.Conversation{
			ID:   uuid.New().String(),
			Kind: models.KindPrivate,
			Members: []models.Membership{
				{UserID: userID, Role: models.RoleMember, Name: me.Nickname, Avatar: me.Avatar},
				{UserID: other.ID, Role: models.RoleMember, Name: other.Nickname, Avatar: other.Avatar},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		lastRead: make(map[string]time.Time),
	}
	s.convs[conv.ID] = conv
	view := conv.Clone()
	s.mu.Unlock()

	respond(c, view)
}

// withGroup runs fn on a group conversation under the lock, after checking
// the caller's role against minRole. fn returns the ids to notify.
func (s *Server) withGroup(c *gin.Context, minRole models.Role, fn func(conv *conversation, callerRole models.Role) ([]string, bool)) {
	userID := callerID(c)
	convID := c.Param("id")

	s.mu.Lock()
	conv, ok := s.convs[convID]
	if !ok {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "conversation not found")
		return
	}
	role, isMember := conv.RoleOf(userID)
	if !isMember {
		s.mu.Unlock()
		fail(c, http.StatusForbidden, "not a member of this conversation")
		return
	}
	if conv.Kind != models.KindGroup {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, "not a group conversation")
		return
	}
	if minRole == models.RoleAdmin && role != models.RoleAdmin {
		s.mu.Unlock()
		fail(c, http.StatusForbidden, "admin required")
		return
	}
	notifyIDs, ok := fn(conv, role)
	s.mu.Unlock()

	if !ok {
		return
	}
	if len(notifyIDs) > 0 {
		s.hub.sendToUsers(notifyIDs, "notification_new_message")
	}
	respond(c, nil)
}

func (s *Server) handleRename(c *gin.Context) {
	userID := callerID(c)
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		fail(c, http.StatusBadRequest, "name must not be empty")
		return
	}
	s.withGroup(c, models.RoleMember, func(conv *conversation, _ models.Role) ([]string, bool) {
		conv.Name = name
		s.recordSystem(conv, userID, models.SystemEvent{
			Action:  models.ActionRenamed,
			Actor:   s.userRef(userID),
			NewName: name,
		})
		return s.memberIDs(conv), true
	})
}

func (s *Server) handleUpdateAvatar(c *gin.Context) {
	userID := callerID(c)
	var req struct {
		Image string `json:"image" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	convID := c.Param("id")
	s.mu.Lock()
	conv, ok := s.convs[convID]
	if !ok {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Member(userID) == nil {
		s.mu.Unlock()
		fail(c, http.StatusForbidden, "not a member of this conversation")
		return
	}
	conv.Avatar = req.Image
	s.recordSystem(conv, userID, models.SystemEvent{
		Action: models.ActionAvatarUpdated,
		Actor:  s.userRef(userID),
	})
	members := s.memberIDs(conv)
	s.mu.Unlock()

	s.hub.sendToUsers(members, "notification_new_message")
	respond(c, gin.H{"avatar": req.Image})
}

func (s *Server) handleAddMembers(c *gin.Context) {
	userID := callerID(c)
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	s.withGroup(c, models.RoleMember, func(conv *conversation, _ models.Role) ([]string, bool) {
		var added []models.UserRef
		for _, id := range req.UserIDs {
			u, known := s.users[id]
			if !known || conv.Member(id) != nil {
				continue
			}
			conv.Members = append(conv.Members, models.Membership{
				UserID: id, Role: models.RoleMember, Name: u.Nickname, Avatar: u.Avatar,
			})
			added = append(added, s.userRef(id))
		}
		if len(added) > 0 {
			s.recordSystem(conv, userID, models.SystemEvent{
				Action:  models.ActionMemberAdded,
				Actor:   s.userRef(userID),
				Targets: added,
			})
		}
		return s.memberIDs(conv), true
	})
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	userID := callerID(c)
	targetID := c.Param("user_id")
	if targetID == userID {
		fail(c, http.StatusBadRequest, "use leave to remove yourself")
		return
	}
	var notFound bool
	s.withGroup(c, models.RoleAdmin, func(conv *conversation, _ models.Role) ([]string, bool) {
		if conv.Member(targetID) == nil {
			notFound = true
			return nil, false
		}
		// notify the removed member too, so their list refreshes
		notify := s.memberIDs(conv)
		conv.RemoveMember(targetID)
		s.recordSystem(conv, userID, models.SystemEvent{
			Action:  models.ActionMemberRemoved,
			Actor:   s.userRef(userID),
			Targets: []models.UserRef{s.userRef(targetID)},
		})
		return notify, true
	})
	if notFound {
		fail(c, http.StatusNotFound, "member not found")
	}
}

func (s *Server) handleUpdateMember(c *gin.Context) {
	userID := callerID(c)
	targetID := c.Param("user_id")
	var req struct {
		Role models.Role `json:"role" binding:"required,oneof=admin member"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	var notFound, soleAdmin bool
	s.withGroup(c, models.RoleAdmin, func(conv *conversation, _ models.Role) ([]string, bool) {
		m := conv.Member(targetID)
		if m == nil {
			notFound = true
			return nil, false
		}
		if req.Role == models.RoleMember && m.Role == models.RoleAdmin && conv.AdminCount() == 1 {
			soleAdmin = true
			return nil, false
		}
		m.Role = req.Role
		if req.Role == models.RoleAdmin {
			s.recordSystem(conv, userID, models.SystemEvent{
				Action:  models.ActionAdminGranted,
				Actor:   s.userRef(userID),
				Targets: []models.UserRef{s.userRef(targetID)},
			})
		}
		return s.memberIDs(conv), true
	})
	if notFound {
		fail(c, http.StatusNotFound, "member not found")
	}
	if soleAdmin {
		fail(c, http.StatusBadRequest, "cannot demote the only admin")
	}
}

func (s *Server) handleLeave(c *gin.Context) {
	userID := callerID(c)
	var blocked bool
	s.withGroup(c, models.RoleMember, func(conv *conversation, role models.Role) ([]string, bool) {
		if role == models.RoleAdmin && conv.AdminCount() == 1 && len(conv.Members) > 1 {
			blocked = true
			return nil, false
		}
		notify := s.memberIDs(conv)
		conv.RemoveMember(userID)
		if len(conv.Members) == 0 {
			delete(s.convs, conv.ID)
			return notify, true
		}
		s.recordSystem(conv, userID, models.SystemEvent{
			Action: models.ActionUserLeft,
			Actor:  s.userRef(userID),
		})
		return notify, true
	})
	if blocked {
		fail(c, http.StatusForbidden, "transfer admin before leaving")
	}
}

func (s *Server) handleDissolve(c *gin.Context) {
	s.withGroup(c, models.RoleAdmin, func(conv *conversation, _ models.Role) ([]string, bool) {
		notify := s.memberIDs(conv)
		delete(s.convs, conv.ID)
		return notify, true
	})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	userID := callerID(c)
	convID := c.Param("id")

	s.mu.Lock()
	conv, ok := s.convs[convID]
	if !ok {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Member(userID) == nil {
		s.mu.Unlock()
		fail(c, http.StatusForbidden, "not a member of this conversation")
		return
	}
	conv.lastRead[userID] = s.tick()
	s.mu.Unlock()

	s.hub.sendToUsers([]string{userID}, "notification_messages_read")
	respond(c, nil)
}

func (s *Server) handleSendMessage(c *gin.Context) {
	userID := callerID(c)
	convID := c.Param("id")
	var req struct {
		Type    models.ContentType `json:"type" binding:"required"`
		Content map[string]any     `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	var content models.Content
	switch req.Type {
	case models.ContentText:
		text, _ := req.Content["text"].(string)
		content = models.TextContent{Text: text}
	case models.ContentImage:
		url, _ := req.Content["url"].(string)
		content = models.ImageContent{URL: url}
	case models.ContentFile:
		url, _ := req.Content["url"].(string)
		name, _ := req.Content["name"].(string)
		content = models.FileContent{URL: url, Name: name}
	default:
		fail(c, http.StatusBadRequest, "unsupported message type")
		return
	}

	s.mu.Lock()
	conv, ok := s.convs[convID]
	if !ok {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Member(userID) == nil {
		s.mu.Unlock()
		fail(c, http.StatusForbidden, "not a member of this conversation")
		return
	}
	msg := models.Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		SenderID:       userID,
		Type:           req.Type,
		Content:        content,
		CreatedAt:      s.tick(),
	}
	conv.messages = append(conv.messages, msg)
	conv.LastMessage = &msg
	conv.UpdatedAt = msg.CreatedAt
	members := s.memberIDs(conv)
	s.mu.Unlock()

	s.hub.sendToUsers(members, "notification_new_message")
	respond(c, gin.H{"message_id": msg.ID})
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	userID := callerID(c)
	convID := c.Param("id")

	s.mu.Lock()
	conv, ok := s.convs[convID]
	if !ok {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Member(userID) == nil {
		s.mu.Unlock()
		fail(c, http.StatusForbidden, "not a member of this conversation")
		return
	}
	conv.messages = nil
	conv.LastMessage = nil
	members := s.memberIDs(conv)
	s.mu.Unlock()

	s.hub.sendToUsers(members, "notification_new_message")
	respond(c, nil)
}

// unreadLocked counts messages newer than the user's last-read marker,
// excluding the user's own. Callers hold s.mu.
func (s *Server) unreadLocked(conv *conversation, userID string) int {
	marker := conv.lastRead[userID]
	n := 0
	for i := range conv.messages {
		if conv.messages[i].SenderID == userID {
			continue
		}
		if conv.messages[i].CreatedAt.After(marker) {
			n++
		}
	}
	return n
}

func (s *Server) handleUnread(c *gin.Context) {
	userID := callerID(c)
	convID := c.Param("id")

	s.mu.Lock()
	conv, ok := s.convs[convID]
	if !ok {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Member(userID) == nil {
		s.mu.Unlock()
		fail(c, http.StatusForbidden, "not a member of this conversation")
		return
	}
	n := s.unreadLocked(conv, userID)
	s.mu.Unlock()

	respond(c, gin.H{"count": n})
}

func (s *Server) handleTotalUnread(c *gin.Context) {
	userID := callerID(c)

	s.mu.Lock()
	total := 0
	for _, conv := range s.convs {
		if conv.Member(userID) != nil {
			total += s.unreadLocked(conv, userID)
		}
	}
	s.mu.Unlock()

	respond(c, gin.H{"count": total})
}

func (s *Server) handleFollow(c *gin.Context) {
	userID := callerID(c)
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == userID {
		fail(c, http.StatusBadRequest, "cannot follow yourself")
		return
	}

	s.mu.Lock()
	if _, ok := s.users[req.UserID]; !ok {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	if s.follows[userID] == nil {
		s.follows[userID] = make(map[string]bool)
	}
	s.follows[userID][req.UserID] = true
	s.mu.Unlock()

	respond(c, nil)
}

func (s *Server) handleUnfollow(c *gin.Context) {
	userID := callerID(c)
	targetID := c.Param("user_id")

	s.mu.Lock()
	delete(s.follows[userID], targetID)
	s.mu.Unlock()

	respond(c, nil)
}

func (s *Server) handleFollowers(c *gin.Context) {
	targetID := c.Param("id")

	s.mu.Lock()
	var out []models.UserRef
	for follower, followees := range s.follows {
		if followees[targetID] {
			out = append(out, s.userRef(follower))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if out == nil {
		out = []models.UserRef{}
	}
	respond(c, out)
}

func (s *Server) handleFollowing(c *gin.Context) {
	targetID := c.Param("id")

	s.mu.Lock()
	var out []models.UserRef
	for followee := range s.follows[targetID] {
		out = append(out, s.userRef(followee))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if out == nil {
		out = []models.UserRef{}
	}
	respond(c, out)
}

func (s *Server) handleIsFollowing(c *gin.Context) {
	followerID := c.Param("id")
	followeeID := c.Param("other")

	s.mu.Lock()
	following := s.follows[followerID][followeeID]
	s.mu.Unlock()

	respond(c, gin.H{"following": following})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	token := c.Query("token")
	claims, err := session.ParseToken(secret, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := &client{userID: claims.UserID, conn: conn, send: make(chan []byte, 64)}
	s.hub.register(cl)
	go cl.writePump()
	go cl.readPump(s.hub)
}
