package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type ContentType string

const (
	ContentText   ContentType = "text"
	ContentImage  ContentType = "image"
	ContentFile   ContentType = "file"
	ContentSystem ContentType = "system"
)

// Content is the closed set of message payloads. The wire shape is
// {"type": ..., "content": {...}}; payloads are decoded into their concrete
// variant at the repository boundary so nothing downstream has to re-check
// loosely typed fields.
type Content interface {
	contentType() ContentType
}

type TextContent struct {
	Text     string   `json:"text"`
	Mentions []string `json:"mentions,omitempty"`
}

type ImageContent struct {
	URL       string `json:"url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Size      int64  `json:"size"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type FileContent struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type SystemAction string

const (
	ActionUserJoined    SystemAction = "user_joined"
	ActionUserLeft      SystemAction = "user_left"
	ActionRenamed       SystemAction = "conversation_renamed"
	ActionMemberAdded   SystemAction = "member_added"
	ActionMemberRemoved SystemAction = "member_removed"
	ActionAdminGranted  SystemAction = "admin_transferred"
	ActionAvatarUpdated SystemAction = "conversation_avatar_updated"
)

type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SystemEvent describes a group lifecycle change. Every membership or
// metadata mutation records exactly one as the conversation's new last
// message, so list views observe the change without loading history.
type SystemEvent struct {
	Action  SystemAction `json:"action"`
	Actor   UserRef      `json:"actor"`
	Targets []UserRef    `json:"targets,omitempty"`
	NewName string       `json:"new_name,omitempty"`
}

func (TextContent) contentType() ContentType  { return ContentText }
func (ImageContent) contentType() ContentType { return ContentImage }
func (FileContent) contentType() ContentType  { return ContentFile }
func (SystemEvent) contentType() ContentType  { return ContentSystem }

type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Type           ContentType
	Content        Content
	CreatedAt      time.Time
}

type messageWire struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	Type           ContentType     `json:"type"`
	Content        json.RawMessage `json:"content"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageWire{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Type:           m.Type,
		Content:        raw,
		CreatedAt:      m.CreatedAt,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	content, err := DecodeContent(w.Type, w.Content)
	if err != nil {
		return err
	}
	m.ID = w.ID
	m.ConversationID = w.ConversationID
	m.SenderID = w.SenderID
	m.Type = w.Type
	m.Content = content
	m.CreatedAt = w.CreatedAt
	return nil
}

// DecodeContent decodes a raw payload into its concrete variant. Unknown
// content types are rejected rather than carried around as opaque blobs.
func DecodeContent(t ContentType, raw json.RawMessage) (Content, error) {
	switch t {
	case ContentText:
		var c TextContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ContentImage:
		var c ImageContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ContentFile:
		var c FileContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ContentSystem:
		var c SystemEvent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown message content type %q", t)
	}
}

// SystemEvent returns the payload when the message is a system message.
func (m *Message) SystemEvent() (SystemEvent, bool) {
	ev, ok := m.Content.(SystemEvent)
	return ev, ok
}

func (m *Message) clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	switch v := m.Content.(type) {
	case SystemEvent:
		if len(v.Targets) > 0 {
			targets := make([]UserRef, len(v.Targets))
			copy(targets, v.Targets)
			v.Targets = targets
			cp.Content = v
		}
	case TextContent:
		if len(v.Mentions) > 0 {
			mentions := make([]string, len(v.Mentions))
			copy(mentions, v.Mentions)
			v.Mentions = mentions
			cp.Content = v
		}
	}
	return &cp
}
