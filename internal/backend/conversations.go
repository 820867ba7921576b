package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/thegamersstation/gsm/internal/domain"
	"go.uber.org/zap"
)

// Default page sizes of the chat endpoints.
const (
	DefaultConversationsPage = 20
	DefaultMessagesPage      = 20
)

// StartConversation opens a conversation about a post with a first message.
func (c *Client) StartConversation(ctx context.Context, postID domain.ID, initialMessage string) (*domain.Conversation, error) {
	var out domain.Conversation
	in := map[string]any{"postId": postID, "initialMessage": initialMessage}
	if err := c.Do(ctx, http.MethodPost, "/conversations", in, &out); err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}
	return &out, nil
}

// ListConversations returns one page of the caller's conversations.
func (c *Client) ListConversations(ctx context.Context, page, size int) (*domain.ConversationsPage, error) {
	if size <= 0 {
		size = DefaultConversationsPage
	}
	q := url.Values{"page": {strconv.Itoa(page)}, "size": {strconv.Itoa(size)}}
	var out domain.ConversationsPage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/conversations", query: q, out: &out}); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return &out, nil
}

func (c *Client) GetConversation(ctx context.Context, id domain.ID) (*domain.Conversation, error) {
	var out domain.Conversation
	if err := c.Do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id.String()), nil, &out); err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return &out, nil
}

// GetMessages returns messages older than cursor (newest page when empty),
// in chronological order.
func (c *Client) GetMessages(ctx context.Context, id domain.ID, cursor domain.ID, size int) (*domain.MessagesPage, error) {
	if size <= 0 {
		size = DefaultMessagesPage
	}
	q := url.Values{"size": {strconv.Itoa(size)}}
	if !cursor.IsZero() {
		q.Set("cursor", cursor.String())
	}
	var out domain.MessagesPage
	err := c.do(ctx, request{method: http.MethodGet, path: messagesPath(id), query: q, out: &out})
	if err != nil {
		return nil, fmt.Errorf("get messages %s: %w", id, err)
	}
	return &out, nil
}

// GetMessage returns a single message.
func (c *Client) GetMessage(ctx context.Context, id, messageID domain.ID) (*domain.Message, error) {
	var out domain.Message
	if err := c.Do(ctx, http.MethodGet, messagesPath(id)+"/"+url.PathEscape(messageID.String()), nil, &out); err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}
	return &out, nil
}

// SendMessage posts a message and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, id domain.ID, content string) (*domain.Message, error) {
	var out domain.Message
	if err := c.Do(ctx, http.MethodPost, messagesPath(id), map[string]string{"content": content}, &out); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &out, nil
}

// MarkAsRead marks every message of the conversation as read.
func (c *Client) MarkAsRead(ctx context.Context, id domain.ID) error {
	if err := c.Do(ctx, http.MethodPost, messagesPath(id)+"/read", nil, nil); err != nil {
		return fmt.Errorf("mark read %s: %w", id, err)
	}
	return nil
}

// DeleteMessage soft-deletes one of the caller's messages.
func (c *Client) DeleteMessage(ctx context.Context, id, messageID domain.ID) error {
	if err := c.Do(ctx, http.MethodDelete, messagesPath(id)+"/"+url.PathEscape(messageID.String()), nil, nil); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}

func (c *Client) Mute(ctx context.Context, id domain.ID, muted bool) error {
	return c.setFlag(ctx, id, "mute", "muted", muted)
}

func (c *Client) Archive(ctx context.Context, id domain.ID, archived bool) error {
	return c.setFlag(ctx, id, "archive", "archived", archived)
}

func (c *Client) Block(ctx context.Context, id domain.ID, blocked bool) error {
	return c.setFlag(ctx, id, "block", "blocked", blocked)
}

func (c *Client) setFlag(ctx context.Context, id domain.ID, action, param string, v bool) error {
	q := url.Values{param: {strconv.FormatBool(v)}}
	path := "/conversations/" + url.PathEscape(id.String()) + "/" + action
	if err := c.do(ctx, request{method: http.MethodPut, path: path, query: q}); err != nil {
		return fmt.Errorf("%s conversation %s: %w", action, id, err)
	}
	return nil
}

// UpdateLastSeen records that the caller looked at the conversation.
func (c *Client) UpdateLastSeen(ctx context.Context, id domain.ID) error {
	if err := c.Do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(id.String())+"/seen", nil, nil); err != nil {
		return fmt.Errorf("mark seen %s: %w", id, err)
	}
	return nil
}

// UnreadCount returns the number of conversations with unread messages.
// Failures count as zero.
func (c *Client) UnreadCount(ctx context.Context) int64 {
	p, err := c.ListConversations(ctx, 0, 1)
	if err != nil {
		c.log.Debug("unread count", zap.Error(err))
		return 0
	}
	return p.TotalUnreadConversations
}

func messagesPath(id domain.ID) string {
	return "/conversations/" + url.PathEscape(id.String()) + "/messages"
}

func decodeJSON(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
