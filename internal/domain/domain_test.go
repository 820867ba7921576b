package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIDAcceptsNumberAndString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ID
	}{
		{"number", `{"id": 42}`, "42"},
		{"string", `{"id": "42"}`, "42"},
		{"null", `{"id": null}`, ""},
		{"large", `{"id": 9007199254740993}`, "9007199254740993"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				ID ID `json:"id"`
			}
			if err := json.Unmarshal([]byte(tt.in), &v); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if v.ID != tt.want {
				t.Errorf("ID = %q, want %q", v.ID, tt.want)
			}
		})
	}
}

func TestIDRejectsObject(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil {
		t.Error("Unmarshal(object) should fail")
	}
}

func TestIDMarshal(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{"12", `12`},
		{"abc", `"abc"`},
		{"", `null`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.id)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal(%q) = %s, want %s", tt.id, got, tt.want)
		}
	}
}

func TestTimeLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2024-01-15T10:30:00"`, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{`"2024-01-15T10:30:00.123456"`, time.Date(2024, 1, 15, 10, 30, 0, 123456000, time.UTC)},
		{`"2024-01-15T13:30:00+03:00"`, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		var got Time
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, got.Time, tt.want)
		}
	}

	var zero Time
	if err := json.Unmarshal([]byte(`null`), &zero); err != nil || !zero.IsZero() {
		t.Errorf("Unmarshal(null) = %v, %v", zero, err)
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &zero); err == nil {
		t.Error("Unmarshal(yesterday) should fail")
	}
}

func TestDecodeMessageDto(t *testing.T) {
	body := `{
		"id": 101, "conversationId": 7,
		"sender": {"id": 3, "username": "seller3"},
		"content": "Is the PS5 still available?",
		"messageType": "TEXT", "isRead": false, "readAt": null,
		"createdAt": "2024-01-15T10:30:00", "isOwnMessage": false, "status": "SENT"
	}`
	var m Message
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m.ID != "101" || m.ConversationID != "7" || m.Sender.ID != "3" || m.Status != StatusSent {
		t.Errorf("message = %+v", m)
	}
	if !m.ReadAt.IsZero() || m.CreatedAt.IsZero() {
		t.Errorf("times = readAt %v, createdAt %v", m.ReadAt, m.CreatedAt)
	}
}

func TestDecodeConversationsPage(t *testing.T) {
	body := `{
		"content": [{"id": 1, "post": {"id": 9, "title": "PS5 Slim"}, "unreadCount": 2,
		             "otherParticipant": {"id": 4}}],
		"page": 0, "size": 20, "totalElements": 1, "totalPages": 1,
		"first": true, "last": true, "totalUnreadConversations": 1
	}`
	var p ConversationsPage
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(p.Content) != 1 || p.TotalUnreadConversations != 1 || p.Size != 20 {
		t.Fatalf("page = %+v", p)
	}
	if got := p.Content[0].Title(); got != "PS5 Slim" {
		t.Errorf("Title() = %q, want PS5 Slim", got)
	}
	p.Content[0].Post = nil
	if got := p.Content[0].Title(); got != "user-4" {
		t.Errorf("Title() without post = %q, want user-4", got)
	}
}
