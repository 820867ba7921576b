package views

import (
	"strings"
	"testing"
	"time"

	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/status"
	"github.com/thegamersstation/gsm/internal/tui/ui"
)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "PS5 Slim", "PS5 Slim"},
		{"arabic", "السلام عليكم", "السلام عليكم"},
		{"skin tone", "👍🏽", "👍"},
		{"zwj family", "👨‍👩", "👨👩"},
		{"variation selector", "❤️", "❤"},
		{"control", "a\tb\x07c", "abc"},
		{"newline kept", "a\nb", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeForTerminal(tt.in); got != tt.want {
				t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanEscapesTags(t *testing.T) {
	if got := clean("[red]hi"); got != "[red[]hi" {
		t.Errorf("clean() = %q", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Time{}, ""},
		{time.Date(2024, 3, 10, 9, 5, 0, 0, time.UTC), "09:05"},
		{time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC), "03/09"},
	}
	for _, tt := range tests {
		if got := formatTimestamp(tt.in, now); got != tt.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFilterConversations(t *testing.T) {
	convs := []domain.Conversation{
		{ID: "1", Post: &domain.Post{Title: "PS5 Slim"}, OtherParticipant: domain.PublicUser{Username: "seller"}},
		{ID: "2", Post: &domain.Post{Title: "Xbox"}, LastMessagePreview: "Is it still available?"},
		{ID: "3", OtherParticipant: domain.PublicUser{ID: "9"}},
	}
	tests := []struct {
		filter string
		want   []domain.ID
	}{
		{"", []domain.ID{"1", "2", "3"}},
		{"ps5", []domain.ID{"1"}},
		{"SELLER", []domain.ID{"1"}},
		{"available", []domain.ID{"2"}},
		{"user-9", []domain.ID{"3"}},
		{"switch", nil},
	}
	for _, tt := range tests {
		got := filterConversations(convs, tt.filter)
		var ids []domain.ID
		for _, c := range got {
			ids = append(ids, c.ID)
		}
		if strings.Join(idStrings(ids), ",") != strings.Join(idStrings(tt.want), ",") {
			t.Errorf("filter %q = %v, want %v", tt.filter, ids, tt.want)
		}
	}
}

func idStrings(ids []domain.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func TestConversationListSelection(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update([]domain.Conversation{
		{ID: "1", Post: &domain.Post{Title: "PS5"}},
		{ID: "2", Post: &domain.Post{Title: "Xbox"}},
	})
	if c, ok := cl.ByIndex(2); !ok || c.ID != "2" {
		t.Errorf("ByIndex(2) = %v, %v", c.ID, ok)
	}
	if _, ok := cl.ByIndex(3); ok {
		t.Error("ByIndex(3) should miss")
	}
	cl.Select(2, 0)
	cl.Update([]domain.Conversation{
		{ID: "2", Post: &domain.Post{Title: "Xbox"}},
		{ID: "1", Post: &domain.Post{Title: "PS5"}},
	})
	if c, ok := cl.Selected(); !ok || c.ID != "2" {
		t.Errorf("Selected() after reorder = %v, %v, want 2", c.ID, ok)
	}
}

func TestFormatMessage(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	at := domain.At(time.Date(2024, 3, 10, 17, 30, 0, 0, time.UTC))
	tests := []struct {
		name string
		msg  domain.Message
		lang string
		has  []string
	}{
		{"peer", domain.Message{Sender: domain.PublicUser{Username: "ali"}, Content: "hello", CreatedAt: at}, "en", []string{"ali", "hello", "17:30"}},
		{"own sending", domain.Message{IsOwnMessage: true, Content: "hi", Status: domain.StatusSending}, "en", []string{"You", "…"}},
		{"own read ar", domain.Message{IsOwnMessage: true, Content: "hi", Status: domain.StatusRead}, "ar", []string{"أنت", "✓✓"}},
		{"own failed", domain.Message{IsOwnMessage: true, Content: "hi", Status: domain.StatusFailed}, "en", []string{"! (r to retry)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mt.formatMessage(tt.msg, tt.lang, now)
			for _, want := range tt.has {
				if !strings.Contains(got, want) {
					t.Errorf("formatMessage() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestTypingLine(t *testing.T) {
	if got := typingLine("ali", "en"); got != " ali is typing..." {
		t.Errorf("typingLine(en) = %q", got)
	}
	if got := typingLine("", "ar"); got != " يكتب الآن..." {
		t.Errorf("typingLine(ar) = %q", got)
	}
}

func TestShareURL(t *testing.T) {
	if got := ShareURL("https://gamersstation.sa/", "42"); got != "https://gamersstation.sa/product/42" {
		t.Errorf("ShareURL() = %q", got)
	}
}

func TestRenderQR(t *testing.T) {
	art, err := RenderQR("https://gamersstation.sa/product/42")
	if err != nil {
		t.Fatalf("RenderQR() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(art, "\n"), "\n")
	if len(lines) < 10 || !strings.ContainsAny(art, "█▀▄") {
		t.Errorf("RenderQR() produced %d lines", len(lines))
	}
}

func TestStatusBarLine(t *testing.T) {
	sb := NewStatusBar(ui.DefaultTheme(), "main")
	sb.SetConnection(status.Connected)
	sb.SetWorker("ACTIVE")
	sb.SetFlash(&ui.FlashMessage{Text: "sent", Level: ui.FlashInfo})
	got := sb.line(time.Date(2024, 3, 10, 8, 15, 0, 0, time.UTC))
	for _, want := range []string{"main", "CONNECTED", "worker ACTIVE", "08:15", "sent"} {
		if !strings.Contains(got, want) {
			t.Errorf("line() = %q, missing %q", got, want)
		}
	}
}

func TestPostDetails(t *testing.T) {
	row := func(label, value string) string { return label + "=" + value + "\n" }
	got := postDetails(domain.Post{Price: 1500, Condition: "USED", Images: []string{"a", "b"}}, row)
	for _, want := range []string{"Price=1500.00 SAR", "Condition=USED", "Images=2"} {
		if !strings.Contains(got, want) {
			t.Errorf("postDetails() = %q, missing %q", got, want)
		}
	}
}
