package ui

import (
	"reflect"
	"testing"
	"time"

	"github.com/rivo/tview"
	"github.com/thegamersstation/gsm/internal/bus"
)

type page struct {
	*tview.Box
	name          string
	starts, stops int
}

func newPage(name string) *page { return &page{Box: tview.NewBox(), name: name} }

func (p *page) Name() string { return p.name }
func (p *page) Start()       { p.starts++ }
func (p *page) Stop()        { p.stops++ }

func TestPagesStack(t *testing.T) {
	pages := NewPages()
	list, chat, help := newPage("Conversations"), newPage("Chat"), newPage("Help")
	for _, c := range []*page{list, chat, help} {
		pages.Register(c)
	}
	var crumbs []string
	pages.SetOnChange(func(_ Component, stack []string) { crumbs = stack })

	pages.Reset("Conversations")
	pages.Push("Chat")
	pages.Push("Chat")
	pages.Push("Help")
	if want := []string{"Conversations", "Chat", "Help"}; !reflect.DeepEqual(crumbs, want) {
		t.Fatalf("crumbs = %v, want %v", crumbs, want)
	}
	if chat.starts != 1 || chat.stops != 1 {
		t.Errorf("chat starts/stops = %d/%d, want 1/1", chat.starts, chat.stops)
	}

	if got := pages.Pop(); got != "Help" {
		t.Errorf("Pop() = %q, want Help", got)
	}
	if pages.Current() != Component(chat) || chat.starts != 2 {
		t.Errorf("after Pop current = %v, chat starts = %d", pages.Current().Name(), chat.starts)
	}
	pages.Pop()
	if got := pages.Pop(); got != "" {
		t.Errorf("Pop() on last page = %q, want empty", got)
	}

	pages.Push("Missing")
	if pages.Current().Name() != "Conversations" {
		t.Errorf("Push(unknown) changed the stack to %v", pages.Stack())
	}
}

func TestFlashExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	if f.Current() != nil {
		t.Fatal("new model has a toast")
	}
	f.Info("saved")
	if m := f.Current(); m == nil || m.Text != "saved" || m.Level != FlashInfo {
		t.Fatalf("Current() = %+v", m)
	}
	now = now.Add(5 * time.Second)
	if f.Current() != nil {
		t.Error("info toast outlived its ttl")
	}

	f.Error("boom")
	now = now.Add(7 * time.Second)
	if f.Current() == nil {
		t.Error("error toast expired early")
	}
}

func TestFlashNoticeLanguage(t *testing.T) {
	f := NewFlashModel()
	n := bus.Notice{MessageAr: "خطأ", MessageEn: "error"}
	tests := []struct {
		lang string
		n    bus.Notice
		want string
	}{
		{"ar", n, "خطأ"},
		{"en", n, "error"},
		{"ar", bus.Notice{MessageEn: "only english"}, "only english"},
	}
	for _, tt := range tests {
		f.Notice(tt.n, tt.lang)
		if m := f.Current(); m == nil || m.Text != tt.want || m.Level != FlashErr {
			t.Errorf("Notice(%s) = %+v, want %q", tt.lang, m, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "0m"},
		{42 * time.Minute, "42m"},
		{3*time.Hour + 5*time.Minute, "3h5m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTag(t *testing.T) {
	th := DefaultTheme()
	if got := Tag(th.TitleColor); got != "orange" {
		t.Errorf("Tag(orange) = %q", got)
	}
}
