package ui

import (
	"sync"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashMessage is a flash notification with a level and expiry.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo: 4 * time.Second,
	FlashWarn: 6 * time.Second,
	FlashErr:  8 * time.Second,
}

// FlashModel holds the current toast. Safe for concurrent use.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
}

// NewFlashModel creates an empty flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{now: time.Now}
}

// Info sets an info-level toast.
func (f *FlashModel) Info(msg string) { f.set(msg, FlashInfo) }

// Warn sets a warn-level toast.
func (f *FlashModel) Warn(msg string) { f.set(msg, FlashWarn) }

// Error sets an error-level toast.
func (f *FlashModel) Error(msg string) { f.set(msg, FlashErr) }

// Notice shows a notify.* event payload in lang.
func (f *FlashModel) Notice(n bus.Notice, lang string) {
	text := n.MessageAr
	if lang == "en" || text == "" {
		text = n.MessageEn
	}
	f.set(text, FlashErr)
}

func (f *FlashModel) set(msg string, level FlashLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = FlashMessage{Text: msg, Level: level, Expires: f.now().Add(flashTTL[level])}
}

// Current returns the live toast, or nil once it expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || f.now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}
