package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/tui/ui"
)

// ThreadState is everything the thread view renders.
type ThreadState struct {
	Messages   []domain.Message
	HasMore    bool
	PeerTyping bool
	PeerName   string
	Lang       string
}

// MessageThread displays messages and a composer for one conversation.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	typing   *tview.TextView
	composer *tview.InputField
	onSend   func(text string)
	onKey    func()
	onBlur   func()
}

// NewMessageThread creates the thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)
	typing.SetTextColor(theme.PendingColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		typing:   typing,
		composer: composer,
	}

	composer.SetChangedFunc(func(text string) {
		if text != "" && mt.onKey != nil {
			mt.onKey()
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := strings.TrimSpace(composer.GetText())
			if text != "" && mt.onSend != nil {
				composer.SetText("")
				mt.onSend(text)
			}
		case tcell.KeyEscape, tcell.KeyTab:
			if mt.onBlur != nil {
				mt.onBlur()
			}
		}
	})
	return mt
}

func (mt *MessageThread) Name() string { return "Chat" }

func (mt *MessageThread) Start() {}

// Stop clears the composer so a draft never leaks into the next
// conversation.
func (mt *MessageThread) Stop() { mt.composer.SetText("") }

// SetConversation sets the conversation title shown on the border.
func (mt *MessageThread) SetConversation(title string) {
	mt.messages.SetTitle(fmt.Sprintf(" %s ", clean(title)))
}

// SetOnSend sets the callback for Enter in the composer.
func (mt *MessageThread) SetOnSend(fn func(text string)) { mt.onSend = fn }

// SetOnKey sets the callback for each edit of a non-empty draft.
func (mt *MessageThread) SetOnKey(fn func()) { mt.onKey = fn }

// SetOnBlur sets the callback for leaving the composer.
func (mt *MessageThread) SetOnBlur(fn func()) { mt.onBlur = fn }

// Update re-renders the thread.
func (mt *MessageThread) Update(st ThreadState) {
	mt.messages.Clear()
	var sb strings.Builder
	if st.HasMore {
		fmt.Fprintf(&sb, "[%s::d]  ↑ earlier messages (e)[-:-:-]\n\n", ui.Tag(mt.theme.PendingColor))
	}
	now := time.Now()
	for _, m := range st.Messages {
		sb.WriteString(mt.formatMessage(m, st.Lang, now))
	}
	_, _ = fmt.Fprint(mt.messages, sb.String())
	mt.messages.ScrollToEnd()

	mt.typing.Clear()
	if st.PeerTyping {
		_, _ = fmt.Fprint(mt.typing, typingLine(st.PeerName, st.Lang))
	}
}

func (mt *MessageThread) formatMessage(m domain.Message, lang string, now time.Time) string {
	sender, color := clean(m.Sender.Name()), mt.theme.PeerColor
	if m.IsOwnMessage {
		sender, color = ownLabel(lang), mt.theme.OwnColor
	}
	marker := ""
	if m.IsOwnMessage {
		marker = " " + statusGlyph(m.Status)
		switch m.Status {
		case domain.StatusSending:
			color = mt.theme.PendingColor
		case domain.StatusFailed:
			color = mt.theme.FailedColor
		}
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
		ui.Tag(color), sender, formatTimestamp(m.CreatedAt.Time, now), marker,
		clean(m.Content))
}

// Composer returns the input field for focus management.
func (mt *MessageThread) Composer() *tview.InputField { return mt.composer }

// Messages returns the scrollback for focus management.
func (mt *MessageThread) Messages() *tview.TextView { return mt.messages }

func statusGlyph(s domain.MessageStatus) string {
	switch s {
	case domain.StatusSending:
		return "…"
	case domain.StatusRead:
		return "✓✓"
	case domain.StatusFailed:
		return "! (r to retry)"
	default:
		return "✓"
	}
}

func ownLabel(lang string) string {
	if lang == "ar" {
		return "أنت"
	}
	return "You"
}

func typingLine(name, lang string) string {
	name = clean(name)
	if lang == "ar" {
		if name == "" {
			return " يكتب الآن..."
		}
		return " " + name + " يكتب الآن..."
	}
	if name == "" {
		return " typing..."
	}
	return " " + name + " is typing..."
}
