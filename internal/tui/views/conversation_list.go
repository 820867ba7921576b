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

// ConversationList is the inbox table.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []domain.Conversation
	visible []domain.Conversation
	filter  string
	onOpen  func(domain.Conversation)
	onEnd   func()
}

// NewConversationList creates the inbox table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ConversationList{Table: table, theme: theme}
	table.SetSelectedFunc(func(row, _ int) {
		if c, ok := cl.at(row - 1); ok && cl.onOpen != nil {
			cl.onOpen(c)
		}
	})
	table.SetSelectionChangedFunc(func(row, _ int) {
		if row == len(cl.visible) && cl.onEnd != nil && cl.filter == "" {
			cl.onEnd()
		}
	})
	cl.render()
	return cl
}

func (cl *ConversationList) Name() string { return "Conversations" }
func (cl *ConversationList) Start()       {}
func (cl *ConversationList) Stop()        {}

// SetOnOpen sets the callback for Enter on a row.
func (cl *ConversationList) SetOnOpen(fn func(domain.Conversation)) { cl.onOpen = fn }

// SetOnEnd sets the callback fired when the cursor reaches the last row,
// used to load the next inbox page.
func (cl *ConversationList) SetOnEnd(fn func()) { cl.onEnd = fn }

// Update replaces the rows, keeping the cursor on the same conversation
// when it is still listed.
func (cl *ConversationList) Update(convs []domain.Conversation) {
	selected, hadSelection := cl.Selected()
	cl.convs = convs
	cl.render()
	if !hadSelection {
		return
	}
	for i, c := range cl.visible {
		if c.ID == selected.ID {
			cl.Select(i+1, 0)
			return
		}
	}
}

// SetFilter narrows the rows to titles, names and previews containing the
// filter text.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() { cl.SetFilter("") }

func (cl *ConversationList) render() {
	cl.Clear()
	headers := []struct {
		text string
		exp  int
	}{
		{" TITLE", 1},
		{" WITH", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	cl.visible = filterConversations(cl.convs, cl.filter)
	for i, c := range cl.visible {
		row := i + 1
		title := " " + clean(c.Title())
		color := cl.theme.FgColor
		if c.UnreadCount > 0 {
			title = fmt.Sprintf(" (%d)%s", c.UnreadCount, title)
			color = cl.theme.UnreadColor
		}
		cl.SetCell(row, 0, tview.NewTableCell(title).SetExpansion(1).SetTextColor(color))
		cl.SetCell(row, 1, tview.NewTableCell(" "+clean(c.OtherParticipant.Name())).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(" "+clean(c.LastMessagePreview)).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 3, tview.NewTableCell(formatTimestamp(c.LastMessageAt.Time, time.Now())).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// Selected returns the conversation under the cursor.
func (cl *ConversationList) Selected() (domain.Conversation, bool) {
	row, _ := cl.GetSelection()
	return cl.at(row - 1)
}

// ByIndex returns the nth visible conversation, counting from 1.
func (cl *ConversationList) ByIndex(n int) (domain.Conversation, bool) {
	return cl.at(n - 1)
}

func (cl *ConversationList) at(i int) (domain.Conversation, bool) {
	if i < 0 || i >= len(cl.visible) {
		return domain.Conversation{}, false
	}
	return cl.visible[i], true
}

func filterConversations(convs []domain.Conversation, filter string) []domain.Conversation {
	if filter == "" {
		return convs
	}
	needle := strings.ToLower(filter)
	var out []domain.Conversation
	for _, c := range convs {
		for _, field := range []string{c.Title(), c.OtherParticipant.Name(), c.LastMessagePreview} {
			if strings.Contains(strings.ToLower(field), needle) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// formatTimestamp shows the clock time for today, the date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
