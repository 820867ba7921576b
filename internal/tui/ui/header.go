package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// ProfileData is what the header shows about the running profile.
type ProfileData struct {
	Profile string
	Phone   string
	Lang    string
	Unread  int64
	Uptime  time.Duration
}

// Header is the top band: logo, profile info and the key hints of the
// current page, with the breadcrumb trail underneath.
type Header struct {
	*tview.Flex
	theme  *Theme
	info   *tview.TextView
	menu   *tview.TextView
	crumbs *tview.TextView
}

// NewHeader creates the header.
func NewHeader(theme *Theme) *Header {
	text := func() *tview.TextView {
		tv := tview.NewTextView().SetDynamicColors(true)
		tv.SetBackgroundColor(theme.BgColor)
		return tv
	}
	logo, info, menu, crumbs := text(), text(), text(), text()
	logo.SetBorderPadding(0, 0, 1, 1)
	info.SetBorderPadding(0, 0, 1, 1)
	menu.SetBorderPadding(0, 0, 2, 0)

	_, _ = fmt.Fprintf(logo,
		"[%[1]s::b]╔═╗╔═╗╔╦╗[-:-:-]\n[%[1]s::b]║ ╦╚═╗║║║[-:-:-]\n[%[1]s::b]╚═╝╚═╝╩ ╩[-:-:-]\n[%[2]s]GamersStation[-]",
		Tag(theme.TitleColor), Tag(theme.FgColor))

	top := tview.NewFlex().
		AddItem(info, 0, 2, false).
		AddItem(menu, 0, 3, false).
		AddItem(logo, 16, 0, false)
	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 4, 0, false).
		AddItem(crumbs, 1, 0, false)

	return &Header{Flex: flex, theme: theme, info: info, menu: menu, crumbs: crumbs}
}

// SetProfile renders the profile panel.
func (h *Header) SetProfile(d ProfileData) {
	h.info.Clear()
	fg, ct := Tag(h.theme.FgColor), Tag(h.theme.CounterColor)
	phone := d.Phone
	if phone == "" {
		phone = "-"
	}
	row := func(label, value string) string {
		return fmt.Sprintf("[%s::b]%-8s[-:-:-] [%s]%s[-]", fg, label, ct, tview.Escape(value))
	}
	_, _ = fmt.Fprint(h.info, strings.Join([]string{
		row("Profile:", d.Profile),
		row("Phone:", phone),
		row("Unread:", fmt.Sprint(d.Unread)),
		row("Lang:", d.Lang) + "  " + row("Up:", formatUptime(d.Uptime)),
	}, "\n"))
}

// SetHints renders the key hints in two columns.
func (h *Header) SetHints(hints []MenuHint) {
	h.menu.Clear()
	kc := Tag(h.theme.MenuKeyColor)
	var cells []string
	for _, hint := range hints {
		cells = append(cells, fmt.Sprintf("[%s::b]<%s>[-:-:-] %-14s", kc, hint.Key, hint.Description))
	}
	var lines []string
	half := (len(cells) + 1) / 2
	for i := 0; i < half; i++ {
		line := cells[i]
		if j := i + half; j < len(cells) {
			line += cells[j]
		}
		lines = append(lines, line)
	}
	_, _ = fmt.Fprint(h.menu, strings.Join(lines, "\n"))
}

// SetCrumbs renders the page stack, the last entry highlighted.
func (h *Header) SetCrumbs(stack []string) {
	h.crumbs.Clear()
	parts := make([]string, len(stack))
	for i, name := range stack {
		if i == len(stack)-1 {
			parts[i] = fmt.Sprintf("[%s:%s:b] %s [-:-:-]", Tag(h.theme.CrumbActiveFg), Tag(h.theme.CrumbActiveBg), name)
		} else {
			parts[i] = fmt.Sprintf("[%s::] %s [-:-:-]", Tag(h.theme.CrumbInactiveFg), name)
		}
	}
	_, _ = fmt.Fprint(h.crumbs, " "+strings.Join(parts, " › "))
}

func formatUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
