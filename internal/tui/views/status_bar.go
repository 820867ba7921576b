package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
	"github.com/thegamersstation/gsm/internal/status"
	"github.com/thegamersstation/gsm/internal/tui/ui"
)

// StatusBar is the bottom line: profile, live connection, cache worker
// state, clock and the current toast.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	conn    status.State
	worker  string
	flash   *ui.FlashMessage
}

// NewStatusBar creates the status bar.
func NewStatusBar(theme *ui.Theme, profile string) *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	sb := &StatusBar{TextView: tv, theme: theme, profile: profile, conn: status.Disconnected, worker: "-"}
	sb.render(time.Now())
	return sb
}

// SetConnection updates the messaging connection state.
func (sb *StatusBar) SetConnection(s status.State) {
	sb.conn = s
	sb.render(time.Now())
}

// SetWorker updates the cache worker state, "-" when no daemon answers.
func (sb *StatusBar) SetWorker(s string) {
	if s == "" {
		s = "-"
	}
	sb.worker = s
	sb.render(time.Now())
}

// SetFlash sets or clears the toast.
func (sb *StatusBar) SetFlash(f *ui.FlashMessage) {
	sb.flash = f
	sb.render(time.Now())
}

// Refresh redraws the clock.
func (sb *StatusBar) Refresh() { sb.render(time.Now()) }

func (sb *StatusBar) render(now time.Time) {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line(now))
}

func (sb *StatusBar) line(now time.Time) string {
	conn := sb.theme.OfflineColor
	switch sb.conn {
	case status.Connected:
		conn = sb.theme.OnlineColor
	case status.Connecting:
		conn = sb.theme.FlashWarnColor
	}
	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]● %s[-] | worker %s | %s",
		tview.Escape(sb.profile), ui.Tag(conn), sb.conn, sb.worker, now.Format("15:04"))
	if f := sb.flash; f != nil {
		color := sb.theme.FlashInfoColor
		switch f.Level {
		case ui.FlashWarn:
			color = sb.theme.FlashWarnColor
		case ui.FlashErr:
			color = sb.theme.FlashErrColor
		}
		line += fmt.Sprintf(" | [%s]%s[-]", ui.Tag(color), clean(f.Text))
	}
	return line
}
