package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	"github.com/thegamersstation/gsm/internal/tui/ui"
)

// HelpView is the key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates the help page.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv, theme: theme}
	hv.render()
	return hv
}

func (hv *HelpView) Name() string { return "Help" }
func (hv *HelpView) Start()       {}
func (hv *HelpView) Stop()        {}

var helpSections = []struct {
	title string
	keys  [][2]string
}{
	{"Global", [][2]string{
		{":", "Command mode"},
		{"/", "Filter mode"},
		{"Esc", "Cancel / go back"},
		{"?", "Help"},
		{"q", "Quit / back"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Conversations", [][2]string{
		{"Enter", "Open conversation"},
		{"1-9", "Jump to Nth conversation"},
		{"0", "Clear filter"},
		{"m", "Load more"},
		{"p", "Product details"},
		{"S", "Search listings"},
	}},
	{"Chat", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send (in composer)"},
		{"e", "Load earlier messages"},
		{"r", "Retry last failed message"},
		{"p", "Product details"},
		{"Esc", "Leave composer / back"},
	}},
	{"Commands", [][2]string{
		{":chat <n|name>", "Open a conversation"},
		{":search <query>", "Search listings"},
		{":share", "QR code of the product link"},
		{":sync", "Replay queued requests"},
		{":lang ar|en", "Switch language"},
		{":logout", "Sign out"},
		{":help, :h", "Show this help"},
		{":quit, :q", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	var sb strings.Builder
	for _, sec := range helpSections {
		fmt.Fprintf(&sb, "\n  [::b]%s[-:-:-]\n\n", sec.title)
		for _, k := range sec.keys {
			fmt.Fprintf(&sb, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(k[0]), k[1])
		}
	}
	_, _ = fmt.Fprint(hv, sb.String())
}
