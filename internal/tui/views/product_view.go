package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/tui/ui"
)

// ProductView shows a listing, its share link as a QR code and an input to
// message the seller.
type ProductView struct {
	*tview.Flex
	theme   *ui.Theme
	details *tview.TextView
	qr      *tview.TextView
	input   *tview.InputField
	origin  string
	post    domain.Post
	onSend  func(post domain.Post, text string)
}

// NewProductView creates the product page. origin is the public site the
// share links point at.
func NewProductView(theme *ui.Theme, origin string) *ProductView {
	details := tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	details.SetBorder(true)
	details.SetBorderColor(theme.BorderColor)
	details.SetBackgroundColor(theme.BgColor)
	details.SetTextColor(theme.FgColor)
	details.SetTitleColor(theme.TitleColor)

	qr := tview.NewTextView()
	qr.SetBorder(true)
	qr.SetBorderColor(theme.BorderColor)
	qr.SetBackgroundColor(theme.BgColor)
	qr.SetTextColor(theme.FgColor)
	qr.SetTitle(" Share ")
	qr.SetTitleColor(theme.TitleColor)

	input := tview.NewInputField().SetLabel(" Message seller: ").SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	top := tview.NewFlex().
		AddItem(details, 0, 1, false).
		AddItem(qr, 0, 1, false)
	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 0, 1, false).
		AddItem(input, 3, 0, true)

	pv := &ProductView{Flex: flex, theme: theme, details: details, qr: qr, input: input, origin: origin}
	input.SetDoneFunc(func(key tcell.Key) {
		text := strings.TrimSpace(input.GetText())
		if key != tcell.KeyEnter || text == "" || pv.onSend == nil || pv.post.ID.IsZero() {
			return
		}
		input.SetText("")
		pv.onSend(pv.post, text)
	})
	return pv
}

func (pv *ProductView) Name() string { return "Product" }
func (pv *ProductView) Start()       {}
func (pv *ProductView) Stop()        { pv.input.SetText("") }

// SetOnSend sets the callback for messaging the seller.
func (pv *ProductView) SetOnSend(fn func(post domain.Post, text string)) { pv.onSend = fn }

// Input returns the seller message field for focus management.
func (pv *ProductView) Input() *tview.InputField { return pv.input }

// Post returns the listing on display.
func (pv *ProductView) Post() domain.Post { return pv.post }

// ShowConversation shows the listing a conversation is about, with the
// other participant.
func (pv *ProductView) ShowConversation(c domain.Conversation) {
	post := domain.Post{Title: c.Title()}
	if c.Post != nil {
		post = *c.Post
	}
	pv.ShowPost(post)
	_, _ = fmt.Fprint(pv.details, pv.row("With", c.OtherParticipant.Name()))
	if c.OtherParticipant.CityName != "" {
		_, _ = fmt.Fprint(pv.details, pv.row("City", c.OtherParticipant.CityName))
	}
}

// ShowPost renders a listing.
func (pv *ProductView) ShowPost(p domain.Post) {
	pv.post = p
	pv.details.Clear()
	pv.details.SetTitle(fmt.Sprintf(" %s ", clean(p.Title)))
	_, _ = fmt.Fprint(pv.details, "\n"+postDetails(p, pv.row))

	pv.qr.Clear()
	if p.ID.IsZero() {
		return
	}
	link := ShareURL(pv.origin, p.ID)
	art, err := RenderQR(link)
	if err != nil {
		art = "  (QR generation failed: " + err.Error() + ")\n"
	}
	_, _ = fmt.Fprintf(pv.qr, "%s\n  %s", art, link)
}

func (pv *ProductView) row(label, value string) string {
	if value == "" {
		value = "-"
	}
	return fmt.Sprintf(" [%s::b]%-10s[-:-:-] [%s]%s[-]\n",
		ui.Tag(pv.theme.FgColor), label+":", ui.Tag(pv.theme.CounterColor), clean(value))
}

func postDetails(p domain.Post, row func(label, value string) string) string {
	var sb strings.Builder
	price := ""
	if p.Price > 0 {
		price = fmt.Sprintf("%.2f SAR", p.Price)
	}
	sb.WriteString(row("Price", price))
	sb.WriteString(row("Condition", p.Condition))
	sb.WriteString(row("Type", p.Type))
	sb.WriteString(row("Status", p.Status))
	sb.WriteString(row("Images", fmt.Sprint(len(p.Images))))
	if p.Description != "" {
		sb.WriteString("\n " + clean(p.Description) + "\n\n")
	}
	return sb.String()
}
