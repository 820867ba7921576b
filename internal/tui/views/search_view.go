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

// SearchView searches marketplace listings.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	onOpen  func(domain.Post)
	data    []domain.Post
}

// NewSearchView creates the search page.
func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{Flex: flex, theme: theme, input: input, results: results}
	input.SetDoneFunc(func(key tcell.Key) {
		q := strings.TrimSpace(input.GetText())
		if key == tcell.KeyEnter && q != "" && sv.onQuery != nil {
			sv.onQuery(q)
		}
	})
	results.SetSelectedFunc(func(row, _ int) {
		if i := row - 1; i >= 0 && i < len(sv.data) && sv.onOpen != nil {
			sv.onOpen(sv.data[i])
		}
	})
	sv.Update(nil)
	return sv
}

func (sv *SearchView) Name() string { return "Search" }
func (sv *SearchView) Start()       {}
func (sv *SearchView) Stop()        {}

// SetOnQuery sets the callback for Enter in the search field.
func (sv *SearchView) SetOnQuery(fn func(query string)) { sv.onQuery = fn }

// SetOnOpen sets the callback for Enter on a result.
func (sv *SearchView) SetOnOpen(fn func(domain.Post)) { sv.onOpen = fn }

// SetQuery fills the search field.
func (sv *SearchView) SetQuery(q string) { sv.input.SetText(q) }

// Update replaces the results.
func (sv *SearchView) Update(posts []domain.Post) {
	sv.data = posts
	sv.results.Clear()

	headers := []string{" TITLE", " PRICE", " CONDITION", " LISTED"}
	for col, h := range headers {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}
	now := time.Now()
	for i, p := range posts {
		row := i + 1
		price := ""
		if p.Price > 0 {
			price = fmt.Sprintf("%.0f", p.Price)
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+clean(p.Title)).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+price).SetAlign(tview.AlignRight).SetTextColor(sv.theme.CounterColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+clean(p.Condition)).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(p.CreatedAt.Time, now)).SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(fmt.Sprintf(" Results (%d) ", len(posts)))
}

// Input returns the search field.
func (sv *SearchView) Input() *tview.InputField { return sv.input }

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table { return sv.results }
