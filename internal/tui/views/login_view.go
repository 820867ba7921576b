package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/thegamersstation/gsm/internal/tui/ui"
)

// LoginView runs the two step OTP login: phone number, then the code sent
// by SMS.
type LoginView struct {
	*tview.Flex
	theme    *ui.Theme
	form     *tview.Form
	message  *tview.TextView
	phone    string
	onReq    func(phone string)
	onVerify func(phone, code string)
}

// NewLoginView creates the login page.
func NewLoginView(theme *ui.Theme) *LoginView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetTitle(" Sign in to GamersStation ")
	form.SetTitleColor(theme.TitleColor)
	form.SetFieldBackgroundColor(theme.BgColor)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.TableCursorBg)
	form.SetButtonTextColor(theme.TableCursorFg)

	message := tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)
	message.SetTextColor(theme.FgColor)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(form, 9, 0, true).
		AddItem(message, 0, 1, false)

	lv := &LoginView{Flex: flex, theme: theme, form: form, message: message}
	lv.phoneStep()
	return lv
}

func (lv *LoginView) Name() string { return "Login" }

// Start resets the form to the phone step.
func (lv *LoginView) Start() { lv.phoneStep() }

func (lv *LoginView) Stop() {}

// SetOnRequest sets the callback for submitting the phone number.
func (lv *LoginView) SetOnRequest(fn func(phone string)) { lv.onReq = fn }

// SetOnVerify sets the callback for submitting the code.
func (lv *LoginView) SetOnVerify(fn func(phone, code string)) { lv.onVerify = fn }

func (lv *LoginView) phoneStep() {
	lv.form.Clear(true)
	lv.form.AddInputField("Phone", lv.phone, 20, nil, nil)
	lv.form.AddButton("Send code", func() {
		phone := lv.form.GetFormItemByLabel("Phone").(*tview.InputField).GetText()
		if lv.onReq != nil {
			lv.onReq(phone)
		}
	})
	lv.form.SetFocus(0)
	lv.ShowMessage("Enter your Saudi mobile number, e.g. 05XXXXXXXX")
}

// CodeStep switches to code entry for the normalized phone.
func (lv *LoginView) CodeStep(phone string) {
	lv.phone = phone
	lv.form.Clear(true)
	lv.form.AddInputField("Code", "", 8, tview.InputFieldInteger, nil)
	lv.form.AddButton("Verify", func() {
		code := lv.form.GetFormItemByLabel("Code").(*tview.InputField).GetText()
		if lv.onVerify != nil {
			lv.onVerify(lv.phone, code)
		}
	})
	lv.form.AddButton("Back", lv.phoneStep)
	lv.form.SetFocus(0)
	lv.ShowMessage(fmt.Sprintf("Code sent to [%s]%s[-]", ui.Tag(lv.theme.CounterColor), tview.Escape(phone)))
}

// ShowMessage displays a status line under the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "\n%s", msg)
}

// ShowError displays an error line under the form.
func (lv *LoginView) ShowError(msg string) {
	lv.ShowMessage(fmt.Sprintf("[%s]%s[-]", ui.Tag(lv.theme.FlashErrColor), tview.Escape(msg)))
}
