// Package tui is the gsmtui terminal chat client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thegamersstation/gsm/internal/apperr"
	"github.com/thegamersstation/gsm/internal/backend"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/chat"
	"github.com/thegamersstation/gsm/internal/domain"
	"github.com/thegamersstation/gsm/internal/messaging"
	"github.com/thegamersstation/gsm/internal/status"
	intsync "github.com/thegamersstation/gsm/internal/sync"
	"github.com/thegamersstation/gsm/internal/tui/client"
	"github.com/thegamersstation/gsm/internal/tui/keys"
	"github.com/thegamersstation/gsm/internal/tui/model"
	"github.com/thegamersstation/gsm/internal/tui/ui"
	"github.com/thegamersstation/gsm/internal/tui/views"
	"go.uber.org/zap"
)

const (
	pageLogin         = "Login"
	pageConversations = "Conversations"
	pageChat          = "Chat"
	pageProduct       = "Product"
	pageSearch        = "Search"
	pageHelp          = "Help"
)

// Deps are the collaborators gsmtui wires together.
type Deps struct {
	Profile string
	// Origin is the public site share links point at.
	Origin     string
	Lang       string
	Bus        *bus.Bus
	Backend    *backend.Client
	Transport  *messaging.Client
	Mirror     *intsync.Engine
	Reconciler *intsync.Reconciler
	// Daemon is the gsmd connection, nil when running without one.
	Daemon    *client.Client
	Logger    *zap.Logger
	InboxSize int
	Chat      chat.Options
}

// App is the main TUI application shell.
type App struct {
	deps     Deps
	app      *tview.Application
	theme    *ui.Theme
	root     *tview.Flex
	pages    *ui.Pages
	header   *ui.Header
	prompt   *ui.Prompt
	flash    *ui.FlashModel
	registry *keys.Registry
	vm       *model.ViewModel
	feed     *feed
	log      *zap.Logger

	login     *views.LoginView
	convs     *views.ConversationList
	thread    *views.MessageThread
	product   *views.ProductView
	search    *views.SearchView
	help      *views.HelpView
	statusBar *views.StatusBar

	promptShown bool
	started     time.Time
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(d Deps) *App {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	a := &App{
		deps:      d,
		app:       tview.NewApplication(),
		theme:     theme,
		pages:     ui.NewPages(),
		header:    ui.NewHeader(theme),
		prompt:    ui.NewPrompt(theme),
		flash:     ui.NewFlashModel(),
		registry:  keys.NewRegistry(),
		log:       d.Logger.Named("tui"),
		login:     views.NewLoginView(theme),
		convs:     views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		product:   views.NewProductView(theme, d.Origin),
		search:    views.NewSearchView(theme),
		help:      views.NewHelpView(theme),
		statusBar: views.NewStatusBar(theme, d.Profile),
		started:   time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.feed = newFeed(d.Transport)
	a.vm = model.New(d.Backend, a.feed, d.Bus, a.log, model.Options{
		Lang:      d.Lang,
		InboxSize: d.InboxSize,
		Chat:      d.Chat,
	}, a.changed)

	for _, c := range []ui.Component{a.login, a.convs, a.thread, a.product, a.search, a.help} {
		a.pages.Register(c)
	}
	a.pages.SetOnChange(func(top ui.Component, stack []string) {
		a.header.SetHints(a.registry.Hints(top.Name()))
		a.header.SetCrumbs(stack)
		a.app.SetFocus(top)
	})

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	r := a.registry
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: ':', Description: "Command", Handler: func() { a.showPrompt(ui.PromptCommand) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: '?', Description: "Help", Handler: func() { a.pages.Push(pageHelp) }})
	r.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit/Back", Handler: a.quitOrBack})
	r.AddGlobal(&keys.Action{Key: tcell.KeyEscape, Description: "Back", Hidden: true, Handler: a.back})

	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyEnter, Description: "Open", Handler: a.openSelected})
	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: '/', Description: "Filter", Handler: func() { a.showPrompt(ui.PromptFilter) }})
	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: 'm', Description: "More", Handler: a.loadMore})
	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: 'p', Description: "Product", Handler: a.showSelectedProduct})
	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: 'S', Description: "Search", Handler: func() { a.pages.Push(pageSearch) }})
	r.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: '0', Description: "All", Hidden: true, Handler: a.convs.ClearFilter})
	for n := 1; n <= 9; n++ {
		r.AddView(pageConversations, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n), Label: "1-9", Description: "Jump", Hidden: n > 1,
			Handler: func() {
				if c, ok := a.convs.ByIndex(n); ok {
					a.openConversation(c.ID)
				}
			},
		})
	}

	r.AddView(pageChat, &keys.Action{Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Handler: func() { a.app.SetFocus(a.thread.Composer()) }})
	r.AddView(pageChat, &keys.Action{Key: tcell.KeyRune, Rune: 'e', Description: "Earlier", Handler: a.loadEarlier})
	r.AddView(pageChat, &keys.Action{Key: tcell.KeyRune, Rune: 'r', Description: "Retry", Handler: a.retry})
	r.AddView(pageChat, &keys.Action{Key: tcell.KeyRune, Rune: 'p', Description: "Product", Handler: a.showActiveProduct})

	r.AddView(pageProduct, &keys.Action{Key: tcell.KeyRune, Rune: 'i', Description: "Message", Handler: func() { a.app.SetFocus(a.product.Input()) }})
	r.AddView(pageSearch, &keys.Action{Key: tcell.KeyRune, Rune: 'i', Description: "Query", Handler: func() { a.app.SetFocus(a.search.Input()) }})
}

func (a *App) setupCallbacks() {
	a.login.SetOnRequest(func(phone string) {
		a.goAsync(func(ctx context.Context) {
			normalized, err := a.vm.RequestCode(ctx, phone)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.login.ShowError(a.localize(err))
					return
				}
				a.login.CodeStep(normalized)
			})
		})
	})
	a.login.SetOnVerify(func(phone, code string) {
		a.goAsync(func(ctx context.Context) {
			if err := a.vm.Verify(ctx, phone, code); err != nil {
				a.app.QueueUpdateDraw(func() { a.login.ShowError(a.localize(err)) })
				return
			}
			a.app.QueueUpdateDraw(func() { a.pages.Reset(pageConversations) })
			a.goOnline(ctx)
		})
	})

	a.convs.SetOnOpen(func(c domain.Conversation) { a.openConversation(c.ID) })
	a.convs.SetOnEnd(a.loadMore)

	a.thread.SetOnSend(func(text string) {
		a.goAsync(func(ctx context.Context) {
			if err := a.vm.Send(ctx, text); err != nil {
				a.showError(chat.Banner(err, a.vm.Lang()))
			}
		})
	})
	a.thread.SetOnKey(func() {
		if c := a.vm.Active(); c != nil {
			c.Keystroke()
		}
	})
	a.thread.SetOnBlur(func() {
		if c := a.vm.Active(); c != nil {
			c.Blur()
		}
		a.app.SetFocus(a.thread.Messages())
	})

	a.product.SetOnSend(func(post domain.Post, text string) {
		a.goAsync(func(ctx context.Context) {
			c, err := a.vm.StartConversation(ctx, post.ID, text)
			if err != nil {
				a.showError(a.localize(err))
				return
			}
			a.app.QueueUpdateDraw(func() { a.showChat(c) })
		})
	})

	a.search.SetOnQuery(func(q string) {
		a.goAsync(func(ctx context.Context) {
			posts, err := a.vm.Search(ctx, q)
			if err != nil {
				a.showError(a.localize(err))
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.search.Update(posts)
				a.app.SetFocus(a.search.Results())
			})
		})
	})
	a.search.SetOnOpen(func(p domain.Post) {
		a.product.ShowPost(p)
		a.pages.Push(pageProduct)
	})

	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if mode == ui.PromptFilter {
			a.convs.SetFilter(text)
		}
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptCommand {
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.convs.ClearFilter()
		}
		a.hidePrompt()
	})
}

func (a *App) setupLayout() {
	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, 5, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)
	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.capture)
}

func (a *App) capture(ev *tcell.EventKey) *tcell.EventKey {
	if a.promptShown {
		return ev
	}
	top := a.pages.Current()
	if top == nil {
		return ev
	}
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		if ev.Key() == tcell.KeyEscape && (top.Name() == pageProduct || top.Name() == pageSearch) {
			a.back()
			return nil
		}
		return ev
	}
	if a.registry.HandleEvent(top.Name(), ev) {
		return nil
	}
	return ev
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if mode == ui.PromptFilter && a.pages.Current().Name() != pageConversations {
		return
	}
	a.prompt.Activate(mode)
	a.promptShown = true
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.promptShown = false
	a.root.ResizeItem(a.prompt, 0, 0)
	if top := a.pages.Current(); top != nil {
		a.app.SetFocus(top)
	}
}

func (a *App) back() {
	if a.pages.Current().Name() == pageChat {
		a.vm.CloseChat()
	}
	a.pages.Pop()
}

func (a *App) quitOrBack() {
	if len(a.pages.Stack()) > 1 {
		a.back()
		return
	}
	a.Stop()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.pages.Push(pageHelp)
	case "chat":
		a.chatCommand(cmd.Args)
	case "search":
		a.pages.Push(pageSearch)
		if cmd.Args != "" {
			a.search.SetQuery(cmd.Args)
			a.runSearch(cmd.Args)
		}
	case "share":
		a.showActiveProduct()
	case "sync":
		a.syncCommand()
	case "lang":
		if cmd.Args == "" {
			a.flash.Warn("usage: :lang ar|en")
			a.changed()
			return
		}
		a.vm.SetLang(apperr.MatchLanguage(cmd.Args))
	case "logout":
		a.goAsync(func(context.Context) {
			if err := a.vm.Logout(); err != nil {
				a.showError(a.localize(err))
			}
		})
	default:
		a.flash.Warn("unknown command: " + cmd.Name)
		a.changed()
	}
}

func (a *App) runSearch(q string) {
	a.goAsync(func(ctx context.Context) {
		posts, err := a.vm.Search(ctx, q)
		if err != nil {
			a.showError(a.localize(err))
			return
		}
		a.app.QueueUpdateDraw(func() { a.search.Update(posts) })
	})
}

func (a *App) chatCommand(arg string) {
	if n, err := strconv.Atoi(arg); err == nil {
		if c, ok := a.convs.ByIndex(n); ok {
			a.openConversation(c.ID)
			return
		}
	}
	needle := strings.ToLower(arg)
	for _, c := range a.vm.Conversations() {
		if needle != "" && (strings.Contains(strings.ToLower(c.Title()), needle) ||
			strings.Contains(strings.ToLower(c.OtherParticipant.Name()), needle)) {
			a.openConversation(c.ID)
			return
		}
	}
	a.flash.Warn("no conversation matches " + arg)
	a.changed()
}

func (a *App) syncCommand() {
	if a.deps.Daemon == nil {
		a.flash.Warn("gsmd is not running")
		a.changed()
		return
	}
	a.goAsync(func(ctx context.Context) {
		replayed, failed, err := a.deps.Daemon.Sync(ctx)
		if err != nil {
			a.showError(err.Error())
			return
		}
		a.flash.Info(fmt.Sprintf("replayed %d, failed %d", replayed, failed))
		a.changed()
	})
}

func (a *App) openSelected() {
	if c, ok := a.convs.Selected(); ok {
		a.openConversation(c.ID)
	}
}

func (a *App) openConversation(id domain.ID) {
	a.goAsync(func(ctx context.Context) {
		c, err := a.vm.Open(ctx, id)
		if err != nil {
			if errors.Is(err, chat.ErrLoginRequired) {
				a.app.QueueUpdateDraw(func() { a.pages.Reset(pageLogin) })
			}
			a.showError(chat.Banner(err, a.vm.Lang()))
			return
		}
		a.app.QueueUpdateDraw(func() { a.showChat(c) })
	})
}

func (a *App) showChat(c *chat.Controller) {
	if conv, ok := a.conversation(c.ConversationID()); ok {
		a.thread.SetConversation(conv.Title())
	}
	a.refresh()
	if a.pages.Current().Name() == pageProduct {
		a.pages.Pop()
	}
	a.pages.Push(pageChat)
}

func (a *App) conversation(id domain.ID) (domain.Conversation, bool) {
	for _, c := range a.vm.Conversations() {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Conversation{}, false
}

func (a *App) showSelectedProduct() {
	if c, ok := a.convs.Selected(); ok {
		a.product.ShowConversation(c)
		a.pages.Push(pageProduct)
	}
}

func (a *App) showActiveProduct() {
	if c := a.vm.Active(); c != nil {
		if conv, ok := a.conversation(c.ConversationID()); ok {
			a.product.ShowConversation(conv)
			a.pages.Push(pageProduct)
			return
		}
	}
	if a.pages.Current().Name() == pageConversations {
		a.showSelectedProduct()
	}
}

func (a *App) loadMore() {
	a.goAsync(func(ctx context.Context) {
		if _, err := a.vm.LoadMoreInbox(ctx); err != nil {
			a.showError(a.localize(err))
		}
	})
}

func (a *App) loadEarlier() {
	c := a.vm.Active()
	if c == nil || !c.HasMore() {
		return
	}
	a.goAsync(func(ctx context.Context) {
		if _, err := c.LoadEarlier(ctx); err != nil {
			a.showError(a.localize(err))
		}
	})
}

func (a *App) retry() {
	a.goAsync(func(ctx context.Context) {
		if err := a.vm.RetryLast(ctx); err != nil {
			a.showError(chat.Banner(err, a.vm.Lang()))
		}
	})
}

// changed is the view model's change hook. It may run on any goroutine.
func (a *App) changed() {
	if a.ctx.Err() != nil {
		return
	}
	a.app.QueueUpdateDraw(a.refresh)
}

// refresh copies view model state into the widgets. UI goroutine only.
func (a *App) refresh() {
	lang := a.vm.Lang()
	a.convs.Update(a.vm.Conversations())
	if c := a.vm.Active(); c != nil {
		peer := ""
		if conv, ok := a.conversation(c.ConversationID()); ok {
			peer = conv.OtherParticipant.Name()
		}
		a.thread.Update(views.ThreadState{
			Messages:   c.Messages(),
			HasMore:    c.HasMore(),
			PeerTyping: c.PeerTyping(),
			PeerName:   peer,
			Lang:       lang,
		})
	}
	phone := ""
	if u := a.vm.User(); u != nil {
		phone = u.PhoneNumber
	}
	a.header.SetProfile(ui.ProfileData{
		Profile: a.deps.Profile,
		Phone:   phone,
		Lang:    lang,
		Unread:  a.vm.TotalUnread(),
		Uptime:  time.Since(a.started),
	})
	a.statusBar.SetConnection(a.vm.Connection())
	a.statusBar.SetWorker(a.vm.Worker())
	a.statusBar.SetFlash(a.flash.Current())
}

func (a *App) showError(msg string) {
	a.flash.Error(msg)
	a.changed()
}

func (a *App) localize(err error) string {
	if errors.Is(err, model.ErrInvalidPhone) {
		return apperr.Lookup(apperr.ValidationError).In(a.vm.Lang())
	}
	return messaging.Localize(err, a.vm.Lang())
}

func (a *App) goAsync(fn func(ctx context.Context)) {
	go fn(a.ctx)
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	if a.deps.Mirror != nil {
		a.deps.Mirror.Start(a.ctx)
		defer a.deps.Mirror.Stop()
	}
	unwatch := a.deps.Transport.OnConnectionChange(func(connected bool) {
		if connected {
			a.goAsync(func(ctx context.Context) {
				if err := a.feed.Start(ctx); err != nil {
					a.log.Debug("feed subscribe", zap.Error(err))
				}
			})
		}
	})
	defer unwatch()
	release, _ := a.feed.SubscribeToMessages(a.ctx, a.vm.Pushed)
	defer release()

	go a.watchBus()
	go a.watchWorker()
	go a.tick()

	if a.vm.LoggedIn() {
		a.pages.Reset(pageConversations)
		a.goAsync(a.goOnline)
	} else {
		a.pages.Reset(pageLogin)
	}
	a.refresh()

	err := a.app.Run()
	a.cancel()
	a.feed.Stop()
	a.deps.Transport.Disconnect()
	return err
}

// goOnline loads the inbox, connects the live transport and refreshes the
// offline mirror.
func (a *App) goOnline(ctx context.Context) {
	if err := a.vm.LoadInbox(ctx); err != nil {
		a.showError(a.localize(err))
	}
	if err := a.feed.Start(ctx); err != nil {
		a.log.Warn("live updates unavailable", zap.Error(err))
		a.flash.Warn(messaging.Localize(err, a.vm.Lang()))
		a.changed()
	}
	if a.deps.Reconciler != nil {
		n, err := a.deps.Reconciler.Reconcile(ctx)
		if err != nil {
			a.log.Warn("mirror reconcile failed", zap.Error(err))
			return
		}
		a.log.Debug("mirror reconciled", zap.Int("conversations", n))
	}
}

func (a *App) watchBus() {
	ch, unsub := a.deps.Bus.Subscribe("", 256)
	defer unsub()
	for {
		select {
		case <-a.ctx.Done():
			return
		case evt := <-ch:
			a.handleEvent(evt)
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessagingStatus:
		if sc, ok := evt.Payload.(status.StatusChange); ok {
			a.vm.SetConnection(sc.To)
		}
	case bus.KindNotifyError:
		if n, ok := evt.Payload.(bus.Notice); ok {
			a.flash.Notice(n, a.vm.Lang())
			a.changed()
		}
	case bus.KindAuthLogout:
		a.feed.Stop()
		a.deps.Transport.Disconnect()
		a.vm.CloseChat()
		a.app.QueueUpdateDraw(func() { a.pages.Reset(pageLogin) })
	}
}

// watchWorker follows the daemon's cache worker state. Without a daemon the
// status bar shows "-".
func (a *App) watchWorker() {
	d := a.deps.Daemon
	if d == nil {
		return
	}
	poll := func() {
		ctx, cancel := context.WithTimeout(a.ctx, 2*time.Second)
		defer cancel()
		st, err := d.Status(ctx)
		if err != nil {
			a.vm.SetWorker("")
			return
		}
		a.vm.SetWorker(st.State)
	}
	poll()
	events, err := d.WatchEvents(a.ctx, "worker.")
	if err != nil {
		a.log.Debug("watch worker events", zap.Error(err))
		return
	}
	for range events {
		poll()
	}
	a.vm.SetWorker("")
}

// tick redraws the clock and expires toasts.
func (a *App) tick() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-t.C:
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.flash.Current())
			})
		}
	}
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
