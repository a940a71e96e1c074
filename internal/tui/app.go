// Package tui is the terminal front-end. It owns no conversation state: the
// coordinator does, and the app repaints from coordinator snapshots whenever
// the bus signals a change.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/TERAMED-SA/provision-chat/internal/bus"
	"github.com/TERAMED-SA/provision-chat/internal/chat"
	"github.com/TERAMED-SA/provision-chat/internal/status"
	"github.com/TERAMED-SA/provision-chat/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	coord     *chat.Coordinator
	machine   *status.Machine
	bus       *bus.Bus
	flash     *flash
	statusBar *views.StatusBar
	peerList  *views.PeerList
	msgView   *views.MessageView
	composer  *views.Composer
	ctx       context.Context
	cancel    context.CancelFunc

	// UI-goroutine only: the message being edited, if any.
	editingID string
}

// NewApp creates the TUI application.
func NewApp(coord *chat.Coordinator, machine *status.Machine, b *bus.Bus, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		coord:     coord,
		machine:   machine,
		bus:       b,
		flash:     &flash{},
		statusBar: views.NewStatusBar(),
		peerList:  views.NewPeerList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.statusBar.SetConnState(strings.ToLower(string(machine.Current())))
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.peerList.SetSelectedFunc(func(row, col int) {
		if peerID := a.peerList.SelectedPeer(); peerID != "" {
			a.openConversation(peerID)
		}
	})

	a.composer.SetOnSend(func(text string) {
		peerID := a.coord.ActivePeer()
		if peerID == "" {
			return
		}
		editingID := a.editingID
		a.editingID = ""
		a.coord.NotifyStoppedTyping(peerID)
		go func() {
			if editingID != "" {
				_ = a.coord.UpdateMessage(a.ctx, editingID, text)
				return
			}
			_ = a.coord.SendMessage(a.ctx, text, peerID, nil)
		}()
	})

	a.composer.SetOnChange(func(text string) {
		peerID := a.coord.ActivePeer()
		if peerID == "" {
			return
		}
		if text == "" {
			a.coord.NotifyStoppedTyping(peerID)
		} else {
			a.coord.NotifyTyping(peerID)
		}
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, true).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("peers", a.peerList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "chat" {
			a.editingID = ""
			a.composer.SetText("")
			a.pages.SwitchToPage("peers")
			a.app.SetFocus(a.peerList)
			return nil
		}

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if event.Key() != tcell.KeyRune {
			return event
		}

		switch currentPage {
		case "peers":
			switch event.Rune() {
			case 'q':
				a.app.Stop()
				return nil
			case 'r':
				go a.refreshDirectory()
				return nil
			case 'a':
				a.saveSelectedContact()
				return nil
			case 'x':
				a.dropSelectedContact()
				return nil
			}
		case "chat":
			switch event.Rune() {
			case 'i':
				a.app.SetFocus(a.composer.InputField)
				return nil
			case 'd':
				a.deleteSelectedMessage()
				return nil
			case 'e':
				a.editSelectedMessage()
				return nil
			}
		}

		return event
	})
}

func (a *App) openConversation(peerID string) {
	name := peerID
	for _, p := range a.coord.Peers() {
		if p.EmployeeID == peerID && p.Name != "" {
			name = p.Name
			break
		}
	}
	a.msgView.SetPeerName(name)
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.msgView)
	go func() { _ = a.coord.OpenConversation(a.ctx, peerID) }()
}

func (a *App) refreshDirectory() {
	if err := a.coord.RefreshDirectory(a.ctx); err != nil {
		return
	}
	a.app.QueueUpdateDraw(a.redrawPeers)
}

func (a *App) saveSelectedContact() {
	peerID := a.peerList.SelectedPeer()
	if peerID == "" {
		return
	}
	for _, p := range a.coord.Peers() {
		if p.EmployeeID == peerID {
			peer := p
			go func() {
				if err := a.coord.AddContact(peer); err == nil {
					a.flash.Set("Contact saved: "+peer.Name, 3*time.Second)
				}
			}()
			return
		}
	}
}

func (a *App) dropSelectedContact() {
	peerID := a.peerList.SelectedPeer()
	if peerID == "" {
		return
	}
	go func() { _ = a.coord.RemoveContact(peerID) }()
}

func (a *App) deleteSelectedMessage() {
	msg, ok := a.msgView.SelectedMessage()
	if !ok || !msg.IsUser {
		return
	}
	go func() { _ = a.coord.DeleteMessage(a.ctx, msg.ID) }()
}

func (a *App) editSelectedMessage() {
	msg, ok := a.msgView.SelectedMessage()
	if !ok || !msg.IsUser || msg.Status == chat.StatusSending {
		return
	}
	a.editingID = msg.ID
	a.composer.SetText(msg.Content)
	a.app.SetFocus(a.composer.InputField)
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	go a.watchBus()
	go a.startClock()
	go a.refreshDirectory()

	return a.app.Run()
}

// watchBus repaints from coordinator snapshots as change events arrive.
func (a *App) watchBus() {
	events, unsub := a.bus.Subscribe("", 64)
	defer unsub()

	for {
		select {
		case evt := <-events:
			a.handleEvent(evt)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessagesChanged, bus.KindTypingChanged, bus.KindLoadingChanged:
		a.app.QueueUpdateDraw(a.redrawMessages)
	case bus.KindPeersChanged, bus.KindContactsChanged:
		a.app.QueueUpdateDraw(a.redrawPeers)
	case bus.KindConnStatusChanged:
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetConnState(strings.ToLower(string(a.machine.Current())))
		})
	case bus.KindNoticeInfo, bus.KindNoticeError:
		if n, ok := evt.Payload.(bus.Notice); ok {
			a.flash.Set(n.Text, 5*time.Second)
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.flash.Get())
			})
		}
	}
}

func (a *App) redrawMessages() {
	a.msgView.Update(a.coord.Messages(), a.coord.TypingPeers(), a.coord.Loading())
}

func (a *App) redrawPeers() {
	contactIDs := make(map[string]bool)
	for _, c := range a.coord.Contacts() {
		contactIDs[c.PeerID] = true
	}
	a.peerList.Update(a.coord.Peers(), contactIDs)
}

// startClock repaints the status bar once a second so the clock ticks and
// expired flash messages clear.
func (a *App) startClock() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.flash.Get())
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
