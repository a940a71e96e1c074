package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays the session name, socket connectivity and transient
// flash messages on a single line.
type StatusBar struct {
	*tview.TextView
	session string
	conn    string
	flash   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetConnState updates the connection state display.
func (sb *StatusBar) SetConnState(state string) {
	sb.conn = state
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	connColor := "red"
	switch sb.conn {
	case "connected":
		connColor = "green"
	case "connecting", "reconnecting":
		connColor = "yellow"
	}

	clock := time.Now().Format("15:04")

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] | %s", sb.session, connColor, sb.conn, clock)
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	}

	_, _ = fmt.Fprint(sb, line)
}
