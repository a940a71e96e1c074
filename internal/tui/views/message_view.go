package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/TERAMED-SA/provision-chat/internal/chat"
)

// MessageView renders the open conversation as a selectable table so
// individual messages can be targeted for delete and edit.
type MessageView struct {
	*tview.Table
	messages   []chat.Message
	peerName   string
	selectedFn func() (int, int)
}

// NewMessageView creates a new conversation view.
func NewMessageView() *MessageView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Messages ")

	mv := &MessageView{Table: table}
	mv.selectedFn = table.GetSelection
	return mv
}

// SetPeerName updates the view title.
func (mv *MessageView) SetPeerName(name string) {
	mv.peerName = name
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update refreshes the thread. typing lists peers currently composing and
// loading indicates a history fetch still in flight.
func (mv *MessageView) Update(msgs []chat.Message, typing []string, loading bool) {
	mv.messages = msgs
	mv.Clear()

	if loading {
		mv.SetCell(0, 0, tview.NewTableCell(" loading...").SetSelectable(false))
		return
	}

	for i, m := range msgs {
		sender := m.Sender
		if m.IsUser {
			sender = "You"
		} else if mv.peerName != "" {
			sender = mv.peerName
		}

		content := m.Content
		if m.Attachment != nil {
			label := m.Attachment.Name
			if label == "" {
				label = m.Attachment.URL
			}
			if content != "" {
				content += " "
			}
			content += "[" + label + "]"
		}

		line := fmt.Sprintf(" [::d]%s[-:-:-] [::b]%s[-:-:-]: %s",
			formatTimestamp(m.Timestamp),
			tview.Escape(sanitizeForTerminal(sender)),
			tview.Escape(sanitizeForTerminal(content)))

		mv.SetCell(i, 0, tview.NewTableCell(line).SetExpansion(1))
		mv.SetCell(i, 1, tview.NewTableCell(statusMarker(m)).SetMaxWidth(10))
	}

	if len(typing) > 0 {
		who := mv.peerName
		if who == "" {
			who = typing[0]
		}
		mv.SetCell(len(msgs), 0, tview.NewTableCell(fmt.Sprintf(" [::d]%s is typing...[-:-:-]", tview.Escape(who))).SetSelectable(false))
	}

	if len(msgs) > 0 {
		mv.Select(len(msgs)-1, 0)
		mv.ScrollToEnd()
	}
}

// SelectedMessage returns the message under the cursor.
func (mv *MessageView) SelectedMessage() (chat.Message, bool) {
	row, _ := mv.selectedFn()
	if row >= 0 && row < len(mv.messages) {
		return mv.messages[row], true
	}
	return chat.Message{}, false
}

// statusMarker renders the delivery lifecycle of own messages. Peer
// messages carry no marker.
func statusMarker(m chat.Message) string {
	if !m.IsUser {
		return ""
	}
	switch m.Status {
	case chat.StatusSending:
		return "[::d]...[-:-:-]"
	case chat.StatusSent:
		return "v"
	case chat.StatusDelivered:
		return "vv"
	case chat.StatusRead:
		return "[blue]vv[-]"
	case chat.StatusFailed:
		return "[red]failed[-]"
	default:
		return ""
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
