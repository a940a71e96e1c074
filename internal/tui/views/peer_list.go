package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/TERAMED-SA/provision-chat/internal/chat"
)

// PeerList is the main supervisor table. Saved contacts are marked and
// unread counters render next to the name.
type PeerList struct {
	*tview.Table
	peers      []chat.Peer
	selectedFn func() (int, int)
}

// NewPeerList creates a new supervisor list table.
func NewPeerList() *PeerList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Supervisors ")

	pl := &PeerList{Table: table}
	pl.selectedFn = table.GetSelection
	return pl
}

// Update refreshes the table. contactIDs marks which peers are saved
// contacts.
func (pl *PeerList) Update(peers []chat.Peer, contactIDs map[string]bool) {
	pl.peers = peers
	pl.Clear()

	pl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	pl.SetCell(0, 1, tview.NewTableCell(" Company").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	pl.SetCell(0, 2, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	pl.SetCell(0, 3, tview.NewTableCell(" Status").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, p := range peers {
		row := i + 1
		name := p.Name
		if name == "" {
			name = p.EmployeeID
		}
		if contactIDs[p.EmployeeID] {
			name = "* " + name
		}
		if p.Unread > 0 {
			name = fmt.Sprintf("%s (%d)", name, p.Unread)
		}

		presence := p.Presence
		if presence == "online" {
			presence = "[green]online[-]"
		}

		pl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetMaxWidth(30).SetExpansion(1))
		pl.SetCell(row, 1, tview.NewTableCell(" "+p.CompanyID).SetMaxWidth(12))
		pl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(p.LastPreview))).SetMaxWidth(40).SetExpansion(2))
		pl.SetCell(row, 3, tview.NewTableCell(" "+presence).SetMaxWidth(14))
	}
}

// SelectedPeer returns the employee ID of the currently selected row.
func (pl *PeerList) SelectedPeer() string {
	row, _ := pl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(pl.peers) {
		return pl.peers[idx].EmployeeID
	}
	return ""
}
