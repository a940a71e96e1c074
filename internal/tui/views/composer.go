package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for writing messages. It reports keystrokes so
// the app can relay typing signals to the peer.
type Composer struct {
	*tview.InputField
	onSend   func(text string)
	onChange func(text string)
}

// NewComposer creates a new message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.onSend != nil {
			c.onSend(c.GetText())
			c.SetText("")
		}
	})
	input.SetChangedFunc(func(text string) {
		if c.onChange != nil {
			c.onChange(text)
		}
	})

	return c
}

// SetOnSend sets the callback when a message is submitted.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetOnChange sets the callback for every edit of the input text.
func (c *Composer) SetOnChange(fn func(text string)) {
	c.onChange = fn
}
