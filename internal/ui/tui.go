// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the intent channel back to the game
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// IntentKind is a player request raised by a key press
type IntentKind int

const (
	IntentBuzz IntentKind = iota
	IntentReveal
	IntentJudge
	IntentNext
	IntentRetry
	IntentStart
	IntentEnd
	IntentKick
	IntentVolume
)

// Intent is a key press translated for the game
type Intent struct {
	Kind IntentKind
	// Correct is the verdict of IntentJudge
	Correct bool
	// Target is the player id of IntentKick
	Target string
	// Volume is the level of IntentVolume, 0 when muted
	Volume float64
}

// Controls holds channels from the TUI back to the game
type Controls struct {
	Intents chan Intent
	Quit    chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Intents: make(chan Intent, 10),
		Quit:    make(chan struct{}, 1),
	}
}

func (c *Controls) send(i Intent) {
	if c == nil {
		return
	}
	select {
	case c.Intents <- i:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model. volume is the starting level in [0, 1].
func NewModel(mode Mode, volume float64, controls *Controls) Model {
	return Model{
		mode:     mode,
		volume:   int(volume*100 + 0.5),
		controls: controls,
		room:     RoomView{Connected: true},
	}
}

// Run creates the program for a model; the caller starts it
func Run(model Model) *tea.Program {
	return tea.NewProgram(model, tea.WithAltScreen())
}
