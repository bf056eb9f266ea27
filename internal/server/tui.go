// ABOUTME: Server TUI for displaying rooms, players and stats
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{} // Signal to stop the server
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name        string
	Port        int
	Songs       int
	Connections int
	Rooms       []RoomInfo
}

// RoomInfo holds room information for display
type RoomInfo struct {
	Code    string
	Status  string
	Round   int
	Phase   string
	Players []PlayerInfo
}

// PlayerInfo holds one player line
type PlayerInfo struct {
	Nickname string
	Avatar   string
	Score    int
	Online   bool
	Host     bool
}

// tuiModel is the bubbletea model for server TUI
type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{} // Channel to signal server stop
}

type tickMsg time.Time
type statusMsg ServerStatus

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			// Signal the server to stop
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	roomHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	offlineStyle    = lipgloss.NewStyle().Faint(true)
)

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Blindtest Server"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Server", m.status.Name)
	field("Port", fmt.Sprintf("%d", m.status.Port))
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	field("Songs", fmt.Sprintf("%d", m.status.Songs))
	field("Connections", fmt.Sprintf("%d", m.status.Connections))
	b.WriteString("\n")

	b.WriteString(roomHeaderStyle.Render(fmt.Sprintf("Rooms (%d)", len(m.status.Rooms))))
	b.WriteString("\n\n")

	if len(m.status.Rooms) == 0 {
		b.WriteString(valueStyle.Render("  No open rooms"))
		b.WriteString("\n")
	}
	for _, r := range m.status.Rooms {
		b.WriteString(renderRoom(r))
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func renderRoom(r RoomInfo) string {
	var b strings.Builder

	line := fmt.Sprintf("  %s  %s", r.Code, r.Status)
	if r.Round > 0 {
		line += fmt.Sprintf("  round %d (%s)", r.Round, r.Phase)
	}
	b.WriteString(headerStyle.Render(line))
	b.WriteString("\n")

	for _, p := range r.Players {
		entry := fmt.Sprintf("    • %s %s  %d pts", p.Avatar, p.Nickname, p.Score)
		if p.Host {
			entry += " (host)"
		}
		if p.Online {
			b.WriteString(valueStyle.Render(entry))
		} else {
			b.WriteString(offlineStyle.Render(entry + " offline"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// NewServerTUI creates a new server TUI
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until it quits
func (t *ServerTUI) Start(serverName string, port int) error {
	m := tuiModel{
		status: ServerStatus{
			Name: serverName,
			Port: port,
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	// Start listening for updates in a goroutine
	go func() {
		for status := range t.updates {
			if t.program != nil {
				t.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *ServerTUI) Update(status ServerStatus) {
	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
