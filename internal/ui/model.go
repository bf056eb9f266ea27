// ABOUTME: Bubbletea model for the blindtest player TUI
// ABOUTME: Renders solo and room games and turns keys into game intents
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/julienbrs/blindtest-sub003/internal/room"
	"github.com/julienbrs/blindtest-sub003/pkg/game"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
	"github.com/julienbrs/blindtest-sub003/pkg/streak"
)

// Mode selects which game the model renders
type Mode int

const (
	ModeSolo Mode = iota
	ModeRoom
)

// SoloView is everything the solo screen shows
type SoloView struct {
	Game        game.State
	Streak      streak.State
	Progress    float64
	CurrentTime float64
	CoverPath   string
}

// RoomView is everything the multiplayer screen shows
type RoomView struct {
	Room      room.Room
	You       string
	Connected bool
	Progress  float64
	// AnswerLeft is the remaining answer time in seconds while a buzz is pending
	AnswerLeft int
	CoverPath  string
}

// SoloMsg replaces the solo view
type SoloMsg SoloView

// RoomMsg replaces the room view
type RoomMsg RoomView

// NoticeMsg shows a one-line message under the game; empty clears it
type NoticeMsg string

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	songStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	alertStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	partyStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// Model represents the TUI state
type Model struct {
	mode     Mode
	solo     SoloView
	room     RoomView
	notice   string
	volume   int
	muted    bool
	controls *Controls

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case SoloMsg:
		m.solo = SoloView(msg)
	case RoomMsg:
		m.room = RoomView(msg)
	case NoticeMsg:
		m.notice = string(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	var body string
	if m.mode == ModeRoom {
		body = m.renderRoom()
	} else {
		body = m.renderSolo()
	}

	var b strings.Builder
	b.WriteString(boxStyle.Render(body))
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(alertStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.renderVolume())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help()))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderSolo() string {
	s := m.solo.Game
	var b strings.Builder

	b.WriteString(titleStyle.Render("🎵 Blindtest"))
	b.WriteString(fmt.Sprintf("   Score: %d   Songs: %d", s.Score, s.SongsPlayed))
	if s.LibrarySize > 0 {
		b.WriteString(fmt.Sprintf("/%d", s.LibrarySize))
	}
	b.WriteString("\n")
	if m.solo.Streak.Count > 0 {
		b.WriteString(fmt.Sprintf("Streak: %d", m.solo.Streak.Count))
		if m.solo.Streak.ShowCelebration {
			b.WriteString("  " + partyStyle.Render(fmt.Sprintf("🔥 %d in a row!", m.solo.Streak.Count)))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch s.Status {
	case game.StatusIdle:
		b.WriteString("Press enter to start a game\n")
	case game.StatusLoading:
		b.WriteString("Loading the next song...\n")
	case game.StatusPlaying:
		b.WriteString("Listen! Buzz when you know it\n")
		b.WriteString(renderProgress(m.solo.Progress, 30) + fmt.Sprintf(" %.0fs/%ds\n", m.solo.CurrentTime, s.Config.ClipDuration))
	case game.StatusBuzzed, game.StatusTimer:
		b.WriteString(alertStyle.Render("Buzzed!") + fmt.Sprintf(" Answer out loud: %s\n", guessLabel(s.Config.GuessMode)))
		b.WriteString(fmt.Sprintf("Time left: %ds\n", s.TimeLeft))
	case game.StatusReveal:
		b.WriteString(m.renderSong(s))
	case game.StatusEnded:
		if s.EndReason == game.EndExhausted {
			b.WriteString("You played every song of the library!\n")
		} else {
			b.WriteString("Game over\n")
		}
		b.WriteString(fmt.Sprintf("Final score: %d over %d songs\n", s.Score, s.SongsPlayed))
	case game.StatusError:
		if s.LoadErr != nil {
			b.WriteString(alertStyle.Render(s.LoadErr.Error()) + "\n")
		}
	}

	return b.String()
}

func (m Model) renderSong(s game.State) string {
	if s.Song == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(labelStyle.Render("It was ") + songStyle.Render(s.Song.String()) + "\n")
	if s.Song.Album != "" {
		album := s.Song.Album
		if s.Song.Year > 0 {
			album = fmt.Sprintf("%s (%d)", album, s.Song.Year)
		}
		b.WriteString(labelStyle.Render("Album: ") + album + "\n")
	}
	if m.solo.CoverPath != "" {
		b.WriteString(labelStyle.Render("Cover: ") + m.solo.CoverPath + "\n")
	}
	return b.String()
}

func (m Model) renderRoom() string {
	v := m.room
	r := v.Room
	var b strings.Builder

	b.WriteString(titleStyle.Render("🎵 Room "+r.Code) + fmt.Sprintf("   %s", r.Status))
	if !v.Connected {
		b.WriteString("  " + alertStyle.Render("reconnecting..."))
	}
	b.WriteString("\n\n")

	for i, p := range r.Players {
		line := fmt.Sprintf("%d. %s %-16s %4d", i+1, p.Avatar, truncate(p.Nickname, 16), p.Score)
		if r.IsHost(p.ID) {
			line += " 👑"
		}
		if p.ID == v.You {
			line += " (you)"
		}
		if r.Round != nil && r.Round.Phase == room.PhaseLoading && contains(r.Round.Ready, p.ID) {
			line += " ✓"
		}
		if !p.Online {
			line = offlineStyle.Render(line + " offline")
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	switch r.Status {
	case room.StatusWaiting:
		if r.IsHost(v.You) {
			b.WriteString("Press enter to start when everybody is in\n")
		} else {
			b.WriteString("Waiting for the host to start\n")
		}
	case room.StatusPlaying:
		b.WriteString(m.renderRound())
	case room.StatusEnded:
		b.WriteString("Game over\n")
		if winner := leader(r.Players); winner != nil {
			b.WriteString(partyStyle.Render(fmt.Sprintf("🏆 %s %s wins with %d", winner.Avatar, winner.Nickname, winner.Score)) + "\n")
		}
		if r.IsHost(v.You) {
			b.WriteString("Press enter to play again\n")
		}
	}

	return b.String()
}

func (m Model) renderRound() string {
	v := m.room
	r := v.Room
	round := r.Round
	if round == nil {
		return ""
	}

	var b strings.Builder
	header := fmt.Sprintf("Round %d", round.Number)
	if r.Settings.Rounds > 0 {
		header += fmt.Sprintf("/%d", r.Settings.Rounds)
	}
	b.WriteString(labelStyle.Render(header) + "\n")

	switch round.Phase {
	case room.PhaseLoading:
		b.WriteString(fmt.Sprintf("Loading... %d/%d ready\n", len(round.Ready), len(r.Online())))
	case room.PhasePlaying:
		b.WriteString("Listen! Buzz when you know it\n")
		b.WriteString(renderProgress(v.Progress, 30) + "\n")
	case room.PhaseBuzzed:
		name := round.BuzzedBy
		if p, ok := r.Player(round.BuzzedBy); ok {
			name = p.Avatar + " " + p.Nickname
		}
		b.WriteString(alertStyle.Render(name+" buzzed!") + fmt.Sprintf(" %ds left\n", v.AnswerLeft))
		if r.IsHost(v.You) {
			b.WriteString("Judge the answer: y correct, n wrong\n")
		}
	case room.PhaseReveal:
		if round.Song != nil {
			b.WriteString(labelStyle.Render("It was ") + songStyle.Render(round.Song.String()) + "\n")
		}
		if round.Correct != nil && *round.Correct {
			if p, ok := r.Player(round.BuzzedBy); ok {
				b.WriteString(fmt.Sprintf("Point for %s %s\n", p.Avatar, p.Nickname))
			}
		}
		if v.CoverPath != "" {
			b.WriteString(labelStyle.Render("Cover: ") + v.CoverPath + "\n")
		}
	}
	return b.String()
}

func (m Model) renderVolume() string {
	icon := "🔊"
	if m.muted {
		icon = "🔇"
	}
	return fmt.Sprintf("%s [%s] %d%%", icon, renderBar(m.volume, 100, 10), m.volume)
}

func (m Model) help() string {
	if m.mode == ModeRoom {
		if m.room.Room.IsHost(m.room.You) {
			return "space:Buzz  r:Reveal  y/n:Judge  enter:Start/Next  1-9:Kick  e:End  ↑/↓:Volume  m:Mute  q:Quit"
		}
		return "space:Buzz  ↑/↓:Volume  m:Mute  q:Quit"
	}
	return "space:Buzz  r:Reveal/Retry  y/n:Judge  enter:Start/Next  e:End  ↑/↓:Volume  m:Mute  q:Quit"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		m.controls.send(Intent{Kind: IntentVolume, Volume: m.effectiveVolume()})
		return m, nil
	case "down":
		m.volume = max(m.volume-5, 0)
		m.controls.send(Intent{Kind: IntentVolume, Volume: m.effectiveVolume()})
		return m, nil
	case "m":
		m.muted = !m.muted
		m.controls.send(Intent{Kind: IntentVolume, Volume: m.effectiveVolume()})
		return m, nil
	}

	var intent Intent
	var ok bool
	if m.mode == ModeRoom {
		intent, ok = m.roomIntent(key)
	} else {
		intent, ok = m.soloIntent(key)
	}
	if ok {
		m.controls.send(intent)
	}
	return m, nil
}

func (m Model) soloIntent(key string) (Intent, bool) {
	s := m.solo.Game
	switch key {
	case " ":
		if s.Status == game.StatusPlaying {
			return Intent{Kind: IntentBuzz}, true
		}
	case "r":
		switch s.Status {
		case game.StatusPlaying, game.StatusBuzzed, game.StatusTimer:
			return Intent{Kind: IntentReveal}, true
		case game.StatusError:
			if s.LoadErr != nil && s.LoadErr.Retryable {
				return Intent{Kind: IntentRetry}, true
			}
		}
	case "y", "n":
		if s.Status == game.StatusTimer {
			return Intent{Kind: IntentJudge, Correct: key == "y"}, true
		}
	case "enter":
		switch s.Status {
		case game.StatusReveal:
			return Intent{Kind: IntentNext}, true
		case game.StatusIdle, game.StatusEnded:
			return Intent{Kind: IntentStart}, true
		}
	case "e":
		if s.Status != game.StatusIdle && s.Status != game.StatusEnded {
			return Intent{Kind: IntentEnd}, true
		}
	}
	return Intent{}, false
}

func (m Model) roomIntent(key string) (Intent, bool) {
	r := m.room.Room
	host := r.IsHost(m.room.You)
	phase := room.Phase("")
	if r.Status == room.StatusPlaying && r.Round != nil {
		phase = r.Round.Phase
	}

	switch key {
	case " ":
		if phase == room.PhasePlaying {
			return Intent{Kind: IntentBuzz}, true
		}
	case "r":
		if host && (phase == room.PhasePlaying || phase == room.PhaseBuzzed) {
			return Intent{Kind: IntentReveal}, true
		}
	case "y", "n":
		if host && phase == room.PhaseBuzzed {
			return Intent{Kind: IntentJudge, Correct: key == "y"}, true
		}
	case "enter":
		if !host {
			break
		}
		if r.Status == room.StatusWaiting || r.Status == room.StatusEnded {
			return Intent{Kind: IntentStart}, true
		}
		if phase == room.PhaseReveal {
			return Intent{Kind: IntentNext}, true
		}
	case "e":
		if host && r.Status == room.StatusPlaying {
			return Intent{Kind: IntentEnd}, true
		}
	default:
		if !host || len(key) != 1 || key[0] < '1' || key[0] > '9' {
			break
		}
		i := int(key[0] - '1')
		if i < len(r.Players) && r.Players[i].ID != m.room.You {
			return Intent{Kind: IntentKick, Target: r.Players[i].ID}, true
		}
	}
	return Intent{}, false
}

func (m Model) effectiveVolume() float64 {
	if m.muted {
		return 0
	}
	return float64(m.volume) / 100
}

func renderProgress(progress float64, width int) string {
	return renderBar(int(progress*100), 100, width)
}

func renderBar(value, total, width int) string {
	filled := (value * width) / total
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func guessLabel(mode song.GuessMode) string {
	switch mode {
	case song.GuessTitle:
		return "the title"
	case song.GuessArtist:
		return "the artist"
	default:
		return "the artist and the title"
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// leader returns the top scorer, earliest joined on ties
func leader(players []room.Player) *room.Player {
	var best *room.Player
	for i := range players {
		if best == nil || players[i].Score > best.Score {
			best = &players[i]
		}
	}
	return best
}
