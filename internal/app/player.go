// ABOUTME: Main player application orchestration
// ABOUTME: Coordinates discovery, the server connection, audio, sessions and the UI
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/julienbrs/blindtest-sub003/internal/artwork"
	"github.com/julienbrs/blindtest-sub003/internal/client"
	"github.com/julienbrs/blindtest-sub003/internal/discovery"
	"github.com/julienbrs/blindtest-sub003/internal/protocol"
	"github.com/julienbrs/blindtest-sub003/internal/room"
	"github.com/julienbrs/blindtest-sub003/internal/ui"
	"github.com/julienbrs/blindtest-sub003/pkg/audio/engine"
	"github.com/julienbrs/blindtest-sub003/pkg/audio/output"
	"github.com/julienbrs/blindtest-sub003/pkg/game"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// Mode selects which game the player joins
type Mode int

const (
	ModeSolo Mode = iota
	// ModeCreate opens a new room and hosts it
	ModeCreate
	// ModeJoin enters the room named by Config.RoomCode
	ModeJoin
)

// Config holds player configuration
type Config struct {
	// ServerAddr is host:port; empty means discover a server on the LAN
	ServerAddr string
	Name       string
	Mode       Mode
	RoomCode   string
	Nickname   string
	Avatar     string
	Settings   song.GameConfig
	// Volume is the starting level in [0, 1]
	Volume float64
	UseTUI bool
	// Silent decodes without opening an audio device
	Silent bool
	// Input feeds line commands when the TUI is off (default stdin)
	Input io.Reader
}

// session is the game the player is in
type session interface {
	Handle(ui.Intent)
	Refresh()
	Close()
}

// Player represents the main player application
type Player struct {
	config   Config
	songs    *client.SongAPI
	client   *client.Client
	audio    *engine.Engine
	covers   *artwork.Downloader
	session  session
	controls *ui.Controls
	tuiProg  *tea.Program
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	logMu    sync.Mutex
	lastLine string
}

// New creates a new player
func New(config Config) *Player {
	if config.Volume <= 0 || config.Volume > 1 {
		config.Volume = 1
	}
	if config.Input == nil {
		config.Input = os.Stdin
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Player{
		config:   config,
		controls: ui.NewControls(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start connects, opens the game and blocks until the player quits
func (p *Player) Start() error {
	addr, err := p.resolveServer()
	if err != nil {
		return err
	}
	log.Printf("Using server %s", addr)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	p.songs = client.NewSongAPI(addr, httpClient)

	covers, err := artwork.NewDownloader(artwork.Config{})
	if err != nil {
		log.Printf("Artwork disabled: %v", err)
	} else {
		p.covers = covers
	}

	var out output.Output = output.NewOto()
	if p.config.Silent {
		out = output.NewNull()
	}
	p.audio = engine.New(engine.Config{
		BaseURL: p.songs.BaseURL(),
		Media:   engine.NewDecodedMedia(engine.DecodedConfig{Client: httpClient, Output: out}),
	})
	p.audio.SetVolume(p.config.Volume)

	uiMode := ui.ModeSolo
	if p.config.Mode != ModeSolo {
		uiMode = ui.ModeRoom
	}
	if p.config.UseTUI {
		p.tuiProg = ui.Run(ui.NewModel(uiMode, p.config.Volume, p.controls))
		go func() {
			if _, err := p.tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			p.cancel()
		}()
	}

	if p.config.Mode == ModeSolo {
		p.startSolo()
	} else if err := p.startParty(addr); err != nil {
		p.Stop()
		return err
	}

	if p.config.UseTUI {
		go p.tickLoop()
	} else {
		go p.readCommands()
	}

	p.intentLoop()
	return nil
}

func (p *Player) resolveServer() (string, error) {
	if p.config.ServerAddr != "" {
		return p.config.ServerAddr, nil
	}
	log.Printf("Looking for a server on the local network...")
	server, err := discovery.FindServer(p.ctx)
	if err != nil {
		return "", fmt.Errorf("no server found, pass one with -server: %w", err)
	}
	return server.Addr(), nil
}

func (p *Player) startSolo() {
	solo := NewSolo(SoloConfig{
		Songs:    p.songs,
		Audio:    p.audio,
		Settings: p.config.Settings,
		Covers:   p.coverSource(),
		CoverURL: p.songs.CoverURL,
		OnView: func(v ui.SoloView) {
			p.send(ui.SoloMsg(v))
			if !p.config.UseTUI {
				p.logLine(soloLine(v))
			}
		},
	})
	p.session = solo
	solo.Start()
}

func (p *Player) startParty(addr string) error {
	// Snapshots can arrive before the join reply; the newest one is kept for the party
	var mu sync.Mutex
	var party *Party
	var early *protocol.RoomState
	current := func() *Party {
		mu.Lock()
		defer mu.Unlock()
		return party
	}

	p.client = client.NewClient(client.Config{
		ServerAddr: addr,
		ClientID:   uuid.NewString(),
		Name:       p.config.Name,
		OnState: func(state protocol.RoomState) {
			mu.Lock()
			pt := party
			if pt == nil && (early == nil || state.Room.Version >= early.Room.Version) {
				early = &state
			}
			mu.Unlock()
			if pt != nil {
				pt.Apply(state)
			}
		},
		OnKicked: func(code string) {
			p.notice(fmt.Sprintf("You were removed from room %s", code))
			p.cancel()
		},
		OnClosed: func(code string) {
			p.notice(fmt.Sprintf("Room %s was closed", code))
			p.cancel()
		},
		OnConnection: func(connected bool) {
			if pt := current(); pt != nil {
				pt.SetConnected(connected)
			}
		},
	})
	if err := p.client.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	var joined room.Room
	var you string
	var err error
	switch p.config.Mode {
	case ModeCreate:
		joined, you, err = p.client.Create(ctx, p.config.Nickname, p.config.Avatar, p.config.Settings)
	default:
		joined, you, err = p.client.Join(ctx, p.config.RoomCode, p.config.Nickname, p.config.Avatar)
	}
	if err != nil {
		return fmt.Errorf("cannot enter room: %w", err)
	}
	log.Printf("Joined room %s as %s", joined.Code, you)

	pt := NewParty(PartyConfig{
		Client:   p.client,
		Audio:    p.audio,
		Covers:   p.coverSource(),
		CoverURL: p.songs.CoverURL,
		OnView: func(v ui.RoomView) {
			p.send(ui.RoomMsg(v))
			if !p.config.UseTUI {
				p.logLine(roomLine(v))
			}
		},
		OnError: func(err error) {
			p.notice(err.Error())
		},
	}, joined, you)
	p.session = pt

	mu.Lock()
	party = pt
	pending := early
	mu.Unlock()
	if pending != nil {
		pt.Apply(*pending)
	}
	return nil
}

// coverSource keeps a nil downloader from becoming a non-nil interface
func (p *Player) coverSource() Covers {
	if p.covers == nil {
		return nil
	}
	return p.covers
}

// intentLoop applies intents until the player quits
func (p *Player) intentLoop() {
	for {
		select {
		case intent := <-p.controls.Intents:
			p.notice("")
			go p.session.Handle(intent)
		case <-p.controls.Quit:
			p.Stop()
			return
		case <-p.ctx.Done():
			p.Stop()
			return
		}
	}
}

// tickLoop refreshes the screen for the progress bar and countdowns
func (p *Player) tickLoop() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.session.Refresh()
		case <-p.ctx.Done():
			return
		}
	}
}

// readCommands turns stdin lines into intents when the TUI is off
func (p *Player) readCommands() {
	scanner := bufio.NewScanner(p.config.Input)
	for scanner.Scan() {
		intent, quit, ok := parseCommand(scanner.Text())
		if quit {
			select {
			case p.controls.Quit <- struct{}{}:
			default:
			}
			return
		}
		if !ok {
			log.Printf("Commands: b buzz, r reveal, y/n judge, s start, x next, t retry, e end, k <n> kick, v <0-100> volume, q quit")
			continue
		}
		select {
		case p.controls.Intents <- intent:
		case <-p.ctx.Done():
			return
		}
	}
}

// parseCommand maps a text command to an intent
func parseCommand(line string) (intent ui.Intent, quit bool, ok bool) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return ui.Intent{}, false, false
	}
	switch fields[0] {
	case "b", "buzz":
		return ui.Intent{Kind: ui.IntentBuzz}, false, true
	case "r", "reveal":
		return ui.Intent{Kind: ui.IntentReveal}, false, true
	case "y", "yes":
		return ui.Intent{Kind: ui.IntentJudge, Correct: true}, false, true
	case "n", "no":
		return ui.Intent{Kind: ui.IntentJudge}, false, true
	case "s", "start":
		return ui.Intent{Kind: ui.IntentStart}, false, true
	case "x", "next":
		return ui.Intent{Kind: ui.IntentNext}, false, true
	case "t", "retry":
		return ui.Intent{Kind: ui.IntentRetry}, false, true
	case "e", "end":
		return ui.Intent{Kind: ui.IntentEnd}, false, true
	case "k", "kick":
		if len(fields) == 2 {
			return ui.Intent{Kind: ui.IntentKick, Target: fields[1]}, false, true
		}
	case "v", "volume":
		var level int
		if len(fields) == 2 {
			if _, err := fmt.Sscanf(fields[1], "%d", &level); err == nil && level >= 0 && level <= 100 {
				return ui.Intent{Kind: ui.IntentVolume, Volume: float64(level) / 100}, false, true
			}
		}
	case "q", "quit":
		return ui.Intent{}, true, false
	}
	return ui.Intent{}, false, false
}

func (p *Player) send(msg tea.Msg) {
	if p.tuiProg != nil {
		p.tuiProg.Send(msg)
	}
}

func (p *Player) notice(text string) {
	if p.tuiProg != nil {
		p.tuiProg.Send(ui.NoticeMsg(text))
		return
	}
	if text != "" {
		log.Printf("%s", text)
	}
}

// Stop leaves the room and releases everything
func (p *Player) Stop() {
	p.stopOnce.Do(p.stop)
}

func (p *Player) stop() {
	if p.client != nil {
		if code, _ := p.client.Session(); code != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := p.client.Leave(ctx); err != nil && !errors.Is(err, client.ErrDisconnected) {
				log.Printf("Failed to leave room: %v", err)
			}
			cancel()
		}
	}
	p.cancel()

	if p.session != nil {
		p.session.Close()
	}
	if p.client != nil {
		p.client.Close()
	}
	if p.audio != nil {
		p.audio.Close()
	}
	if p.tuiProg != nil {
		p.tuiProg.Quit()
	}
}

// logLine prints a headless status line when it changed
func (p *Player) logLine(line string) {
	p.logMu.Lock()
	defer p.logMu.Unlock()
	if line == "" || line == p.lastLine {
		return
	}
	p.lastLine = line
	log.Printf("%s", line)
}

func soloLine(v ui.SoloView) string {
	s := v.Game
	line := fmt.Sprintf("[%s] score %d, songs %d", s.Status, s.Score, s.SongsPlayed)
	switch {
	case s.Status == game.StatusTimer:
		line += fmt.Sprintf(", %ds to answer", s.TimeLeft)
	case s.Status == game.StatusReveal && s.Song != nil:
		line += ", it was " + s.Song.String()
	case s.Status == game.StatusError && s.LoadErr != nil:
		line += ", " + s.LoadErr.Error()
	}
	if v.Streak.ShowCelebration {
		line += fmt.Sprintf(", %d in a row!", v.Streak.Count)
	}
	return line
}

func roomLine(v ui.RoomView) string {
	r := v.Room
	line := fmt.Sprintf("[room %s %s]", r.Code, r.Status)
	if round := r.Round; round != nil && r.Status == room.StatusPlaying {
		line += fmt.Sprintf(" round %d %s", round.Number, round.Phase)
		if round.Phase == room.PhaseBuzzed {
			if pl, ok := r.Player(round.BuzzedBy); ok {
				line += ", " + pl.Nickname + " buzzed"
			}
		}
		if round.Phase == room.PhaseReveal && round.Song != nil {
			line += ", it was " + round.Song.String()
		}
	}
	var scores []string
	for i, pl := range r.Players {
		entry := fmt.Sprintf("%d.%s %d", i+1, pl.Nickname, pl.Score)
		if !pl.Online {
			entry += " (offline)"
		}
		scores = append(scores, entry)
	}
	return line + " | " + strings.Join(scores, ", ")
}
