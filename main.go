// ABOUTME: Entry point for the blindtest terminal player
// ABOUTME: Parses CLI flags and starts a solo game or joins a multiplayer room
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/julienbrs/blindtest-sub003/internal/app"
	"github.com/julienbrs/blindtest-sub003/internal/config"
	"github.com/julienbrs/blindtest-sub003/internal/version"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

func main() {
	// .env and BLINDTEST_* variables provide the flag defaults
	cfg, err := config.LoadClient(".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	serverAddr := flag.String("server", cfg.Server, "Server address host:port (default: discover via mDNS)")
	name := flag.String("name", "", "Client name shown in server logs (default: hostname-blindtest)")
	create := flag.Bool("create", false, "Create a multiplayer room and host it")
	join := flag.String("join", "", "Join the multiplayer room with this code")
	nickname := flag.String("nickname", cfg.Nickname, "Nickname in multiplayer rooms")
	avatar := flag.String("avatar", cfg.Avatar, "Avatar in multiplayer rooms")
	guess := flag.String("guess", string(song.GuessBoth), "What to name: title, artist or both")
	clip := flag.Int("clip", song.DefaultClipDuration, "Clip duration in seconds")
	answer := flag.Int("answer", song.DefaultAnswerTime, "Answer time in seconds after a buzz")
	rounds := flag.Int("rounds", 0, "Rounds per multiplayer game (0: until the library runs out)")
	maxPlayers := flag.Int("max-players", song.DefaultMaxPlayers, "Room capacity when creating a room")
	volume := flag.Float64("volume", cfg.Volume, "Starting volume between 0 and 1")
	logFile := flag.String("log-file", cfg.LogFile, "Log file path")
	noTUI := flag.Bool("no-tui", false, "Disable TUI, read commands from stdin and stream logs")
	silent := flag.Bool("silent", false, "Do not open an audio device")
	flag.Parse()

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-blindtest", hostname)
	}

	settings := song.GameConfig{
		GuessMode:    song.GuessMode(strings.ToLower(*guess)),
		ClipDuration: *clip,
		AnswerTime:   *answer,
		Rounds:       *rounds,
		MaxPlayers:   *maxPlayers,
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid game settings: %v\n", err)
		os.Exit(2)
	}

	mode := app.ModeSolo
	switch {
	case *create && *join != "":
		fmt.Fprintln(os.Stderr, "Use either -create or -join, not both")
		os.Exit(2)
	case *create:
		mode = app.ModeCreate
	case *join != "":
		mode = app.ModeJoin
	}
	if mode != app.ModeSolo && (*nickname == "" || *avatar == "") {
		fmt.Fprintln(os.Stderr, "Multiplayer needs -nickname and -avatar")
		os.Exit(2)
	}

	log.Printf("Starting %s %s: %s", version.Product, version.Version, playerName)

	player := app.New(app.Config{
		ServerAddr: *serverAddr,
		Name:       playerName,
		Mode:       mode,
		RoomCode:   *join,
		Nickname:   *nickname,
		Avatar:     *avatar,
		Settings:   settings,
		Volume:     *volume,
		UseTUI:     useTUI,
		Silent:     *silent,
	})

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("Shutdown signal received")
		player.Stop()
	}()

	if err := player.Start(); err != nil {
		log.Printf("Player failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log.Printf("Player stopped")
}
