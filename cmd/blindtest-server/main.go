// ABOUTME: Entry point for the blindtest server
// ABOUTME: Wires the music library, room store, history and starts the server
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienbrs/blindtest-sub003/internal/config"
	"github.com/julienbrs/blindtest-sub003/internal/history"
	"github.com/julienbrs/blindtest-sub003/internal/library"
	"github.com/julienbrs/blindtest-sub003/internal/room"
	"github.com/julienbrs/blindtest-sub003/internal/server"
	"github.com/julienbrs/blindtest-sub003/internal/store"
	"github.com/julienbrs/blindtest-sub003/internal/version"
)

func main() {
	// .env and BLINDTEST_* variables provide the flag defaults
	cfg, err := config.LoadServer(".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	port := flag.Int("port", cfg.Port, "HTTP and WebSocket port")
	name := flag.String("name", cfg.Name, "Server friendly name")
	musicDir := flag.String("music", cfg.MusicDir, "Music library directory")
	watch := flag.Bool("watch", cfg.Watch, "Rescan the library when files change")
	redisURL := flag.String("redis", cfg.RedisURL, "Redis address or redis:// URL for rooms (default: in memory)")
	historyDSN := flag.String("history", cfg.HistoryDSN, `Round history: sqlite path, postgres:// URL or "off"`)
	readyTimeout := flag.Duration("ready-timeout", cfg.ReadyTimeout, "Start a round even if some players did not load it")
	startLead := flag.Duration("start-lead", cfg.StartLead, "Delay between everyone being ready and the clip start")
	logFile := flag.String("log-file", cfg.LogFile, "Log file path")
	debug := flag.Bool("debug", false, "Enable debug logging")
	noMDNS := flag.Bool("no-mdns", cfg.NoMDNS, "Disable mDNS advertisement")
	noTUI := flag.Bool("no-tui", false, "Disable TUI, stream logs instead")
	flag.Parse()

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-blindtest-server", hostname)
	}

	log.Printf("Starting %s %s: %s on port %d", version.Product, version.Version, serverName, *port)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", *logFile)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Music library
	lib := library.NewCache(*musicDir)
	count, err := lib.Rescan(ctx)
	if err != nil {
		log.Fatalf("Failed to scan %s: %v", *musicDir, err)
	}
	log.Printf("Library: %d songs in %s", count, *musicDir)

	if *watch {
		watcher, err := library.NewWatcher(library.WatcherConfig{
			Root:   *musicDir,
			Target: lib,
			OnChange: func() {
				log.Printf("Library changed, songs will be rescanned on next use")
			},
		})
		if err != nil {
			log.Printf("Library watcher disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	// Room store
	var rooms room.Store
	if *redisURL != "" {
		redisStore, err := store.NewRedis(ctx, *redisURL, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Redis unavailable: %v", err)
		}
		defer redisStore.Close()
		rooms = redisStore
	} else {
		log.Printf("Rooms kept in memory")
		rooms = store.NewMemory()
	}

	// Round history
	var recorder room.Recorder
	var hist server.History
	if *historyDSN != "off" && *historyDSN != "" {
		h, err := history.Open(*historyDSN)
		if err != nil {
			log.Fatalf("Failed to open history: %v", err)
		}
		defer h.Close()
		recorder = h
		hist = h
	}

	service := room.NewService(room.Config{
		Store:        rooms,
		Library:      lib,
		History:      recorder,
		ReadyTimeout: *readyTimeout,
		StartLead:    *startLead,
	})
	defer service.Close()

	srv := server.New(server.Config{
		Port:       *port,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		Debug:      *debug,
		UseTUI:     useTUI,
		Rooms:      service,
		Store:      rooms,
		Library:    lib,
		History:    hist,
	})

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	// Start server
	if err := srv.Start(); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}

	log.Printf("Server stopped")
}
