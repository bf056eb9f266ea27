// ABOUTME: HTTP API for songs, audio files and room history
// ABOUTME: Audio is served with Range support so clients can seek into clips
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/julienbrs/blindtest-sub003/internal/history"
	"github.com/julienbrs/blindtest-sub003/internal/room"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// RoomSummary is one line of the room listing
type RoomSummary struct {
	Code    string      `json:"code"`
	Status  room.Status `json:"status"`
	Players int         `json:"players"`
	Online  int         `json:"online"`
	Round   int         `json:"round"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// handleAudio serves a song file. http.ServeContent answers 200, 206 and 416.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	sg, err := s.config.Library.Get(r.PathValue("id"))
	if err != nil {
		s.libraryError(w, err)
		return
	}

	f, err := os.Open(sg.Path)
	if err != nil {
		log.Printf("Audio %s unavailable: %v", sg.ID, err)
		writeError(w, http.StatusNotFound, "not_found", "audio file is gone")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	w.Header().Set("Content-Type", song.ContentType(sg.Format))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, filepath.Base(sg.Path), info.ModTime(), f)
}

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.config.Library.Songs(r.Context())
	if err != nil {
		s.libraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handleRandomSong(w http.ResponseWriter, r *http.Request) {
	var exclude []string
	for _, id := range strings.Split(r.URL.Query().Get("exclude"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			exclude = append(exclude, id)
		}
	}

	sg, err := s.config.Library.RandomSong(r.Context(), exclude)
	if err != nil {
		s.libraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	sg, err := s.config.Library.Get(r.PathValue("id"))
	if err != nil {
		s.libraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	path, err := s.config.Library.CoverPath(r.PathValue("id"))
	if err != nil {
		s.libraryError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	n, err := s.config.Library.Rescan(r.Context())
	if err != nil {
		s.libraryError(w, err)
		return
	}
	log.Printf("Library rescanned: %d songs", n)
	s.updateTUI()
	writeJSON(w, http.StatusOK, map[string]int{"songs": n})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.listRooms(r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, room.Code(err), err.Error())
		return
	}

	out := make([]RoomSummary, 0, len(rooms))
	for _, rm := range rooms {
		summary := RoomSummary{Code: rm.Code, Status: rm.Status, Players: len(rm.Players), Online: len(rm.Online())}
		if rm.Round != nil {
			summary.Round = rm.Round.Number
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listRooms(r *http.Request) ([]room.Room, error) {
	codes, err := s.config.Store.List(r.Context())
	if err != nil {
		return nil, err
	}
	sort.Strings(codes)

	rooms := make([]room.Room, 0, len(codes))
	for _, code := range codes {
		rm, err := s.config.Rooms.Get(r.Context(), code)
		if err != nil {
			continue
		}
		rooms = append(rooms, rm)
	}
	return rooms, nil
}

func (s *Server) handleRoomHistory(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.PathValue("code"))

	if s.config.History != nil {
		rounds, err := s.config.History.Rounds(r.Context(), code)
		if err != nil {
			log.Printf("History for room %s unavailable: %v", code, err)
		} else if len(rounds) > 0 {
			writeJSON(w, http.StatusOK, rounds)
			return
		}
	}

	rm, err := s.config.Rooms.Get(r.Context(), code)
	if errors.Is(err, room.ErrRoomNotFound) {
		writeJSON(w, http.StatusOK, []room.RoundRecord{})
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, room.Code(err), err.Error())
		return
	}
	played := rm.History
	if played == nil {
		played = []room.RoundRecord{}
	}
	writeJSON(w, http.StatusOK, played)
}

// handleStats lists how often songs were played and found, most played first
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive number")
			return
		}
		limit = n
	}

	if s.config.History == nil {
		writeJSON(w, http.StatusOK, []history.SongStats{})
		return
	}
	stats, err := s.config.History.Stats(r.Context(), limit)
	if err != nil {
		log.Printf("Stats unavailable: %v", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	if stats == nil {
		stats = []history.SongStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) libraryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, song.ErrNoSongs):
		writeError(w, http.StatusNotFound, "no_songs", err.Error())
	case errors.Is(err, song.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		log.Printf("Library error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
