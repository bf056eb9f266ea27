// ABOUTME: Tests for the song API client
// ABOUTME: Uses an httptest server standing in for the blindtest server
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

func songServer(t *testing.T, songs []song.Song, listCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/songs", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(listCalls, 1)
		json.NewEncoder(w).Encode(songs)
	})
	mux.HandleFunc("GET /api/songs/random", func(w http.ResponseWriter, r *http.Request) {
		excluded := map[string]bool{}
		for _, id := range strings.Split(r.URL.Query().Get("exclude"), ",") {
			excluded[id] = true
		}
		for _, s := range songs {
			if !excluded[s.ID] {
				json.NewEncoder(w).Encode(s)
				return
			}
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /api/songs/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, s := range songs {
			if s.ID == r.PathValue("id") {
				json.NewEncoder(w).Encode(s)
				return
			}
		}
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSongAPIRandomExcludes(t *testing.T) {
	var calls int32
	songs := []song.Song{{ID: "a", Title: "One"}, {ID: "b", Title: "Two"}}
	api := NewSongAPI(songServer(t, songs, &calls).URL, nil)
	ctx := context.Background()

	s, err := api.RandomSong(ctx, []string{"a"})
	if err != nil {
		t.Fatalf("RandomSong failed: %v", err)
	}
	if s.ID != "b" {
		t.Errorf("expected b, got %s", s.ID)
	}

	_, err = api.RandomSong(ctx, []string{"a", "b"})
	if !errors.Is(err, song.ErrNoSongs) {
		t.Errorf("expected ErrNoSongs, got %v", err)
	}
}

func TestSongAPICachesListing(t *testing.T) {
	var calls int32
	api := NewSongAPI(songServer(t, []song.Song{{ID: "a"}}, &calls).URL, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		songs, err := api.Songs(ctx)
		if err != nil || len(songs) != 1 {
			t.Fatalf("Songs: %v %v", songs, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected one listing request, got %d", calls)
	}

	api.Invalidate()
	api.Songs(ctx)
	if calls != 2 {
		t.Errorf("expected a refetch after Invalidate, got %d", calls)
	}
}

func TestSongAPIGet(t *testing.T) {
	var calls int32
	api := NewSongAPI(songServer(t, []song.Song{{ID: "a", Title: "One", Artist: "X"}}, &calls).URL, nil)

	s, err := api.Song(context.Background(), "a")
	if err != nil || s.Title != "One" {
		t.Errorf("unexpected song %+v %v", s, err)
	}

	_, err = api.Song(context.Background(), "zzz")
	if !errors.Is(err, song.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewSongAPIAddsScheme(t *testing.T) {
	api := NewSongAPI("localhost:8927/", nil)
	if api.BaseURL() != "http://localhost:8927" {
		t.Errorf("unexpected base %s", api.BaseURL())
	}
	if api.CoverURL("a b") != "http://localhost:8927/api/songs/a%20b/cover" {
		t.Errorf("unexpected cover url %s", api.CoverURL("a b"))
	}
}
