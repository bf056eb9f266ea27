// ABOUTME: HTTP client for the server song API
// ABOUTME: Lists, picks and describes songs; used as the solo game song source
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// SongAPI talks to the server's /api/songs endpoints
type SongAPI struct {
	base string
	http *http.Client

	mu    sync.Mutex
	songs []song.Song
}

// NewSongAPI creates a client for the server at addr (host:port or a full URL)
func NewSongAPI(addr string, httpClient *http.Client) *SongAPI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &SongAPI{base: base, http: httpClient}
}

// BaseURL is the server root, also used by the audio engine for /audio/{id}
func (a *SongAPI) BaseURL() string {
	return a.base
}

// CoverURL returns the cover endpoint for a song
func (a *SongAPI) CoverURL(id string) string {
	return a.base + "/api/songs/" + url.PathEscape(id) + "/cover"
}

// Songs returns the library listing. The first answer is cached until Invalidate.
func (a *SongAPI) Songs(ctx context.Context) ([]song.Song, error) {
	a.mu.Lock()
	cached := a.songs
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var songs []song.Song
	if err := a.get(ctx, "/api/songs", &songs); err != nil {
		return nil, err
	}
	if songs == nil {
		songs = []song.Song{}
	}

	a.mu.Lock()
	a.songs = songs
	a.mu.Unlock()
	return songs, nil
}

// Invalidate drops the cached listing
func (a *SongAPI) Invalidate() {
	a.mu.Lock()
	a.songs = nil
	a.mu.Unlock()
}

// RandomSong asks the server for a song outside exclude
func (a *SongAPI) RandomSong(ctx context.Context, exclude []string) (song.Song, error) {
	path := "/api/songs/random"
	if len(exclude) > 0 {
		path += "?exclude=" + url.QueryEscape(strings.Join(exclude, ","))
	}

	var s song.Song
	err := a.get(ctx, path, &s)
	if err == song.ErrNotFound {
		return song.Song{}, song.ErrNoSongs
	}
	return s, err
}

// Song fetches one song's metadata
func (a *SongAPI) Song(ctx context.Context, id string) (song.Song, error) {
	var s song.Song
	if err := a.get(ctx, "/api/songs/"+url.PathEscape(id), &s); err != nil {
		return song.Song{}, err
	}
	return s, nil
}

func (a *SongAPI) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return song.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("request %s: unexpected status %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
