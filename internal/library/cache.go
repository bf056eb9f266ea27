// ABOUTME: Owned song cache in front of the scanner
// ABOUTME: Populated on first use, dropped on invalidation or rescan
package library

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"sync"

	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// Cache holds the scanned library. The zero state is empty; the first read scans.
type Cache struct {
	root string
	scan func(ctx context.Context, root string) ([]song.Song, error)

	mu     sync.Mutex
	loaded bool
	songs  []song.Song
	byID   map[string]song.Song
}

// NewCache creates a cache for the music directory at root
func NewCache(root string) *Cache {
	return &Cache{root: root, scan: Scan}
}

// Root is the music directory
func (c *Cache) Root() string {
	return c.root
}

func (c *Cache) loadLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	songs, err := c.scan(ctx, c.root)
	if err != nil {
		return err
	}
	c.songs = songs
	c.byID = make(map[string]song.Song, len(songs))
	for _, s := range songs {
		c.byID[s.ID] = s
	}
	c.loaded = true
	return nil
}

// Songs returns every song, scanning if the cache is empty
func (c *Cache) Songs(ctx context.Context) ([]song.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]song.Song, len(c.songs))
	copy(out, c.songs)
	return out, nil
}

// Get returns one song by id
func (c *Cache) Get(id string) (song.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(context.Background()); err != nil {
		return song.Song{}, err
	}
	s, ok := c.byID[id]
	if !ok {
		return song.Song{}, song.ErrNotFound
	}
	return s, nil
}

// RandomSong picks uniformly among songs not in exclude, or returns song.ErrNoSongs
func (c *Cache) RandomSong(ctx context.Context, exclude []string) (song.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(ctx); err != nil {
		return song.Song{}, err
	}

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	candidates := make([]song.Song, 0, len(c.songs))
	for _, s := range c.songs {
		if !skip[s.ID] {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return song.Song{}, song.ErrNoSongs
	}
	return candidates[rand.IntN(len(candidates))], nil
}

// CoverPath returns the album art file for a song
func (c *Cache) CoverPath(id string) (string, error) {
	s, err := c.Get(id)
	if err != nil {
		return "", err
	}
	cover := findCover(filepath.Dir(s.Path))
	if cover == "" {
		return "", song.ErrNotFound
	}
	return cover, nil
}

// Invalidate drops the cached songs; the next read rescans
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.songs = nil
	c.byID = nil
	c.mu.Unlock()
}

// Rescan rebuilds the cache now and returns the song count
func (c *Cache) Rescan(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded = false
	if err := c.loadLocked(ctx); err != nil {
		return 0, err
	}
	return len(c.songs), nil
}
