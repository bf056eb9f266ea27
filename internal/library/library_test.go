// ABOUTME: Tests for the library scanner, cache and watcher
// ABOUTME: Builds small WAV trees in temp directories
package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// writeWAV writes one second of mono audio; seed makes the content (and id) unique
func writeWAV(t *testing.T, path string, seed int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	data := make([]int, 8000)
	for i := range data {
		data[i] = (i*seed)%2000 - 1000
	}
	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: 8000}, Data: data, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()
}

func TestParseName(t *testing.T) {
	tests := []struct {
		base, artist, title string
	}{
		{"Daft Punk - One More Time.mp3", "Daft Punk", "One More Time"},
		{"Nina_Simone - Feeling_Good.flac", "Nina Simone", "Feeling Good"},
		{"untitled.wav", "", "untitled"},
		{"A - B - C.opus", "A", "B - C"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			artist, title := parseName(tt.base)
			if artist != tt.artist || title != tt.title {
				t.Errorf("got %q/%q, want %q/%q", artist, title, tt.artist, tt.title)
			}
		})
	}
}

func TestParseAlbum(t *testing.T) {
	album, year := parseAlbum("/music", "/music/Discovery (2001)")
	if album != "Discovery" || year != 2001 {
		t.Errorf("got %q %d", album, year)
	}
	if album, _ := parseAlbum("/music", "/music"); album != "" {
		t.Errorf("root must have no album, got %q", album)
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "Artist - First.wav"), 1)
	writeWAV(t, filepath.Join(root, "Album (1999)", "Band - Second.wav"), 2)
	writeWAV(t, filepath.Join(root, "Album (1999)", "copy of second.wav"), 2)
	writeWAV(t, filepath.Join(root, ".hidden", "Nope - Hidden.wav"), 3)
	os.WriteFile(filepath.Join(root, "Album (1999)", "cover.jpg"), []byte("jpg"), 0o644)
	os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(root, "Broken - Song.flac"), []byte("not audio"), 0o644)

	songs, err := Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("expected 2 songs (duplicate content, hidden, broken skipped), got %d", len(songs))
	}

	byTitle := map[string]song.Song{}
	for _, s := range songs {
		byTitle[s.Title] = s
	}

	first := byTitle["First"]
	if first.Artist != "Artist" || first.HasCover || first.Format != song.FormatWAV {
		t.Errorf("unexpected first song %+v", first)
	}
	if first.Duration < 0.99 || first.Duration > 1.01 {
		t.Errorf("expected 1s duration, got %f", first.Duration)
	}
	if len(first.ID) != 64 {
		t.Errorf("expected sha256 hex id, got %q", first.ID)
	}

	second := byTitle["Second"]
	if second.Album != "Album" || second.Year != 1999 || !second.HasCover {
		t.Errorf("unexpected second song %+v", second)
	}
}

func TestScanMissingRoot(t *testing.T) {
	if _, err := Scan(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected an error for a missing root")
	}
}

func fixedCache(songs []song.Song, calls *int32) *Cache {
	c := NewCache("/music")
	c.scan = func(ctx context.Context, root string) ([]song.Song, error) {
		atomic.AddInt32(calls, 1)
		return songs, nil
	}
	return c
}

func TestCacheRandomSongExcludes(t *testing.T) {
	var calls int32
	c := fixedCache([]song.Song{{ID: "a"}, {ID: "b"}, {ID: "c"}}, &calls)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		s, err := c.RandomSong(ctx, []string{"a", "c"})
		if err != nil || s.ID != "b" {
			t.Fatalf("expected b, got %v %v", s.ID, err)
		}
	}

	_, err := c.RandomSong(ctx, []string{"a", "b", "c"})
	if !errors.Is(err, song.ErrNoSongs) {
		t.Errorf("expected ErrNoSongs, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single scan, got %d", calls)
	}
}

func TestCacheInvalidateAndRescan(t *testing.T) {
	var calls int32
	c := fixedCache([]song.Song{{ID: "a"}}, &calls)
	ctx := context.Background()

	c.Songs(ctx)
	c.Songs(ctx)
	if calls != 1 {
		t.Fatalf("expected cached listing, got %d scans", calls)
	}

	c.Invalidate()
	if _, err := c.Get("a"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a rescan after Invalidate, got %d", calls)
	}

	n, err := c.Rescan(ctx)
	if err != nil || n != 1 || calls != 3 {
		t.Errorf("Rescan: n=%d err=%v calls=%d", n, err, calls)
	}

	if _, err := c.Get("zzz"); !errors.Is(err, song.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCacheCoverPath(t *testing.T) {
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "Album", "A - B.wav"), 1)
	writeWAV(t, filepath.Join(root, "A - C.wav"), 2)
	os.WriteFile(filepath.Join(root, "Album", "folder.jpg"), []byte("jpg"), 0o644)

	c := NewCache(root)
	songs, err := c.Songs(context.Background())
	if err != nil || len(songs) != 2 {
		t.Fatalf("Songs: %v %v", songs, err)
	}

	for _, s := range songs {
		path, err := c.CoverPath(s.ID)
		if s.HasCover {
			if err != nil || filepath.Base(path) != "folder.jpg" {
				t.Errorf("expected folder.jpg, got %q %v", path, err)
			}
		} else if !errors.Is(err, song.ErrNotFound) {
			t.Errorf("expected ErrNotFound without cover, got %v", err)
		}
	}
}

type countingInvalidator struct {
	n atomic.Int32
}

func (c *countingInvalidator) Invalidate() { c.n.Add(1) }

func TestWatcherInvalidatesOnNewSong(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "sub"), 0o755)

	target := &countingInvalidator{}
	changed := make(chan struct{}, 4)
	w, err := NewWatcher(WatcherConfig{
		Root:     root,
		Target:   target,
		Debounce: 50 * time.Millisecond,
		OnChange: func() { changed <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	writeWAV(t, filepath.Join(root, "sub", "A - New.wav"), 5)

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("expected an invalidation")
	}
	if target.n.Load() < 1 {
		t.Error("expected the cache to be invalidated")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	target := &countingInvalidator{}
	w, err := NewWatcher(WatcherConfig{Root: root, Target: target, Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644)
	time.Sleep(200 * time.Millisecond)
	if target.n.Load() != 0 {
		t.Errorf("expected no invalidation for a text file, got %d", target.n.Load())
	}
}
