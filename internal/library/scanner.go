// ABOUTME: Music directory scanner building the song library
// ABOUTME: Probes durations, derives names from files and hashes content for ids
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/julienbrs/blindtest-sub003/pkg/audio/decode"
	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

// coverNames are the image files accepted as album art, in priority order
var coverNames = []string{"cover.jpg", "cover.png", "folder.jpg", "folder.png"}

var yearSuffix = regexp.MustCompile(`\s*\((\d{4})\)$`)

// Scan walks root and returns every playable song. Unreadable files are logged and skipped.
func Scan(ctx context.Context, root string) ([]song.Song, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", root)
	}

	var songs []song.Song
	seen := make(map[string]bool)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("Library: skipping %s: %v", path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || decode.FormatForPath(path) == "" {
			return nil
		}

		s, err := scanFile(root, path)
		if err != nil {
			log.Printf("Library: skipping %s: %v", path, err)
			return nil
		}
		if seen[s.ID] {
			return nil
		}
		seen[s.ID] = true
		songs = append(songs, s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Library: scanned %d songs under %s", len(songs), root)
	return songs, nil
}

func scanFile(root, path string) (song.Song, error) {
	format, duration, err := decode.Probe(path)
	if err != nil {
		return song.Song{}, err
	}

	id, err := hashFile(path)
	if err != nil {
		return song.Song{}, err
	}

	artist, title := parseName(filepath.Base(path))
	album, year := parseAlbum(root, filepath.Dir(path))

	return song.Song{
		ID:       id,
		Title:    title,
		Artist:   artist,
		Album:    album,
		Year:     year,
		Duration: duration,
		Format:   format,
		HasCover: findCover(filepath.Dir(path)) != "",
		Path:     path,
	}, nil
}

// parseName splits "Artist - Title.ext". Without a separator the whole name is the title.
func parseName(base string) (artist, title string) {
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, "_", " ")
	if i := strings.Index(name, " - "); i > 0 {
		return strings.TrimSpace(name[:i]), strings.TrimSpace(name[i+3:])
	}
	return "", strings.TrimSpace(name)
}

// parseAlbum uses the containing folder as album, with an optional "(1999)" suffix as year
func parseAlbum(root, dir string) (string, int) {
	if filepath.Clean(dir) == filepath.Clean(root) {
		return "", 0
	}
	album := filepath.Base(dir)
	if m := yearSuffix.FindStringSubmatch(album); m != nil {
		year, _ := strconv.Atoi(m[1])
		return strings.TrimSpace(strings.TrimSuffix(album, m[0])), year
	}
	return album, 0
}

func findCover(dir string) string {
	for _, name := range coverNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
