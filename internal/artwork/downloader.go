// ABOUTME: Cover art cache for revealed songs
// ABOUTME: Downloads song covers from the server once and keeps them on disk
package artwork

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/julienbrs/blindtest-sub003/internal/version"
)

// ErrNoCover means the server has no art for the song
var ErrNoCover = errors.New("no cover art")

// Config holds downloader configuration
type Config struct {
	// CacheDir defaults to a blindtest-artwork folder in the temp dir
	CacheDir string
	Client   *http.Client
}

// Downloader manages artwork downloads
type Downloader struct {
	cacheDir string
	client   *http.Client

	mu          sync.Mutex
	currentPath string
}

// NewDownloader creates a new artwork downloader
func NewDownloader(config Config) (*Downloader, error) {
	if config.CacheDir == "" {
		config.CacheDir = filepath.Join(os.TempDir(), "blindtest-artwork")
	}
	if config.Client == nil {
		config.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if err := os.MkdirAll(config.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Downloader{
		cacheDir: config.CacheDir,
		client:   config.Client,
	}, nil
}

// Cover returns the cached cover of a song, downloading it from url on first use
func (d *Downloader) Cover(ctx context.Context, songID, url string) (string, error) {
	if url == "" {
		return "", ErrNoCover
	}

	key := cacheKey(songID)
	if matches, _ := filepath.Glob(filepath.Join(d.cacheDir, key+".*")); len(matches) > 0 {
		d.setCurrent(matches[0])
		return matches[0], nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build artwork request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	log.Printf("Downloading artwork: %s", url)
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoCover
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artwork download failed: HTTP %d", resp.StatusCode)
	}

	cachePath := filepath.Join(d.cacheDir, key+extensionFor(resp.Header.Get("Content-Type")))

	// Write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(d.cacheDir, key+"-*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save artwork: %w", err)
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save artwork: %w", err)
	}

	log.Printf("Artwork saved: %s", cachePath)
	d.setCurrent(cachePath)
	return cachePath, nil
}

func (d *Downloader) setCurrent(path string) {
	d.mu.Lock()
	d.currentPath = path
	d.mu.Unlock()
}

// CurrentPath returns the path to the most recently shown artwork
func (d *Downloader) CurrentPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentPath
}

func cacheKey(songID string) string {
	hash := sha256.Sum256([]byte(songID))
	return fmt.Sprintf("%x", hash[:8])
}

// extensionFor maps an image content type to a file extension
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".jpg"
	}
	switch strings.ToLower(mediaType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg" // Default to JPEG
	}
}

// Cleanup removes cached artwork
func (d *Downloader) Cleanup() error {
	return os.RemoveAll(d.cacheDir)
}
