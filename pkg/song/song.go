// ABOUTME: Song and game configuration data model
// ABOUTME: Shared by the library, the state machines and the wire protocol
package song

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSongs means every song of the library is excluded. It ends a game normally.
var ErrNoSongs = errors.New("no songs left")

// ErrNotFound is returned for unknown song ids
var ErrNotFound = errors.New("song not found")

// Audio container formats the library accepts
const (
	FormatMP3  = "mp3"
	FormatFLAC = "flac"
	FormatWAV  = "wav"
	FormatOpus = "opus"
)

// Song is an immutable scanned audio file. Its identity is the content hash.
type Song struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album,omitempty"`
	Year     int     `json:"year,omitempty"`
	Duration float64 `json:"duration"`
	Format   string  `json:"format"`
	HasCover bool    `json:"has_cover"`

	// Path is the file on the server and never leaves it
	Path string `json:"-"`
}

// String formats the song for logs and reveal screens
func (s Song) String() string {
	if s.Artist == "" {
		return s.Title
	}
	return fmt.Sprintf("%s - %s", s.Artist, s.Title)
}

// ContentType returns the MIME type served for the song's format
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatMP3:
		return "audio/mpeg"
	case FormatFLAC:
		return "audio/flac"
	case FormatWAV:
		return "audio/wav"
	case FormatOpus:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// FormatFromContentType is the inverse of ContentType. Returns "" for unknown types.
func FormatFromContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "audio/mpeg", "audio/mp3":
		return FormatMP3
	case "audio/flac", "audio/x-flac":
		return FormatFLAC
	case "audio/wav", "audio/x-wav", "audio/wave":
		return FormatWAV
	case "audio/ogg", "audio/opus":
		return FormatOpus
	default:
		return ""
	}
}
