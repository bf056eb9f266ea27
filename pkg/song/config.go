// ABOUTME: Game configuration with bounds and defaults
// ABOUTME: Used at solo start and as the multiplayer room settings record
package song

import (
	"errors"
	"fmt"
)

// GuessMode selects what the player has to name
type GuessMode string

const (
	GuessTitle  GuessMode = "title"
	GuessArtist GuessMode = "artist"
	GuessBoth   GuessMode = "both"
)

// Bounds and defaults for GameConfig
const (
	MinClipDuration     = 5
	MaxClipDuration     = 60
	DefaultClipDuration = 20

	MinAnswerTime     = 3
	MaxAnswerTime     = 60
	DefaultAnswerTime = 10

	MinPlayers        = 2
	MaxPlayers        = 16
	DefaultMaxPlayers = 8
)

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid game config")

// GameConfig is supplied at game start. Solo games never change it;
// a multiplayer host may replace it while the room is waiting.
type GameConfig struct {
	GuessMode    GuessMode `json:"guess_mode"`
	ClipDuration int       `json:"clip_duration"`
	AnswerTime   int       `json:"answer_time"`

	// Multiplayer only
	Rounds     int `json:"rounds,omitempty"`
	MaxPlayers int `json:"max_players,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() GameConfig {
	return GameConfig{
		GuessMode:    GuessBoth,
		ClipDuration: DefaultClipDuration,
		AnswerTime:   DefaultAnswerTime,
		MaxPlayers:   DefaultMaxPlayers,
	}
}

// Normalize fills zero fields with defaults and clamps the rest into bounds
func (c GameConfig) Normalize() GameConfig {
	switch c.GuessMode {
	case GuessTitle, GuessArtist, GuessBoth:
	default:
		c.GuessMode = GuessBoth
	}
	if c.ClipDuration == 0 {
		c.ClipDuration = DefaultClipDuration
	}
	c.ClipDuration = clamp(c.ClipDuration, MinClipDuration, MaxClipDuration)
	if c.AnswerTime == 0 {
		c.AnswerTime = DefaultAnswerTime
	}
	c.AnswerTime = clamp(c.AnswerTime, MinAnswerTime, MaxAnswerTime)
	if c.MaxPlayers == 0 {
		c.MaxPlayers = DefaultMaxPlayers
	}
	c.MaxPlayers = clamp(c.MaxPlayers, MinPlayers, MaxPlayers)
	if c.Rounds < 0 {
		c.Rounds = 0
	}
	return c
}

// Validate reports the first out-of-range field
func (c GameConfig) Validate() error {
	switch c.GuessMode {
	case GuessTitle, GuessArtist, GuessBoth:
	default:
		return fmt.Errorf("%w: unknown guess mode %q", ErrInvalidConfig, c.GuessMode)
	}
	if c.ClipDuration < MinClipDuration || c.ClipDuration > MaxClipDuration {
		return fmt.Errorf("%w: clip duration %ds outside %d-%d", ErrInvalidConfig, c.ClipDuration, MinClipDuration, MaxClipDuration)
	}
	if c.AnswerTime < MinAnswerTime || c.AnswerTime > MaxAnswerTime {
		return fmt.Errorf("%w: answer time %ds outside %d-%d", ErrInvalidConfig, c.AnswerTime, MinAnswerTime, MaxAnswerTime)
	}
	if c.MaxPlayers != 0 && (c.MaxPlayers < MinPlayers || c.MaxPlayers > MaxPlayers) {
		return fmt.Errorf("%w: max players %d outside %d-%d", ErrInvalidConfig, c.MaxPlayers, MinPlayers, MaxPlayers)
	}
	if c.Rounds < 0 {
		return fmt.Errorf("%w: negative round count", ErrInvalidConfig)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
