// ABOUTME: Room errors with stable wire codes and the next action offered to the user
// ABOUTME: Expected races are sentinels, never panics
package room

import (
	"errors"

	"github.com/julienbrs/blindtest-sub003/pkg/song"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room code already in use")
	ErrRoomFull        = errors.New("room is full")
	ErrGameStarted     = errors.New("game already started")
	ErrAvatarTaken     = errors.New("avatar already taken")
	ErrInvalidNickname = errors.New("nickname is required")
	ErrInvalidAvatar   = errors.New("avatar is required")
	ErrPlayerNotFound  = errors.New("player not in room")
	ErrNotHost         = errors.New("only the host can do that")
	ErrCannotKickSelf  = errors.New("the host cannot kick themself")
	ErrAlreadyBuzzed   = errors.New("someone already buzzed")
	ErrStaleRound      = errors.New("round is over")
	ErrRoundNotStarted = errors.New("round has not started yet")
	ErrInvalidPhase    = errors.New("not possible at this point of the round")
	ErrNoBuzz          = errors.New("nobody buzzed")
	ErrConflict        = errors.New("room changed concurrently, try again")
	ErrInvalidSettings = song.ErrInvalidConfig
	ErrUnavailable     = errors.New("room store unavailable")
)

// ErrUnchanged aborts a Store.Update without writing and without failing
var ErrUnchanged = errors.New("room unchanged")

// Next actions offered with a failure
const (
	ActionRetry       = "retry"
	ActionChooseAgain = "choose_again"
	ActionGoHome      = "go_home"
	ActionNone        = "none"
)

var codes = []struct {
	err    error
	code   string
	action string
}{
	{ErrRoomNotFound, "room_not_found", ActionGoHome},
	{ErrRoomExists, "room_exists", ActionRetry},
	{ErrRoomFull, "room_full", ActionGoHome},
	{ErrGameStarted, "game_started", ActionGoHome},
	{ErrAvatarTaken, "avatar_taken", ActionChooseAgain},
	{ErrInvalidNickname, "invalid_nickname", ActionChooseAgain},
	{ErrInvalidAvatar, "invalid_avatar", ActionChooseAgain},
	{ErrPlayerNotFound, "player_not_found", ActionGoHome},
	{ErrNotHost, "not_host", ActionNone},
	{ErrCannotKickSelf, "cannot_kick_self", ActionNone},
	{ErrAlreadyBuzzed, "already_buzzed", ActionNone},
	{ErrStaleRound, "stale_round", ActionNone},
	{ErrRoundNotStarted, "round_not_started", ActionNone},
	{ErrInvalidPhase, "invalid_phase", ActionNone},
	{ErrNoBuzz, "no_buzz", ActionNone},
	{ErrConflict, "conflict", ActionRetry},
	{ErrInvalidSettings, "invalid_settings", ActionChooseAgain},
	{ErrUnavailable, "unavailable", ActionRetry},
}

// Code maps an error to its wire code. Unknown errors are "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// NextAction maps an error to what the user can do about it
func NextAction(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.action
		}
	}
	return ActionRetry
}
