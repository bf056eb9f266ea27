// ABOUTME: Package documentation for the solo game state machine
// ABOUTME: Describes the pure transition function and the serializing Machine
/*
Package game implements the solo blindtest state machine.

Transition is a pure function from a State and an Action to the next State
and the side effects to perform. Pairs the table does not list return the
state unchanged with no effects, so no sequence of actions can reach an
undefined state.

Machine wraps Transition with the real collaborators: a song source, the
audio engine and a clock. Actions are processed strictly one at a time;
actions dispatched while another is being processed (from engine callbacks,
timers or observers) are queued behind it.

	m := game.NewMachine(game.Config{Source: api, Player: eng})
	m.Dispatch(game.StartGame{Config: song.DefaultConfig()})
*/
package game
