// ABOUTME: Persistence contract for room records
// ABOUTME: Implemented in memory and on Redis by package store
package room

import "context"

// UpdateFunc mutates a room in place. Returning an error aborts the write;
// ErrUnchanged aborts it without failing the update.
type UpdateFunc func(r *Room) error

// Store holds the authoritative room records
type Store interface {
	// Create stores a new room, failing with ErrRoomExists when the code is taken
	Create(ctx context.Context, r Room) error
	// Get returns a room or ErrRoomNotFound
	Get(ctx context.Context, code string) (Room, error)
	// Update applies fn atomically, bumps Version and returns the committed room.
	// fn may run more than once when writers race.
	Update(ctx context.Context, code string, fn UpdateFunc) (Room, error)
	Delete(ctx context.Context, code string) error
	// List returns every room code
	List(ctx context.Context) ([]string, error)
	// Changes streams the codes of rooms after each write, until ctx is done
	Changes(ctx context.Context) (<-chan string, error)
}
