// ABOUTME: In-process room store guarded by a mutex
// ABOUTME: Used by single-server deployments and tests
package store

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/julienbrs/blindtest-sub003/internal/room"
)

// Memory keeps rooms in a map
type Memory struct {
	mu    sync.Mutex
	rooms map[string]room.Room

	subMu sync.Mutex
	subs  map[chan string]struct{}
}

// NewMemory creates an empty memory store
func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]room.Room),
		subs:  make(map[chan string]struct{}),
	}
}

func (m *Memory) Create(ctx context.Context, r room.Room) error {
	m.mu.Lock()
	if _, ok := m.rooms[r.Code]; ok {
		m.mu.Unlock()
		return room.ErrRoomExists
	}
	m.rooms[r.Code] = r.Clone()
	m.mu.Unlock()

	m.publish(r.Code)
	return nil
}

func (m *Memory) Get(ctx context.Context, code string) (room.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return room.Room{}, room.ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, code string, fn room.UpdateFunc) (room.Room, error) {
	if err := ctx.Err(); err != nil {
		return room.Room{}, err
	}

	m.mu.Lock()
	current, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return room.Room{}, room.ErrRoomNotFound
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		m.mu.Unlock()
		if errors.Is(err, room.ErrUnchanged) {
			return current.Clone(), nil
		}
		return room.Room{}, err
	}
	next.Code = code
	next.Version = current.Version + 1
	m.rooms[code] = next.Clone()
	m.mu.Unlock()

	m.publish(code)
	return next, nil
}

func (m *Memory) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	_, ok := m.rooms[code]
	delete(m.rooms, code)
	m.mu.Unlock()

	if ok {
		m.publish(code)
	}
	return nil
}

func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// Changes returns a feed of written room codes until ctx is done
func (m *Memory) Changes(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 256)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	go func() {
		<-ctx.Done()
		m.subMu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.subMu.Unlock()
	}()
	return ch, nil
}

func (m *Memory) publish(code string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- code:
		default:
			log.Printf("Room change feed full, dropping update for %s", code)
		}
	}
}
