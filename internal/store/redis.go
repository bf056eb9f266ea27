// ABOUTME: Redis room store using optimistic transactions and pub/sub
// ABOUTME: Lets several server instances share the same rooms
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/julienbrs/blindtest-sub003/internal/room"
	"github.com/redis/go-redis/v9"
)

const (
	roomKeyPrefix = "blindtest:room:"
	roomIndexKey  = "blindtest:rooms"
	changeChannel = "blindtest:room-changes"

	// RoomTTL expires abandoned rooms
	RoomTTL = 24 * time.Hour

	maxTxRetries = 16
)

// Redis stores rooms as JSON values and publishes every write
type Redis struct {
	client *redis.Client
}

// NewRedis connects to addr, which is either host:port or a redis:// URL
func NewRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	var opt *redis.Options
	if parsed, err := redis.ParseURL(addr); err == nil {
		opt = parsed
	} else {
		opt = &redis.Options{Addr: addr, DB: db}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", room.ErrUnavailable, err)
	}
	log.Printf("Connected to Redis at %s", opt.Addr)
	return &Redis{client: client}, nil
}

// Close releases the connection pool
func (s *Redis) Close() error {
	return s.client.Close()
}

func roomKey(code string) string {
	return roomKeyPrefix + code
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", room.ErrUnavailable, err)
}

func (s *Redis) Create(ctx context.Context, r room.Room) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("error marshaling room: %w", err)
	}

	created, err := s.client.SetNX(ctx, roomKey(r.Code), data, RoomTTL).Result()
	if err != nil {
		return unavailable(err)
	}
	if !created {
		return room.ErrRoomExists
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, roomIndexKey, r.Code)
	pipe.Publish(ctx, changeChannel, r.Code)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, code string) (room.Room, error) {
	data, err := s.client.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return room.Room{}, room.ErrRoomNotFound
	}
	if err != nil {
		return room.Room{}, unavailable(err)
	}
	return decodeRoom(data)
}

// Update runs fn inside WATCH/MULTI and retries when another writer got there first
func (s *Redis) Update(ctx context.Context, code string, fn room.UpdateFunc) (room.Room, error) {
	key := roomKey(code)
	var result room.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return room.ErrRoomNotFound
		}
		if err != nil {
			return unavailable(err)
		}

		current, err := decodeRoom(data)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			if errors.Is(err, room.ErrUnchanged) {
				result = current
				return nil
			}
			return err
		}
		next.Code = code
		next.Version = current.Version + 1

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("error marshaling room: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, RoomTTL)
			pipe.Publish(ctx, changeChannel, code)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return room.Room{}, err
		}
		return result, nil
	}
	return room.Room{}, room.ErrConflict
}

func (s *Redis) Delete(ctx context.Context, code string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, roomKey(code))
	pipe.SRem(ctx, roomIndexKey, code)
	pipe.Publish(ctx, changeChannel, code)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// List returns indexed rooms whose record still exists, pruning expired ones
func (s *Redis) List(ctx context.Context) ([]string, error) {
	codes, err := s.client.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	live := codes[:0]
	for _, code := range codes {
		n, err := s.client.Exists(ctx, roomKey(code)).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		if n == 0 {
			s.client.SRem(ctx, roomIndexKey, code)
			continue
		}
		live = append(live, code)
	}
	return live, nil
}

// Changes subscribes to the change channel until ctx is done
func (s *Redis) Changes(ctx context.Context) (<-chan string, error) {
	sub := s.client.Subscribe(ctx, changeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, unavailable(err)
	}

	out := make(chan string, 256)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
					log.Printf("Room change feed full, dropping update for %s", msg.Payload)
				}
			}
		}
	}()
	return out, nil
}

func decodeRoom(data []byte) (room.Room, error) {
	var r room.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return room.Room{}, fmt.Errorf("error unmarshaling room: %w", err)
	}
	return r, nil
}
