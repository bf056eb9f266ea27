// ABOUTME: Package documentation for room stores
// ABOUTME: Memory and Redis implementations of room.Store
// Package store implements room.Store.
//
// Memory serves a single server process. Redis lets several servers share
// rooms: updates use WATCH/MULTI so concurrent writers never lose an update,
// and every write is published so each server can push fresh snapshots to
// its own sockets.
package store
