// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package store is the external content-addressed object store collaborator
// spec.md treats as out of scope: a minimal Get(hash)/Put(hash) blob store
// plus an id-hash version map and a broadcast hook standing in for the
// source system's onVersionedObj (spec.md §9).
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/sage-x-project/onesync/model"
)

// ErrNotFound is returned by Get/Head when the requested hash is unknown.
var ErrNotFound = errors.New("store: object not found")

// VersionEvent is delivered to every Subscribe-er when a new version is
// published for an id hash (ChannelInfo, Profile, Someone, Leute, ...).
type VersionEvent struct {
	IDHash  model.Hash
	Version int // 0-based index into the id hash's version list
	Hash    model.Hash
}

// Unsubscribe stops a Subscribe-registered handler from receiving further
// events.
type Unsubscribe func()

// Store is the external collaborator referenced throughout spec.md by
// get(hash)/put(hash): a content-addressed blob store with an additional
// id-hash version map used by every versioned object in §3 (ChannelInfo,
// Profile, Someone, Leute, ChannelRegistry).
type Store interface {
	// Put writes content addressed by its own hash and returns that hash.
	// Put is idempotent: writing the same bytes twice is a no-op the second
	// time.
	Put(ctx context.Context, data []byte) (model.Hash, error)

	// Get reads content previously written by Put. Returns ErrNotFound if
	// hash is unknown.
	Get(ctx context.Context, hash model.Hash) ([]byte, error)

	// Exists reports whether hash has been written.
	Exists(ctx context.Context, hash model.Hash) (bool, error)

	// PutVersion appends a new version (contentHash) for idHash and returns
	// its 0-based index. Every call to PutVersion fans out a VersionEvent to
	// subscribers, synchronously, after the write is durable.
	PutVersion(ctx context.Context, idHash model.Hash, contentHash model.Hash) (version int, err error)

	// Versions returns every content hash published for idHash, oldest
	// first.
	Versions(ctx context.Context, idHash model.Hash) ([]model.Hash, error)

	// Head returns the most recently published content hash for idHash.
	Head(ctx context.Context, idHash model.Hash) (model.Hash, error)

	// Subscribe registers handler to be called (synchronously, from the
	// calling goroutine of PutVersion) for every future version event. This
	// is the broadcast channel §9 calls "Global store hooks
	// (onVersionedObj)", consumed independently by the Channel Manager and
	// by any lazy update listener.
	Subscribe(handler func(VersionEvent)) Unsubscribe

	// Close releases any resources held by the store.
	Close() error
}

// PutObject is a convenience wrapper: it hashes v's canonical JSON encoding,
// writes it under that hash, and returns the hash.
func PutObject(ctx context.Context, s Store, v interface{}) (model.Hash, error) {
	h, b, err := model.HashOf(v)
	if err != nil {
		return model.Hash{}, err
	}
	if _, err := s.Put(ctx, b); err != nil {
		return model.Hash{}, err
	}
	return h, nil
}

// PutIDVersion hashes v's canonical content, writes it, and publishes it as
// the newest version for v's id hash. It is the standard way to write a new
// version of a versioned object (ChannelInfo, Profile, Someone, Leute).
func PutIDVersion(ctx context.Context, s Store, v model.Identifiable, content interface{}) (contentHash model.Hash, version int, err error) {
	idHash := model.IDHashOf(v)
	contentHash, b, err := model.HashOf(content)
	if err != nil {
		return model.Hash{}, 0, err
	}
	if _, err := s.Put(ctx, b); err != nil {
		return model.Hash{}, 0, err
	}
	version, err = s.PutVersion(ctx, idHash, contentHash)
	if err != nil {
		return model.Hash{}, 0, err
	}
	return contentHash, version, nil
}

// Broadcaster is shared by every Store implementation: it holds the
// subscriber list and fans VersionEvents out synchronously, from the
// goroutine that called PutVersion.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]func(VersionEvent)
	next int
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(VersionEvent))}
}

// Subscribe registers handler and returns a func that unregisters it.
func (b *Broadcaster) Subscribe(handler func(VersionEvent)) Unsubscribe {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = handler
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish fans ev out to every currently-registered subscriber.
func (b *Broadcaster) Publish(ev VersionEvent) {
	b.mu.Lock()
	handlers := make([]func(VersionEvent), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}
