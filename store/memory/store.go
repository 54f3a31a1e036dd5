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

// Package memory is an in-process implementation of store.Store, used by
// tests and by single-instance deployments that don't need durability.
package memory

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/store"
)

// Store is a mutex-guarded in-memory object store. The zero value is not
// usable; construct with New.
type Store struct {
	mu       sync.RWMutex
	objects  map[model.Hash][]byte
	versions map[model.Hash][]model.Hash

	bc *store.Broadcaster
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		objects:  make(map[model.Hash][]byte),
		versions: make(map[model.Hash][]model.Hash),
		bc:       store.NewBroadcaster(),
	}
}

func (s *Store) Put(_ context.Context, data []byte) (model.Hash, error) {
	h := sha256.Sum256(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[h]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.objects[h] = cp
	}
	return h, nil
}

func (s *Store) Get(_ context.Context, hash model.Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (s *Store) Exists(_ context.Context, hash model.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[hash]
	return ok, nil
}

func (s *Store) PutVersion(_ context.Context, idHash, contentHash model.Hash) (int, error) {
	s.mu.Lock()
	s.versions[idHash] = append(s.versions[idHash], contentHash)
	version := len(s.versions[idHash]) - 1
	s.mu.Unlock()

	s.bc.Publish(store.VersionEvent{IDHash: idHash, Version: version, Hash: contentHash})
	return version, nil
}

func (s *Store) Versions(_ context.Context, idHash model.Hash) ([]model.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs := s.versions[idHash]
	cp := make([]model.Hash, len(vs))
	copy(cp, vs)
	return cp, nil
}

func (s *Store) Head(ctx context.Context, idHash model.Hash) (model.Hash, error) {
	vs, err := s.Versions(ctx, idHash)
	if err != nil {
		return model.Hash{}, err
	}
	if len(vs) == 0 {
		return model.Hash{}, store.ErrNotFound
	}
	return vs[len(vs)-1], nil
}

func (s *Store) Subscribe(handler func(store.VersionEvent)) store.Unsubscribe {
	return s.bc.Subscribe(handler)
}

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
