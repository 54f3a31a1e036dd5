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

// Package postgres is a pgx/v5-backed implementation of store.Store.
package postgres

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/store"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store implements store.Store on top of two tables: objects(hash, body)
// and object_versions(id_hash, version, hash). Version events are broadcast
// only to subscribers of this process; a multi-process deployment needs a
// LISTEN/NOTIFY bridge, which this package does not provide.
type Store struct {
	pool *pgxpool.Pool
	bc   *store.Broadcaster
}

// NewStore opens a connection pool and ensures the schema exists.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store/postgres: ping: %w", err)
	}

	s := &Store{pool: pool, bc: store.NewBroadcaster()}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS objects (
	hash BYTEA PRIMARY KEY,
	body BYTEA NOT NULL
);
CREATE TABLE IF NOT EXISTS object_versions (
	id_hash BYTEA NOT NULL,
	version INT NOT NULL,
	hash BYTEA NOT NULL,
	PRIMARY KEY (id_hash, version)
);
`)
	if err != nil {
		return fmt.Errorf("store/postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, data []byte) (model.Hash, error) {
	h := sha256.Sum256(data)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO objects (hash, body) VALUES ($1, $2) ON CONFLICT (hash) DO NOTHING`,
		h[:], data)
	if err != nil {
		return model.Hash{}, fmt.Errorf("store/postgres: put: %w", err)
	}
	return h, nil
}

func (s *Store) Get(ctx context.Context, hash model.Hash) ([]byte, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM objects WHERE hash = $1`, hash[:]).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store/postgres: get: %w", err)
	}
	return body, nil
}

func (s *Store) Exists(ctx context.Context, hash model.Hash) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM objects WHERE hash = $1)`, hash[:]).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store/postgres: exists: %w", err)
	}
	return exists, nil
}

func (s *Store) PutVersion(ctx context.Context, idHash, contentHash model.Hash) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store/postgres: put version: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// An advisory lock scoped to id_hash serializes the MAX(version)+1 read
	// against concurrent writers to the same channel: without it, two
	// transactions can both read the same MAX before either commits and
	// collide on the (id_hash, version) primary key.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, idHash.String()); err != nil {
		return 0, fmt.Errorf("store/postgres: put version: lock: %w", err)
	}

	var version int
	err = tx.QueryRow(ctx,
		`INSERT INTO object_versions (id_hash, version, hash)
		 VALUES ($1, COALESCE((SELECT MAX(version) + 1 FROM object_versions WHERE id_hash = $1), 0), $2)
		 RETURNING version`,
		idHash[:], contentHash[:]).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("store/postgres: put version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store/postgres: put version: commit: %w", err)
	}

	s.bc.Publish(store.VersionEvent{IDHash: idHash, Version: version, Hash: contentHash})
	return version, nil
}

func (s *Store) Versions(ctx context.Context, idHash model.Hash) ([]model.Hash, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT hash FROM object_versions WHERE id_hash = $1 ORDER BY version ASC`, idHash[:])
	if err != nil {
		return nil, fmt.Errorf("store/postgres: versions: %w", err)
	}
	defer rows.Close()

	var out []model.Hash
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store/postgres: versions scan: %w", err)
		}
		var h model.Hash
		copy(h[:], raw)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) Head(ctx context.Context, idHash model.Hash) (model.Hash, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT hash FROM object_versions WHERE id_hash = $1 ORDER BY version DESC LIMIT 1`,
		idHash[:]).Scan(&raw)
	if err == pgx.ErrNoRows {
		return model.Hash{}, store.ErrNotFound
	}
	if err != nil {
		return model.Hash{}, fmt.Errorf("store/postgres: head: %w", err)
	}
	var h model.Hash
	copy(h[:], raw)
	return h, nil
}

func (s *Store) Subscribe(handler func(store.VersionEvent)) store.Unsubscribe {
	return s.bc.Subscribe(handler)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ store.Store = (*Store)(nil)
