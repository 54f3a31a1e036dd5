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

// Package channel implements the Channel Manager (§4.4): a set of
// append-only chains, each identified by (id, owner), merged from
// concurrently-posted versions of their ChannelInfo head.
package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/events"
	"github.com/sage-x-project/onesync/internal/keyedmutex"
	"github.com/sage-x-project/onesync/internal/metrics"
	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/store"
)

// DefaultMergeConcurrency bounds how many channels may have a background
// merge pass running at once (§5's "different channels may proceed in
// parallel").
const DefaultMergeConcurrency = 8

// UpdatedEvent is emitted once per merged version, after the registry
// snapshot that records it has been persisted (§5's ordering guarantee).
type UpdatedEvent struct {
	ChannelID string
	Owner     model.Hash
}

// cacheEntry is the per-channel bookkeeping row from §4.4: the most
// recently merged ChannelInfo plus the version-map indices needed to know
// what still needs merging.
type cacheEntry struct {
	readVersion              model.ChannelInfo
	readVersionIndex         int
	latestMergedVersionIndex int
}

// Manager is the Channel Manager. One Manager instance serves every channel
// known to a single store.
type Manager struct {
	st store.Store

	locks      *keyedmutex.Registry // cacheLock[idHash]
	postMu     sync.Mutex           // postLock
	postNEMu   sync.Mutex           // postNELock
	registryMu sync.Mutex           // registryLock

	cacheMu sync.RWMutex
	cache   map[model.Hash]*cacheEntry

	group *errgroup.Group

	onUpdated *events.Event[UpdatedEvent]

	unsubscribe store.Unsubscribe

	shutdownOnce sync.Once
}

// NewManager returns a Manager backed by st, running up to mergeConcurrency
// background merge passes at once. mergeConcurrency <= 0 uses
// DefaultMergeConcurrency.
func NewManager(st store.Store, mergeConcurrency int) *Manager {
	if mergeConcurrency <= 0 {
		mergeConcurrency = DefaultMergeConcurrency
	}
	g := &errgroup.Group{}
	g.SetLimit(mergeConcurrency)

	m := &Manager{
		st:        st,
		locks:     keyedmutex.NewRegistry(),
		cache:     make(map[model.Hash]*cacheEntry),
		group:     g,
		onUpdated: events.New[UpdatedEvent](),
	}
	m.unsubscribe = st.Subscribe(m.onStoreVersion)
	return m
}

// OnUpdated fires once per merged version (§5 "onUpdated(id, owner)").
func (m *Manager) OnUpdated() *events.Event[UpdatedEvent] { return m.onUpdated }

func cacheLockKey(idHash model.Hash) string { return "channel:" + idHash.String() }

// CreateChannel registers a new, empty channel (id, owner). Creating a
// channel that already exists is a no-op that returns the existing
// ChannelInfo, matching the idempotent-create convention used elsewhere in
// the store (Put is itself idempotent).
func (m *Manager) CreateChannel(ctx context.Context, id string, owner model.Hash) (model.ChannelInfo, error) {
	ci := model.ChannelInfo{ChannelID: id, Owner: owner}
	idHash := ci.ID()

	unlock := m.locks.Lock(cacheLockKey(idHash))
	defer unlock()

	if entry, ok := m.getCache(idHash); ok {
		return entry.readVersion, nil
	}

	m.postMu.Lock()
	_, _, err := store.PutIDVersion(ctx, m.st, ci, ci)
	m.postMu.Unlock()
	if err != nil {
		return model.ChannelInfo{}, fmt.Errorf("%w: %v", errs.StoreError, err)
	}

	m.cacheMu.Lock()
	m.cache[idHash] = &cacheEntry{readVersion: ci, readVersionIndex: 0, latestMergedVersionIndex: 0}
	m.cacheMu.Unlock()

	if err := m.persistRegistry(ctx); err != nil {
		return model.ChannelInfo{}, err
	}
	return ci, nil
}

func (m *Manager) getCache(idHash model.Hash) (*cacheEntry, bool) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	e, ok := m.cache[idHash]
	return e, ok
}

// PostToChannel implements post_to_channel (§4.4): it appends data as a new
// entry built on the channel's current head, publishes a new ChannelInfo
// version, and does not return until that contribution has been merged into
// the cache's readVersion.
//
// The post's own merge pass runs inline, synchronously, while still holding
// the channel's cacheLock — a simplification of the spec's "register a
// one-shot handler, await the store-version hook" description. Since
// cacheLock already serializes post and merge for one channel, running the
// merge out-of-line via the same background worker pool used for
// externally-observed versions would just re-acquire a lock this goroutine
// already holds, deadlocking. Background merges triggered by
// onStoreVersion (e.g. a concurrent poster's write) still go through the
// worker pool.
func (m *Manager) PostToChannel(ctx context.Context, id string, owner model.Hash, data []byte, timestamp *int64) (err error) {
	start := time.Now()
	metrics.PostSize.Observe(float64(len(data)))
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.ChannelPostsProcessed.WithLabelValues("object", status).Inc()
		metrics.PostProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	ciKey := model.ChannelInfo{ChannelID: id, Owner: owner}
	idHash := ciKey.ID()

	unlock := m.locks.Lock(cacheLockKey(idHash))
	defer unlock()

	entry, ok := m.getCache(idHash)
	if !ok {
		return errs.ChannelNotFound
	}

	ts := nowMillis()
	if timestamp != nil {
		ts = *timestamp
	}

	m.postMu.Lock()
	err = m.appendEntry(ctx, entry, ts, data)
	m.postMu.Unlock()
	if err != nil {
		return err
	}

	if err = m.runMergePass(ctx, idHash); err != nil {
		return err
	}
	return nil
}

// appendEntry writes the new CreationTime + ChannelEntry blobs and publishes
// the resulting ChannelInfo as a new version, all under postMu.
func (m *Manager) appendEntry(ctx context.Context, entry *cacheEntry, ts int64, data []byte) error {
	dataHash, err := m.st.Put(ctx, data)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}

	ct := model.CreationTime{Timestamp: ts, Data: dataHash}
	ctHash, ctBytes, err := model.HashOf(ct)
	if err != nil {
		return err
	}
	if _, err := m.st.Put(ctx, ctBytes); err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}

	newEntry := model.ChannelEntry{Previous: entry.readVersion.Head, Data: ctHash}
	entryHash, entryBytes, err := model.HashOf(newEntry)
	if err != nil {
		return err
	}
	if _, err := m.st.Put(ctx, entryBytes); err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}

	newCI := model.ChannelInfo{ChannelID: entry.readVersion.ChannelID, Owner: entry.readVersion.Owner, Head: entryHash}
	if _, _, err := store.PutIDVersion(ctx, m.st, newCI, newCI); err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	return nil
}

func (m *Manager) onStoreVersion(ev store.VersionEvent) {
	if _, tracked := m.getCache(ev.IDHash); !tracked {
		return
	}
	idHash := ev.IDHash
	m.group.Go(func() error {
		_ = m.mergeLocked(context.Background(), idHash)
		return nil
	})
}

// mergeLocked acquires the channel's cacheLock and runs one merge pass.
// Used by the background worker; PostToChannel instead calls the
// lock-already-held variant via its own cacheLock scope.
func (m *Manager) mergeLocked(ctx context.Context, idHash model.Hash) error {
	unlock := m.locks.Lock(cacheLockKey(idHash))
	defer unlock()
	return m.runMergePass(ctx, idHash)
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Shutdown stops accepting new background merges and waits for in-flight
// ones to finish.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		_ = m.group.Wait()
	})
}

// sortedHashes returns keys sorted by hex string, for deterministic
// iteration order where the spec doesn't otherwise constrain it.
func sortedHashes(m map[model.Hash]struct{}) []model.Hash {
	out := make([]model.Hash, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
