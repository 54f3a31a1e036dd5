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

package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/internal/metrics"
	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/store"
)

// rawEntry is one node of a channel chain, decoded for merge comparison.
type rawEntry struct {
	entryHash        model.Hash // ChannelEntry.Hash() — identifies shared history
	previous         model.Hash // ChannelEntry.Previous
	creationTimeHash model.Hash // CreationTime.Hash()
	timestamp        int64
	dataHash         model.Hash // CreationTime.Data, the posted payload's hash
}

// chainIter walks a channel chain backwards from head, one ChannelEntry at
// a time, loading each node from the store on demand.
type chainIter struct {
	ctx  context.Context
	st   store.Store
	next model.Hash // hash of the ChannelEntry to load next, or Zero when exhausted

	cur    rawEntry
	curSet bool
}

func newChainIter(ctx context.Context, st store.Store, head model.Hash) *chainIter {
	if head.IsZero() {
		return nil
	}
	return &chainIter{ctx: ctx, st: st, next: head}
}

// peek returns the iterator's current front item, loading it on first use.
func (it *chainIter) peek() (rawEntry, bool, error) {
	if it == nil {
		return rawEntry{}, false, nil
	}
	if it.curSet {
		return it.cur, true, nil
	}
	if it.next.IsZero() {
		return rawEntry{}, false, nil
	}

	entryBytes, err := it.st.Get(it.ctx, it.next)
	if err != nil {
		return rawEntry{}, false, fmt.Errorf("%w: load channel entry: %v", errs.StoreError, err)
	}
	var entry model.ChannelEntry
	if err := json.Unmarshal(entryBytes, &entry); err != nil {
		return rawEntry{}, false, fmt.Errorf("%w: decode channel entry: %v", errs.MergeInconsistency, err)
	}

	ctBytes, err := it.st.Get(it.ctx, entry.Data)
	if err != nil {
		return rawEntry{}, false, fmt.Errorf("%w: load creation time: %v", errs.StoreError, err)
	}
	var ct model.CreationTime
	if err := json.Unmarshal(ctBytes, &ct); err != nil {
		return rawEntry{}, false, fmt.Errorf("%w: decode creation time: %v", errs.MergeInconsistency, err)
	}

	it.cur = rawEntry{
		entryHash:        it.next,
		previous:         entry.Previous,
		creationTimeHash: ct.Hash(),
		timestamp:        ct.Timestamp,
		dataHash:         ct.Data,
	}
	it.curSet = true
	return it.cur, true, nil
}

// advance discards the current front item, moving to its predecessor.
func (it *chainIter) advance() {
	if it == nil {
		return
	}
	it.next = it.cur.previous
	it.curSet = false
}

// entryLess orders two rawEntry fronts for the most-current merge iterator:
// greatest timestamp first, ties broken by greater creationTimeHash.
func entryLess(a, b rawEntry) bool {
	if a.timestamp != b.timestamp {
		return a.timestamp < b.timestamp
	}
	return a.creationTimeHash.String() < b.creationTimeHash.String()
}

func intInSlice(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// mostCurrentMerge runs the merge iterator described in §4.4 steps 2-4.
// baseline walks the channel's already-merged head (nil for a channel with
// no prior content); branches walks every other distinct head introduced
// since the last merge. It returns the unmerged entries newest-first and
// the common-history head's entry hash.
//
// Termination only short-circuits once the surviving iterator is
// baseline itself — that is the one case where "current front" is known to
// already be reflected in readVersion and must not be re-emitted. With no
// baseline (a channel whose first-ever posts are racing), there is no
// already-known history to stop at, so every branch drains all the way to
// genesis (ZeroHash) and all of it is emitted.
func mostCurrentMerge(baseline *chainIter, branches []*chainIter) ([]rawEntry, model.Hash, error) {
	active := make([]*chainIter, 0, len(branches)+1)
	for _, it := range branches {
		if it != nil {
			active = append(active, it)
		}
	}
	if baseline != nil {
		active = append(active, baseline)
	}

	var emitted []rawEntry
	for {
		if baseline != nil && len(active) == 1 && active[0] == baseline {
			front, ok, err := active[0].peek()
			if err != nil {
				return nil, model.Hash{}, err
			}
			if ok {
				return emitted, front.entryHash, nil
			}
			return emitted, model.ZeroHash, nil
		}
		if len(active) == 0 {
			return emitted, model.ZeroHash, nil
		}

		maxIdx := -1
		var maxFront rawEntry
		for i, it := range active {
			front, ok, err := it.peek()
			if err != nil {
				return nil, model.Hash{}, err
			}
			if !ok {
				continue
			}
			if maxIdx == -1 || entryLess(maxFront, front) {
				maxIdx = i
				maxFront = front
			}
		}
		if maxIdx == -1 {
			// every remaining iterator is exhausted with no convergence.
			return emitted, model.ZeroHash, nil
		}

		var matching []int
		for i, it := range active {
			front, ok, err := it.peek()
			if err != nil {
				return nil, model.Hash{}, err
			}
			if ok && front.entryHash == maxFront.entryHash {
				matching = append(matching, i)
			}
		}

		if len(matching) > 1 {
			// Every matching iterator has just reached the same entryHash:
			// their histories converge here. Keep one (preferring baseline,
			// so the baseline-specific termination check above still
			// recognizes it) and drop the rest.
			keep := matching[0]
			for _, i := range matching {
				if baseline != nil && active[i] == baseline {
					keep = i
					break
				}
			}
			next := make([]*chainIter, 0, len(active)-len(matching)+1)
			for i, it := range active {
				if i == keep || !intInSlice(matching, i) {
					next = append(next, it)
				}
			}
			active = next
			continue
		}

		emitted = append(emitted, maxFront)
		active[maxIdx].advance()
		if front, ok, err := active[maxIdx].peek(); err != nil {
			return nil, model.Hash{}, err
		} else if !ok {
			active = append(active[:maxIdx], active[maxIdx+1:]...)
		}
	}
}

// runMergePass implements post_to_channel's and onStoreVersion's shared merge
// logic (§4.4 steps 1-7). The caller must already hold the channel's
// cacheLock.
func (m *Manager) runMergePass(ctx context.Context, idHash model.Hash) (err error) {
	defer func() {
		status := "applied"
		if err != nil {
			status = "error"
		}
		metrics.MergeOperations.WithLabelValues(status).Inc()
	}()
	return m.runMergePassInner(ctx, idHash)
}

func (m *Manager) runMergePassInner(ctx context.Context, idHash model.Hash) error {
	entry, ok := m.getCache(idHash)
	if !ok {
		return errs.ChannelNotFound
	}

	versionHashes, err := m.st.Versions(ctx, idHash)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	if len(versionHashes) == 0 {
		return nil
	}

	unmergedFrom := entry.latestMergedVersionIndex + 1
	if unmergedFrom >= len(versionHashes) {
		// nothing new since the last merge.
		return nil
	}

	// Step 1: collect the distinct new heads introduced since the last
	// merge, excluding any that merely republish the already-merged head.
	oldHead := entry.readVersion.Head
	newHeads := map[model.Hash]struct{}{}
	lastIdx := unmergedFrom
	var lastVersionHead model.Hash
	for i := unmergedFrom; i < len(versionHashes); i++ {
		ci, err := loadChannelInfo(ctx, m.st, versionHashes[i])
		if err != nil {
			return err
		}
		if !ci.Head.IsZero() && ci.Head != oldHead {
			newHeads[ci.Head] = struct{}{}
		}
		lastIdx = i
		lastVersionHead = ci.Head
	}

	if len(newHeads) == 0 {
		// every new version republished the already-merged head, or was
		// itself empty; nothing to merge.
		m.advanceCacheIndices(entry, lastIdx, lastIdx)
		return m.persistRegistry(ctx)
	}

	baseline := newChainIter(ctx, m.st, oldHead)
	branches := make([]*chainIter, 0, len(newHeads))
	for h := range newHeads {
		branches = append(branches, newChainIter(ctx, m.st, h))
	}

	emitted, commonHead, err := mostCurrentMerge(baseline, branches)
	if err != nil {
		return err
	}

	if len(emitted) == 0 {
		// the new versions all resolved to history already reflected in
		// readVersion; nothing to relink.
		m.advanceCacheIndices(entry, lastIdx, lastIdx)
		return m.persistRegistry(ctx)
	}

	// Step 5-6: relink the emitted entries (oldest-first) onto the common
	// history head, producing a single merged chain. Relinking re-hashes
	// each entry because ChannelEntry.Previous is part of its content hash.
	newHead := commonHead
	for i := len(emitted) - 1; i >= 0; i-- {
		e := emitted[i]
		relinked := model.ChannelEntry{Previous: newHead, Data: e.creationTimeHash}
		relinkedHash, relinkedBytes, err := model.HashOf(relinked)
		if err != nil {
			return err
		}
		if _, err := m.st.Put(ctx, relinkedBytes); err != nil {
			return fmt.Errorf("%w: %v", errs.StoreError, err)
		}
		newHead = relinkedHash
	}

	mergedCI := model.ChannelInfo{
		ChannelID: entry.readVersion.ChannelID,
		Owner:     entry.readVersion.Owner,
		Head:      newHead,
	}

	// Step 5: only publish when the rebuilt head actually differs from the
	// most recent raw version already in the store — the ordinary
	// single-poster case relinks onto an identical chain, and republishing
	// it would just waste a version slot.
	mergedVersionIdx := lastIdx
	if newHead != lastVersionHead {
		m.postMu.Lock()
		_, idx, err := store.PutIDVersion(ctx, m.st, mergedCI, mergedCI)
		m.postMu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", errs.StoreError, err)
		}
		mergedVersionIdx = idx
	}

	entry.readVersion = mergedCI
	m.advanceCacheIndices(entry, mergedVersionIdx, lastIdx)

	if err := m.persistRegistry(ctx); err != nil {
		return err
	}

	m.onUpdated.Emit(UpdatedEvent{ChannelID: mergedCI.ChannelID, Owner: mergedCI.Owner})
	return nil
}

// advanceCacheIndices applies §4.4 step 6. The spec describes folding one
// newly-observed version at a time, only advancing latestMergedVersionIndex
// when it is exactly the successor of the last merge (otherwise leaving it
// put, since an intermediate concurrent version arrived mid-pass). This
// implementation instead loads the whole pending range
// [latestMergedVersionIndex+1, lastIdx] in one batch before running the
// merge, so by construction every raw version in that range — however many
// concurrent heads it contained — is fully folded into the result.
// latestMergedVersionIndex therefore always advances to the last raw version
// examined (mergedThroughIndex); readVersionIndex separately tracks the
// index actually holding entry.readVersion's bytes, which can differ when
// the relink reused an existing version instead of publishing a new one.
//
// Always advancing latestMergedVersionIndex is required, not just
// convenient: relinking re-hashes every emitted entry, so a raw version left
// unmarked as merged would be re-examined on the next pass under a head that
// can never again match the relinked chain by hash, duplicating its content
// into the channel forever.
func (m *Manager) advanceCacheIndices(entry *cacheEntry, readIndex, mergedThroughIndex int) {
	entry.readVersionIndex = readIndex
	entry.latestMergedVersionIndex = mergedThroughIndex
}

func loadChannelInfo(ctx context.Context, st store.Store, contentHash model.Hash) (model.ChannelInfo, error) {
	b, err := st.Get(ctx, contentHash)
	if err != nil {
		return model.ChannelInfo{}, fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	var ci model.ChannelInfo
	if err := json.Unmarshal(b, &ci); err != nil {
		return model.ChannelInfo{}, fmt.Errorf("%w: decode channel info: %v", errs.MergeInconsistency, err)
	}
	return ci, nil
}
