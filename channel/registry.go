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
	"sort"

	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/store"
)

// persistRegistry writes the full set of tracked channels' merge progress
// as a new ChannelRegistry version (§6), so a restarted Manager can resume
// without re-walking every chain from genesis.
func (m *Manager) persistRegistry(ctx context.Context) error {
	m.cacheMu.RLock()
	entries := make([]model.ChannelRegistryEntry, 0, len(m.cache))
	for idHash, e := range m.cache {
		entries = append(entries, model.ChannelRegistryEntry{
			ChannelInfoIDHash:  idHash,
			ReadVersionIndex:   e.readVersionIndex,
			MergedVersionIndex: e.latestMergedVersionIndex,
		})
	}
	m.cacheMu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ChannelInfoIDHash.String() < entries[j].ChannelInfoIDHash.String()
	})

	m.registryMu.Lock()
	defer m.registryMu.Unlock()

	reg := model.ChannelRegistry{Channels: entries}
	if _, _, err := store.PutIDVersion(ctx, m.st, reg, reg); err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	return nil
}

// LoadRegistry reconstructs the Manager's in-memory cache from the most
// recently persisted ChannelRegistry snapshot, resolving each entry's
// current ChannelInfo from the store. Intended to be called once, before
// serving any traffic, when resuming against an existing store.
func (m *Manager) LoadRegistry(ctx context.Context) error {
	idHash := model.ChannelRegistry{}.ID()
	head, err := m.st.Head(ctx, idHash)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}

	b, err := m.st.Get(ctx, head)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	var reg model.ChannelRegistry
	if err := json.Unmarshal(b, &reg); err != nil {
		return fmt.Errorf("%w: decode channel registry: %v", errs.MergeInconsistency, err)
	}

	for _, row := range reg.Channels {
		ciHash, err := m.st.Head(ctx, row.ChannelInfoIDHash)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.StoreError, err)
		}
		ci, err := loadChannelInfo(ctx, m.st, ciHash)
		if err != nil {
			return err
		}

		m.cacheMu.Lock()
		m.cache[row.ChannelInfoIDHash] = &cacheEntry{
			readVersion:              ci,
			readVersionIndex:         row.ReadVersionIndex,
			latestMergedVersionIndex: row.MergedVersionIndex,
		}
		m.cacheMu.Unlock()
	}
	return nil
}
