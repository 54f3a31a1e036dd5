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
	"fmt"
	"sort"

	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/model"
)

// Object is one entry surfaced by GetObjects/ObjectIterator: a channel
// entry resolved down to its posted payload (unless omitted by the query).
type Object struct {
	ChannelID string
	Owner     model.Hash
	ObjectID  string // "<channelIdHash>_<entryHash>"
	Timestamp int64
	DataHash  model.Hash
	Data      []byte // nil when the query set OmitData
}

// QueryOptions filters a GetObjects/ObjectIterator call (§4.4's
// get_objects/object_iterator).
type QueryOptions struct {
	ChannelIDHashes []model.Hash // restrict to these channel id hashes; empty means every tracked channel
	Owners          []model.Hash // restrict to channels owned by one of these persons
	ObjectID        string       // exact "<channelIdHash>_<entryHash>" match; the other filters still apply
	FromTimestamp   *int64
	ToTimestamp     *int64
	Type            func(Object) bool // additional predicate, e.g. payload type sniffing
	OmitData        bool              // skip loading the payload, only resolve its hash
	Count           int               // hard limit applied after sorting; 0 means unlimited
}

func (o QueryOptions) matchesTimestamp(ts int64) bool {
	if o.FromTimestamp != nil && ts < *o.FromTimestamp {
		return false
	}
	if o.ToTimestamp != nil && ts > *o.ToTimestamp {
		return false
	}
	return true
}

// GetObjects runs the most-current merge iterator over the selected
// channels without the common-history termination rule (§4.4's query
// description), returning every matching entry newest-first.
func (m *Manager) GetObjects(ctx context.Context, opts QueryOptions) ([]Object, error) {
	out, err := m.collectObjects(ctx, opts)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if opts.Count > 0 && len(out) > opts.Count {
		out = out[:opts.Count]
	}
	return out, nil
}

// ObjectIterator returns the same result set as GetObjects, already
// materialized; the spec's "lazy enumerate" contract is satisfied trivially
// here since the channel's full chain must be walked to sort by timestamp
// regardless of whether the caller wants one entry or all of them.
type ObjectIterator struct {
	objects []Object
	pos     int
}

func (it *ObjectIterator) Next() (Object, bool) {
	if it.pos >= len(it.objects) {
		return Object{}, false
	}
	o := it.objects[it.pos]
	it.pos++
	return o, true
}

func (m *Manager) ObjectIterator(ctx context.Context, opts QueryOptions) (*ObjectIterator, error) {
	objs, err := m.GetObjects(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &ObjectIterator{objects: objs}, nil
}

func (m *Manager) collectObjects(ctx context.Context, opts QueryOptions) ([]Object, error) {
	m.cacheMu.RLock()
	type target struct {
		idHash model.Hash
		entry  cacheEntry
	}
	var targets []target
	for idHash, e := range m.cache {
		if len(opts.ChannelIDHashes) > 0 && !hashInSlice(opts.ChannelIDHashes, idHash) {
			continue
		}
		if len(opts.Owners) > 0 && !hashInSlice(opts.Owners, e.readVersion.Owner) {
			continue
		}
		targets = append(targets, target{idHash: idHash, entry: *e})
	}
	m.cacheMu.RUnlock()

	var out []Object
	for _, t := range targets {
		it := newChainIter(ctx, m.st, t.entry.readVersion.Head)
		for {
			front, ok, err := it.peek()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}

			objID := fmt.Sprintf("%s_%s", t.idHash.String(), front.entryHash.String())
			if opts.ObjectID != "" && opts.ObjectID != objID {
				it.advance()
				continue
			}
			if !opts.matchesTimestamp(front.timestamp) {
				it.advance()
				continue
			}

			obj := Object{
				ChannelID: t.entry.readVersion.ChannelID,
				Owner:     t.entry.readVersion.Owner,
				ObjectID:  objID,
				Timestamp: front.timestamp,
				DataHash:  front.dataHash,
			}
			if !opts.OmitData {
				data, err := m.st.Get(ctx, front.dataHash)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", errs.StoreError, err)
				}
				obj.Data = data
			}
			if opts.Type == nil || opts.Type(obj) {
				out = append(out, obj)
			}
			if opts.ObjectID != "" {
				break
			}
			it.advance()
		}
	}
	return out, nil
}

func hashInSlice(s []model.Hash, v model.Hash) bool {
	for _, h := range s {
		if h == v {
			return true
		}
	}
	return false
}
