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

package model

// CreationTime timestamps a single posted payload. It is immutable and
// content-addressed; the payload itself is stored separately and referenced
// by hash.
type CreationTime struct {
	Timestamp int64 `json:"timestamp"` // unix millis
	Data      Hash  `json:"data"`      // hash of the posted payload
}

// Hash returns the content hash of the creation-time record.
func (c CreationTime) Hash() Hash { return MustHashOf(c) }

// ChannelEntry is one immutable node of a channel's singly-linked chain.
type ChannelEntry struct {
	Previous Hash `json:"previous,omitempty"` // hash of the previous ChannelEntry, or ZeroHash
	Data     Hash `json:"data"`                // hash of a CreationTime
}

// Hash returns the content hash of the entry.
func (e ChannelEntry) Hash() Hash { return MustHashOf(e) }

// ChannelInfo is the sole mutable (versioned) object per channel: its head
// points at the most recent ChannelEntry, or is ZeroHash for an empty
// channel. New versions accumulate in the store's id-hash version map; this
// struct is never mutated in place.
type ChannelInfo struct {
	ChannelID string `json:"id"`
	Owner     Hash   `json:"owner"` // Person id hash
	Head      Hash   `json:"head,omitempty"`
}

func (c ChannelInfo) IDFields() interface{} {
	return struct {
		ChannelID string `json:"id"`
		Owner     Hash   `json:"owner"`
	}{c.ChannelID, c.Owner}
}

// ID returns the channel's id hash — stable across every version.
func (c ChannelInfo) ID() Hash { return IDHashOf(c) }

// ChannelRegistryEntry is one row of the persisted ChannelRegistry
// singleton (§6): it remembers, per channel, how far the Channel Manager
// has read and merged the store's version history.
type ChannelRegistryEntry struct {
	ChannelInfoIDHash  Hash `json:"channelInfoIdHash"`
	ReadVersionIndex   int  `json:"readVersionIndex"`
	MergedVersionIndex int  `json:"mergedVersionIndex"`
}

// ChannelRegistry is the persisted snapshot of every channel's merge
// progress, rewritten as a new version each time any channel is merged.
type ChannelRegistry struct {
	Channels []ChannelRegistryEntry `json:"channels"`
}

const channelRegistrySingletonMarker = "ChannelRegistry"

func (ChannelRegistry) IDFields() interface{} { return channelRegistrySingletonMarker }

// ID returns the ChannelRegistry's fixed singleton id hash.
func (r ChannelRegistry) ID() Hash { return IDHashOf(r) }
