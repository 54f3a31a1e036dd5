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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/store/memory"
)

// writeEntry writes a CreationTime + ChannelEntry pair, returning the new
// entry's hash, for building test chains directly against the store.
func writeEntry(t *testing.T, ctx context.Context, st *memory.Store, previous model.Hash, ts int64, data []byte) model.Hash {
	t.Helper()
	dataHash, err := st.Put(ctx, data)
	require.NoError(t, err)
	ct := model.CreationTime{Timestamp: ts, Data: dataHash}
	_, ctBytes, err := model.HashOf(ct)
	require.NoError(t, err)
	_, err = st.Put(ctx, ctBytes)
	require.NoError(t, err)

	entry := model.ChannelEntry{Previous: previous, Data: ct.Hash()}
	entryHash, entryBytes, err := model.HashOf(entry)
	require.NoError(t, err)
	_, err = st.Put(ctx, entryBytes)
	require.NoError(t, err)
	return entryHash
}

func TestMostCurrentMergeSingleBranch(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	base := writeEntry(t, ctx, st, model.ZeroHash, 1000, []byte("base"))
	newHead := writeEntry(t, ctx, st, base, 2000, []byte("new"))

	baseline := newChainIter(ctx, st, base)
	branch := newChainIter(ctx, st, newHead)

	emitted, commonHead, err := mostCurrentMerge(baseline, []*chainIter{branch})
	require.NoError(t, err)
	require.Equal(t, base, commonHead)
	require.Len(t, emitted, 1)
	require.Equal(t, newHead, emitted[0].entryHash)
}

func TestMostCurrentMergeConcurrentBranches(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	base := writeEntry(t, ctx, st, model.ZeroHash, 1000, []byte("base"))
	branchA := writeEntry(t, ctx, st, base, 2000, []byte("a"))
	branchB := writeEntry(t, ctx, st, base, 2500, []byte("b"))

	baseline := newChainIter(ctx, st, base)
	aIter := newChainIter(ctx, st, branchA)
	bIter := newChainIter(ctx, st, branchB)

	emitted, commonHead, err := mostCurrentMerge(baseline, []*chainIter{aIter, bIter})
	require.NoError(t, err)
	require.Equal(t, base, commonHead)
	require.Len(t, emitted, 2)
	// newest-first: branchB (ts 2500) before branchA (ts 2000).
	require.Equal(t, branchB, emitted[0].entryHash)
	require.Equal(t, branchA, emitted[1].entryHash)
}

func TestMostCurrentMergeNoBaselineDrainsBothBranches(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	headA := writeEntry(t, ctx, st, model.ZeroHash, 1000, []byte("a"))
	headB := writeEntry(t, ctx, st, model.ZeroHash, 2000, []byte("b"))

	emitted, commonHead, err := mostCurrentMerge(nil, []*chainIter{newChainIter(ctx, st, headA), newChainIter(ctx, st, headB)})
	require.NoError(t, err)
	require.True(t, commonHead.IsZero())
	require.Len(t, emitted, 2)
	require.Equal(t, headB, emitted[0].entryHash)
	require.Equal(t, headA, emitted[1].entryHash)
}

func TestMostCurrentMergeSingleBranchNoBaseline(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	head := writeEntry(t, ctx, st, model.ZeroHash, 1000, []byte("only"))

	emitted, commonHead, err := mostCurrentMerge(nil, []*chainIter{newChainIter(ctx, st, head)})
	require.NoError(t, err)
	require.True(t, commonHead.IsZero())
	require.Len(t, emitted, 1)
	require.Equal(t, head, emitted[0].entryHash)
}
