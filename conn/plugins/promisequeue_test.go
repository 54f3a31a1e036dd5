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

package plugins_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/conn/plugins"
	"github.com/sage-x-project/onesync/transport"
)

func TestPromiseQueueResolvesMatchingID(t *testing.T) {
	p := plugins.NewPromiseQueue()

	resultCh := make(chan string, 1)
	go func() {
		raw, err := p.Await(context.Background(), "req-1")
		require.NoError(t, err)
		resultCh <- string(raw)
	}()

	time.Sleep(10 * time.Millisecond)
	frame, keep, err := p.TransformInbound(transport.Frame{Data: []byte(`{"id":"req-1","ok":true}`)})
	require.NoError(t, err)
	require.False(t, keep, "a matched response must be consumed, not forwarded as a generic message")
	require.Contains(t, string(frame.Data), "req-1")

	select {
	case got := <-resultCh:
		require.JSONEq(t, `{"id":"req-1","ok":true}`, got)
	case <-time.After(time.Second):
		t.Fatal("Await never resolved")
	}
}

func TestPromiseQueuePassesThroughUnmatchedFrames(t *testing.T) {
	p := plugins.NewPromiseQueue()

	_, keep, err := p.TransformInbound(transport.Frame{Data: []byte(`{"id":"unrelated"}`)})
	require.NoError(t, err)
	require.True(t, keep)

	_, keep, err = p.TransformInbound(transport.Frame{Binary: true, Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	require.True(t, keep)
}

func TestPromiseQueueCloseAllRejectsOutstanding(t *testing.T) {
	p := plugins.NewPromiseQueue()

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Await(context.Background(), "req-2")
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	p.CloseAll()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("CloseAll never rejected the pending Await")
	}
}
