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

package codec_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/codec"
	"github.com/sage-x-project/onesync/errs"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	msg := codec.NewPersonInformation("person-1", "deadbeef")
	b, err := codec.Encode(msg)
	require.NoError(t, err)

	decoded, err := codec.Decode(b)
	require.NoError(t, err)
	pi, ok := decoded.(codec.PersonInformation)
	require.True(t, ok)
	require.Equal(t, msg, pi)
}

func TestDecodeEveryCatalogEntry(t *testing.T) {
	cases := []codec.Message{
		codec.NewPersonInformation("p1", "aa"),
		codec.NewInstanceIDObject("laptop", "p1"),
		codec.NewAuthenticationToken("tok-123"),
		codec.NewIdentity(codec.IdentityObject{PersonID: "p1"}),
		codec.NewStartProtocol(codec.ProtocolPairing),
		codec.NewAccessGroupMembers([]string{"a@example.com"}),
		codec.NewSuccess(),
		codec.NewPersonObject("legacy@example.com"),
	}
	for _, want := range cases {
		b, err := codec.Encode(want)
		require.NoError(t, err)
		got, err := codec.Decode(b)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDecodeUnrecognizedCommandIsProtocolViolation(t *testing.T) {
	_, err := codec.Decode([]byte(`{"command":"not_a_real_command"}`))
	require.ErrorIs(t, err, errs.ProtocolViolation)
}

func TestDecodeMissingCommandIsProtocolViolation(t *testing.T) {
	_, err := codec.Decode([]byte(`{"foo":"bar"}`))
	require.ErrorIs(t, err, errs.ProtocolViolation)
}

func TestPendingWaitsDeliversToMatchingCommandOnly(t *testing.T) {
	p := codec.NewPendingWaits()
	identityCh := make(chan codec.Message, 1)
	go func() {
		msg, err := p.WaitFor(context.Background(), codec.CmdIdentity)
		require.NoError(t, err)
		identityCh <- msg
	}()

	require.False(t, p.Deliver(codec.NewSuccess()), "a success message must not satisfy an identity waiter")

	require.Eventually(t, func() bool {
		return p.Deliver(codec.NewIdentity(codec.IdentityObject{PersonID: "p2"}))
	}, time.Second, time.Millisecond, "identity waiter must be registered before delivery succeeds")
	select {
	case msg := <-identityCh:
		require.Equal(t, codec.CmdIdentity, msg.(codec.Identity).Command)
	case <-time.After(time.Second):
		t.Fatal("identity waiter was never resolved")
	}
}

func TestPendingWaitsDeliverBeforeWaitForIsStillConsumed(t *testing.T) {
	p := codec.NewPendingWaits()

	// A reply can arrive before the caller's WaitFor registers, e.g. when
	// the sender's frame is delivered synchronously on its own goroutine
	// (events.Event.Emit) ahead of the receiver scheduling its wait. The
	// message must be mailboxed, not dropped.
	require.False(t, p.Deliver(codec.NewIdentity(codec.IdentityObject{PersonID: "early"})))

	msg, err := p.WaitFor(context.Background(), codec.CmdIdentity)
	require.NoError(t, err)
	require.Equal(t, "early", msg.(codec.Identity).Obj.PersonID)
}

func TestPendingWaitsCloseAllRejectsOutstandingWaiters(t *testing.T) {
	p := codec.NewPendingWaits()
	errCh := make(chan error, 1)
	go func() {
		_, err := p.WaitFor(context.Background(), codec.CmdSuccess)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond) // let the goroutine register its wait

	p.CloseAll(errs.TransportClosed)
	require.ErrorIs(t, <-errCh, errs.TransportClosed)
}
