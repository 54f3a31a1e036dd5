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

package conn_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/codec"
	"github.com/sage-x-project/onesync/conn"
	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/transport"
	"github.com/sage-x-project/onesync/transport/inmem"
)

func TestSendAndWaitForMessage(t *testing.T) {
	a, b := inmem.Pair()
	ca := conn.New(a)
	cb := conn.New(b)
	a.Open()
	b.Open()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		require.NoError(t, ca.SendText(context.Background(), []byte("plain text")))
	}()

	got, err := cb.WaitForMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "plain text", got)
}

func TestWaitForBinaryMessage(t *testing.T) {
	a, b := inmem.Pair()
	ca := conn.New(a)
	cb := conn.New(b)
	a.Open()
	b.Open()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		require.NoError(t, ca.SendBinary(context.Background(), []byte{1, 2, 3}))
	}()

	got, err := cb.WaitForBinaryMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestWaitForJSONWithCommand(t *testing.T) {
	a, b := inmem.Pair()
	ca := conn.New(a)
	cb := conn.New(b)
	a.Open()
	b.Open()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		msg := codec.NewSuccess()
		enc, err := codec.Encode(msg)
		require.NoError(t, err)
		require.NoError(t, ca.SendText(context.Background(), enc))
	}()

	got, err := cb.WaitForJSONWithCommand(ctx, codec.CmdSuccess)
	require.NoError(t, err)
	_, ok := got.(codec.Success)
	require.True(t, ok)
}

func TestCloseTruncatesReasonTo123Bytes(t *testing.T) {
	a, b := inmem.Pair()
	ca := conn.New(a)
	_ = conn.New(b)
	a.Open()
	b.Open()

	var gotReason string
	ca.Closed().Listen(func(ce conn.ClosedEvent) { gotReason = ce.Reason })

	longReason := strings.Repeat("x", 500)
	require.NoError(t, ca.Close(longReason))
	require.LessOrEqual(t, len(gotReason), 123)
}

func TestClosedFiresExactlyOnce(t *testing.T) {
	a, b := inmem.Pair()
	ca := conn.New(a)
	_ = conn.New(b)
	a.Open()
	b.Open()

	count := 0
	ca.Closed().Listen(func(conn.ClosedEvent) { count++ })

	require.NoError(t, ca.Close("bye"))
	require.NoError(t, ca.Close("bye again"))
	require.Equal(t, 1, count)
}

func TestPendingWaitsRejectOnClose(t *testing.T) {
	a, b := inmem.Pair()
	ca := conn.New(a)
	_ = conn.New(b)
	a.Open()
	b.Open()

	errCh := make(chan error, 1)
	go func() {
		_, err := ca.WaitForMessage(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ca.Close("shutting down"))

	select {
	case err := <-errCh:
		require.True(t, errors.Is(err, errs.TransportClosed))
	case <-time.After(time.Second):
		t.Fatal("pending wait was never rejected on close")
	}
}

// TestWaitForJSONWithCommandSurvivesSendBeforeWait reproduces the
// send-then-wait ordering every protocol step uses (send a request, then
// wait for the reply): since inmem.Pipe.Send fans out synchronously on the
// sender's goroutine, the reply can reach the receiver's Connection before
// the receiver's own WaitForJSONWithCommand call registers. The message
// must still be delivered, not dropped.
func TestWaitForJSONWithCommandSurvivesSendBeforeWait(t *testing.T) {
	a, b := inmem.Pair()
	ca := conn.New(a)
	cb := conn.New(b)
	a.Open()
	b.Open()

	msg := codec.NewIdentity(codec.IdentityObject{PersonID: "p1"})
	encoded, err := codec.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, ca.SendText(context.Background(), encoded))

	// Give the synchronous delivery time to land in cb's jsonWaits mailbox
	// before cb ever calls WaitForJSONWithCommand.
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := cb.WaitForJSONWithCommand(ctx, codec.CmdIdentity)
	require.NoError(t, err)
	require.Equal(t, "p1", got.(codec.Identity).Obj.PersonID)
}

// dropEverythingPlugin consumes every frame in both directions, used to
// verify a plugin can veto delivery.
type dropEverythingPlugin struct{}

func (dropEverythingPlugin) TransformInbound(f transport.Frame) (transport.Frame, bool, error) {
	return f, false, nil
}
func (dropEverythingPlugin) TransformOutbound(f transport.Frame) (transport.Frame, bool, error) {
	return f, false, nil
}

func TestPluginCanConsumeInboundFrame(t *testing.T) {
	a, b := inmem.Pair()
	ca := conn.New(a)
	cb := conn.New(b, dropEverythingPlugin{})
	a.Open()
	b.Open()

	go func() {
		_ = ca.SendText(context.Background(), []byte("hello"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := cb.WaitForMessage(ctx)
	require.Error(t, err, "plugin should have consumed the frame before it reached the wait queue")
}

// erroringPlugin always fails, used to verify a transform error terminates
// the connection.
type erroringPlugin struct{}

func (erroringPlugin) TransformInbound(f transport.Frame) (transport.Frame, bool, error) {
	return f, true, errors.New("boom")
}
func (erroringPlugin) TransformOutbound(f transport.Frame) (transport.Frame, bool, error) {
	return f, true, nil
}

func TestPluginErrorTerminatesConnection(t *testing.T) {
	a, b := inmem.Pair()
	ca := conn.New(a)
	cb := conn.New(b, erroringPlugin{})
	a.Open()
	b.Open()

	closed := make(chan conn.ClosedEvent, 1)
	cb.Closed().Listen(func(ce conn.ClosedEvent) { closed <- ce })

	require.NoError(t, ca.SendText(context.Background(), []byte("trigger")))

	select {
	case ce := <-closed:
		require.Equal(t, transport.CloseOriginLocal, ce.Origin)
	case <-time.After(time.Second):
		t.Fatal("plugin error never terminated the connection")
	}
}
