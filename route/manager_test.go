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

package route_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/conn"
	"github.com/sage-x-project/onesync/route"
	"github.com/sage-x-project/onesync/transport"
	"github.com/sage-x-project/onesync/transport/inmem"
)

// fixedHandshaker always reports remoteKey, optionally failing the first N
// calls to exercise retry behavior.
type fixedHandshaker struct {
	remoteKey  string
	failTimes  int32
	calls      int32
	failAlways bool
}

func (h *fixedHandshaker) Handshake(_ context.Context, c *conn.Connection, _ route.LocalIdentity, _ bool, _ string) (string, error) {
	n := atomic.AddInt32(&h.calls, 1)
	if h.failAlways || n <= atomic.LoadInt32(&h.failTimes) {
		return "", errors.New("simulated handshake failure")
	}
	return h.remoteKey, nil
}

func localIdentity(pubHex string) route.LocalIdentity {
	return route.LocalIdentity{} // PublicKeyHex() degrades to "" for tupling tests where it's not asserted
}

func dialOneEnd() route.Dialer {
	return func(ctx context.Context) (transport.Pipe, error) {
		a, b := inmem.Pair()
		a.Open()
		b.Open()
		return a, nil
	}
}

func TestOutgoingRouteConnectsAndEmitsOnConnection(t *testing.T) {
	h := &fixedHandshaker{remoteKey: "remote-pub"}
	m := route.NewManager(h, 50*time.Millisecond, nil)

	got := make(chan route.ConnectionEvent, 1)
	m.OnConnection().Listen(func(ev route.ConnectionEvent) { got <- ev })

	r := m.AddOutgoingWS(localIdentity(""), dialOneEnd(), "grp")
	m.EnableRoutes(r.ID)

	select {
	case ev := <-got:
		require.Equal(t, "remote-pub", ev.RemoteKey)
		require.True(t, ev.InitiatedLocally)
	case <-time.After(time.Second):
		t.Fatal("onConnection was never emitted")
	}
}

func TestDuplicateConnectionIsClosed(t *testing.T) {
	h := &fixedHandshaker{remoteKey: "dup-peer"}
	m := route.NewManager(h, time.Minute, nil)

	var connCount int32
	m.OnConnection().Listen(func(route.ConnectionEvent) { atomic.AddInt32(&connCount, 1) })

	r1 := m.AddOutgoingWS(localIdentity(""), dialOneEnd(), "grp")
	r2 := m.AddOutgoingWS(localIdentity(""), dialOneEnd(), "grp")
	m.EnableRoutes(r1.ID, r2.ID)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&connCount) >= 1
	}, time.Second, 5*time.Millisecond)

	// Give the loser time to be resolved and closed; exactly one winner.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&connCount))
}

func TestFailedConnectionReschedulesAndEventuallySucceeds(t *testing.T) {
	h := &fixedHandshaker{remoteKey: "retry-peer", failTimes: 1}
	m := route.NewManager(h, 20*time.Millisecond, nil)

	got := make(chan route.ConnectionEvent, 1)
	m.OnConnection().Listen(func(ev route.ConnectionEvent) { got <- ev })

	r := m.AddOutgoingWS(localIdentity(""), dialOneEnd(), "grp")
	m.EnableRoutes(r.ID)

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("route never recovered after its first failed handshake")
	}
	require.GreaterOrEqual(t, r.Snapshot().FailureCount, 1)
}

func TestDisableRoutesClosesActiveConnection(t *testing.T) {
	h := &fixedHandshaker{remoteKey: "peer"}
	m := route.NewManager(h, time.Minute, nil)

	got := make(chan route.ConnectionEvent, 1)
	m.OnConnection().Listen(func(ev route.ConnectionEvent) { got <- ev })

	r := m.AddOutgoingWS(localIdentity(""), dialOneEnd(), "grp")
	m.EnableRoutes(r.ID)

	var ev route.ConnectionEvent
	select {
	case ev = <-got:
	case <-time.After(time.Second):
		t.Fatal("connection never established")
	}

	closed := make(chan conn.ClosedEvent, 1)
	ev.Conn.Closed().Listen(func(ce conn.ClosedEvent) { closed <- ce })

	m.DisableRoutes(r.ID)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("disabling the route never closed its connection")
	}
	require.Equal(t, route.StateDisabled, r.Snapshot().State)
}

func TestOnlineStateWithNoCommserverRoutesIsTrue(t *testing.T) {
	m := route.NewManager(&fixedHandshaker{remoteKey: "x"}, time.Minute, nil)
	require.True(t, m.OnlineState())
}

func TestOnlineStateReflectsLiveCommserverRegistration(t *testing.T) {
	m := route.NewManager(&fixedHandshaker{remoteKey: "x"}, time.Minute, nil)

	accept := func(onAccept func(transport.Pipe)) (func(), error) {
		return func() {}, nil
	}
	r := m.AddIncomingWSCommserver(localIdentity(""), "remote", accept, "grp")
	require.False(t, m.OnlineState(), "an idle, not-yet-enabled commserver route must not count as live")

	m.EnableRoutes(r.ID)
	require.Eventually(t, func() bool {
		return m.OnlineState()
	}, time.Second, 5*time.Millisecond)
}
