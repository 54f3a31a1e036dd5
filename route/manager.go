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

package route

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sage-x-project/onesync/conn"
	"github.com/sage-x-project/onesync/events"
	"github.com/sage-x-project/onesync/internal/keyedmutex"
	"github.com/sage-x-project/onesync/internal/metrics"
	"github.com/sage-x-project/onesync/transport"
)

// DefaultReconnectDelay matches reconnectDelayMs's documented default (§6).
const DefaultReconnectDelay = 5 * time.Second

// Handshaker performs the encrypted handshake on a freshly connected Pipe
// (transport-level only, no person/instance identity yet) and returns the
// peer's routing key. It is implemented by package protocol's Engine;
// route depends only on this interface to avoid an import cycle.
type Handshaker interface {
	Handshake(ctx context.Context, c *conn.Connection, local LocalIdentity, initiatedLocally bool, expectedRemoteKey string) (remoteKey string, err error)
}

// ConnectionEvent is delivered once per successfully handshaken connection.
type ConnectionEvent struct {
	Conn             *conn.Connection
	LocalKey         string
	RemoteKey        string
	GroupName        string
	InitiatedLocally bool
}

func tupleKey(local, remote, group string) string {
	return local + "|" + remote + "|" + group
}

// Manager is the Connection Route Manager (§4.2): it owns every Route,
// runs the reconnect policy, and dispatches the first successfully
// handshaken connection per (localKey, remoteKey, groupName) upstream.
type Manager struct {
	handshaker     Handshaker
	reconnectDelay time.Duration
	jitter         func(time.Duration) time.Duration
	plugins        func() []conn.Plugin

	mu     sync.Mutex
	routes map[string]*Route
	active map[string]*Route // tupleKey -> winning route

	locks *keyedmutex.Registry

	onConn         *events.Event[ConnectionEvent]
	onConnCatchAll *events.Event[ConnectionEvent]
}

// NewManager returns a Manager with no routes. plugins, if non-nil, is
// called once per connection to build its conn.Plugin chain (e.g.
// keep-alive, promise queue); a nil plugins func means no plugins.
func NewManager(handshaker Handshaker, reconnectDelay time.Duration, plugins func() []conn.Plugin) *Manager {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Manager{
		handshaker:     handshaker,
		reconnectDelay: reconnectDelay,
		jitter:         defaultJitter,
		plugins:        plugins,
		routes:         make(map[string]*Route),
		active:         make(map[string]*Route),
		locks:          keyedmutex.NewRegistry(),
		onConn:         events.New[ConnectionEvent](),
		onConnCatchAll: events.New[ConnectionEvent](),
	}
}

func defaultJitter(base time.Duration) time.Duration {
	// +/-20% jitter, per §4.2's "simple hand-coded backoff with jitter is
	// acceptable".
	spread := float64(base) * 0.2
	return base + time.Duration((rand.Float64()*2-1)*spread)
}

func (m *Manager) OnConnection() *events.Event[ConnectionEvent]         { return m.onConn }
func (m *Manager) OnConnectionViaCatchAll() *events.Event[ConnectionEvent] { return m.onConnCatchAll }

func (m *Manager) addRoute(r *Route) *Route {
	r.ID = uuid.NewString()
	r.state = StateDisabled
	r.disabled = true
	m.mu.Lock()
	m.routes[r.ID] = r
	m.mu.Unlock()
	return r
}

// AddOutgoingWS registers a route that dials url on each connection
// attempt.
func (m *Manager) AddOutgoingWS(local LocalIdentity, dial Dialer, groupName string) *Route {
	return m.addRoute(&Route{Kind: KindOutgoingWS, Local: local, GroupName: groupName, dial: dial})
}

// AddIncomingWSCommserver registers a route that accepts a connection from
// exactly remoteKey via a commserver relay registration.
func (m *Manager) AddIncomingWSCommserver(local LocalIdentity, remoteKey string, accept Acceptor, groupName string) *Route {
	return m.addRoute(&Route{Kind: KindIncomingCommserverWS, Local: local, RemoteKey: remoteKey, GroupName: groupName, accept: accept})
}

// AddIncomingWSDirect registers a route that accepts a direct dial from
// exactly remoteKey.
func (m *Manager) AddIncomingWSDirect(local LocalIdentity, remoteKey string, accept Acceptor, groupName string) *Route {
	return m.addRoute(&Route{Kind: KindIncomingDirectWS, Local: local, RemoteKey: remoteKey, GroupName: groupName, accept: accept})
}

// AddCatchAllIncomingWSCommserver registers a commserver route that accepts
// any remote key.
func (m *Manager) AddCatchAllIncomingWSCommserver(local LocalIdentity, accept Acceptor, groupName string) *Route {
	return m.addRoute(&Route{Kind: KindIncomingCommserverWS, Local: local, GroupName: groupName, accept: accept})
}

// AddCatchAllIncomingWSDirect registers a direct route that accepts any
// remote key.
func (m *Manager) AddCatchAllIncomingWSDirect(local LocalIdentity, accept Acceptor, groupName string) *Route {
	return m.addRoute(&Route{Kind: KindIncomingDirectWS, Local: local, GroupName: groupName, accept: accept})
}

func (m *Manager) routeByID(id string) *Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routes[id]
}

// EnableRoutes flips disabled=false on the named routes (all routes if ids
// is empty) and moves each from Idle to Connecting.
func (m *Manager) EnableRoutes(ids ...string) {
	for _, r := range m.selectRoutes(ids) {
		r.mu.Lock()
		r.disabled = false
		r.mu.Unlock()
		r.setState(StateIdle)
		go m.connect(r)
	}
}

// DisableRoutes flips disabled=true, cancels any Connecting attempt or
// pending reconnect timer, and closes an Active connection.
func (m *Manager) DisableRoutes(ids ...string) {
	for _, r := range m.selectRoutes(ids) {
		r.mu.Lock()
		r.disabled = true
		c := r.conn
		stop := r.stopFunc
		r.stopFunc = nil
		r.mu.Unlock()
		r.setState(StateDisabled)
		if stop != nil {
			stop()
		}
		if c != nil {
			_ = c.Close("route disabled")
		}
	}
}

func (m *Manager) selectRoutes(ids []string) []*Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 {
		out := make([]*Route, 0, len(m.routes))
		for _, r := range m.routes {
			out = append(out, r)
		}
		return out
	}
	out := make([]*Route, 0, len(ids))
	for _, id := range ids {
		if r, ok := m.routes[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (m *Manager) connPlugins() []conn.Plugin {
	if m.plugins == nil {
		return nil
	}
	return m.plugins()
}

func (m *Manager) connect(r *Route) {
	r.mu.Lock()
	if r.disabled {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	switch r.Kind {
	case KindOutgoingWS:
		m.connectOutgoing(r)
	case KindIncomingCommserverWS, KindIncomingDirectWS:
		m.connectIncoming(r)
	}
}

func (m *Manager) connectOutgoing(r *Route) {
	r.setState(StateConnecting)
	r.mu.Lock()
	r.lastConnectAttemptMs = nowMs()
	r.mu.Unlock()

	pipe, err := r.dial(context.Background())
	if err != nil {
		m.onRouteFailure(r)
		return
	}
	c := conn.New(pipe, m.connPlugins()...)
	remoteKey, err := m.handshaker.Handshake(context.Background(), c, r.Local, true, r.RemoteKey)
	if err != nil {
		_ = c.Terminate("handshake failed")
		m.onRouteFailure(r)
		return
	}
	m.resolveWinner(r, c, remoteKey, true)
}

func (m *Manager) connectIncoming(r *Route) {
	r.setState(StateConnecting)
	r.mu.Lock()
	r.lastConnectAttemptMs = nowMs()
	r.mu.Unlock()

	stop, err := r.accept(func(pipe transport.Pipe) {
		go m.acceptedConnection(r, pipe)
	})
	if err != nil {
		m.onRouteFailure(r)
		return
	}
	r.mu.Lock()
	r.stopFunc = stop
	r.mu.Unlock()
	r.setState(StateActive)
}

func (m *Manager) acceptedConnection(r *Route, pipe transport.Pipe) {
	c := conn.New(pipe, m.connPlugins()...)
	remoteKey, err := m.handshaker.Handshake(context.Background(), c, r.Local, false, r.RemoteKey)
	if err != nil {
		_ = c.Terminate("handshake failed")
		return
	}
	m.resolveWinner(r, c, remoteKey, false)
}

func (m *Manager) onRouteFailure(r *Route) {
	r.mu.Lock()
	r.failureCount++
	disabled := r.disabled
	r.mu.Unlock()
	r.setState(StateIdle)
	if !disabled {
		m.scheduleReconnect(r)
	}
}

func (m *Manager) scheduleReconnect(r *Route) {
	delay := m.jitter(m.reconnectDelay)
	metrics.ConnectionsReconnected.Inc()
	time.AfterFunc(delay, func() {
		r.mu.Lock()
		disabled := r.disabled
		r.mu.Unlock()
		if !disabled {
			m.connect(r)
		}
	})
}

func (m *Manager) resolveWinner(r *Route, c *conn.Connection, remoteKey string, initiatedLocally bool) {
	local := r.Local.PublicKeyHex()
	tuple := tupleKey(local, remoteKey, r.GroupName)

	unlock := m.locks.Lock(tuple)
	defer unlock()

	m.mu.Lock()
	if _, exists := m.active[tuple]; exists {
		m.mu.Unlock()
		_ = c.Terminate("duplicate connection")
		return
	}
	m.active[tuple] = r
	m.mu.Unlock()

	r.mu.Lock()
	r.conn = c
	r.mu.Unlock()
	r.setState(StateActive)

	c.Closed().Listen(func(conn.ClosedEvent) {
		m.mu.Lock()
		delete(m.active, tuple)
		m.mu.Unlock()
		r.mu.Lock()
		r.conn = nil
		disabled := r.disabled
		r.mu.Unlock()
		if !disabled {
			r.setState(StateIdle)
			m.scheduleReconnect(r)
		}
	})

	ev := ConnectionEvent{Conn: c, LocalKey: local, RemoteKey: remoteKey, GroupName: r.GroupName, InitiatedLocally: initiatedLocally}
	if r.IsCatchAll() {
		m.onConnCatchAll.Emit(ev)
	} else {
		m.onConn.Emit(ev)
	}
}

// OnlineState reports onlineState aggregated across commserver routes
// (§4.2): true if no commserver routes are registered, else true iff at
// least one has a live (Active) registration.
func (m *Manager) OnlineState() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var haveCommserver bool
	for _, r := range m.routes {
		if r.Kind != KindIncomingCommserverWS {
			continue
		}
		haveCommserver = true
		if r.getState() == StateActive {
			return true
		}
	}
	return !haveCommserver
}

// Shutdown disables every route, tearing down active connections and
// cancelling pending reconnects.
func (m *Manager) Shutdown() {
	m.DisableRoutes()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
