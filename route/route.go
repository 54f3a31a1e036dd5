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

// Package route implements the Connection Route Manager (§4.2): it keeps a
// durable logical link alive per (localKey, remoteKey, groupName) by
// trying each enumerated route until one yields an authenticated encrypted
// connection.
package route

import (
	"context"
	"sync"

	"github.com/sage-x-project/onesync/conn"
	"github.com/sage-x-project/onesync/crypto"
	"github.com/sage-x-project/onesync/transport"
)

// State is a Route's position in the §4.2 state machine:
// Disabled -> Idle -> Connecting -> Active -> {Idle | Failed}.
type State string

const (
	StateDisabled   State = "disabled"
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateFailed     State = "failed"
)

// Kind identifies how a Route obtains its transport.Pipe.
type Kind string

const (
	// KindOutgoingWS dials a remote websocket endpoint.
	KindOutgoingWS Kind = "outgoing_ws"
	// KindIncomingCommserverWS registers a listener with a commserver relay;
	// the relay pushes pipes to us rather than us dialing out.
	KindIncomingCommserverWS Kind = "incoming_ws_commserver"
	// KindIncomingDirectWS binds a local socket and accepts direct dials.
	KindIncomingDirectWS Kind = "incoming_ws_direct"
)

// LocalIdentity bundles what a route needs to perform its encrypted
// handshake: the crypto facade plus the local key pairs it signs/decrypts
// with. It is the Go rendition of the spec's opaque "cryptoApi" factory
// parameter.
type LocalIdentity struct {
	Crypto   crypto.API
	Encrypt  *crypto.EncryptionKeyPair
	Sign     *crypto.SignKeyPair
}

// PublicKeyHex is the local routing key this identity presents to peers.
func (id LocalIdentity) PublicKeyHex() string {
	if id.Encrypt == nil {
		return ""
	}
	return id.Encrypt.PublicHex()
}

// Dialer opens an outgoing transport.Pipe. Implemented by
// transport/websocket.Dial bound to a fixed URL.
type Dialer func(ctx context.Context) (transport.Pipe, error)

// Acceptor registers with a relay or local listener and delivers each
// accepted transport.Pipe to onAccept until the returned stop func is
// called. Implemented by transport/websocket.Listener for direct routes,
// or a commserver registration client for relay routes.
type Acceptor func(onAccept func(transport.Pipe)) (stop func(), err error)

// Route is one enumerated path the Manager may use to establish a logical
// link. Catch-all routes leave RemoteKey empty and accept any peer.
type Route struct {
	ID        string
	Kind      Kind
	Local     LocalIdentity
	RemoteKey string // empty => catch-all
	GroupName string

	dial     Dialer
	accept   Acceptor
	stopFunc func()

	mu                   sync.Mutex
	disabled             bool
	state                State
	lastConnectAttemptMs int64
	failureCount         int
	conn                 *conn.Connection
}

// IsCatchAll reports whether this route accepts connections from any peer.
func (r *Route) IsCatchAll() bool { return r.RemoteKey == "" }

// Snapshot is a point-in-time, concurrency-safe copy of a Route's runtime
// fields, matching §3's Route data-model row.
type Snapshot struct {
	ID                   string
	Kind                 Kind
	LocalKey             string
	RemoteKey            string
	GroupName            string
	Disabled             bool
	State                State
	LastConnectAttemptMs int64
	FailureCount         int
}

func (r *Route) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		ID:                   r.ID,
		Kind:                 r.Kind,
		LocalKey:             r.Local.PublicKeyHex(),
		RemoteKey:            r.RemoteKey,
		GroupName:            r.GroupName,
		Disabled:             r.disabled,
		State:                r.state,
		LastConnectAttemptMs: r.lastConnectAttemptMs,
		FailureCount:         r.failureCount,
	}
}

func (r *Route) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Route) getState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
