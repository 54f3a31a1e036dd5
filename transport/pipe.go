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

// Package transport defines Pipe, the low-level byte-pipe abstraction
// spec.md §1 names as an external collaborator: "the low-level transport
// (websocket-like byte pipe with open/close/message events)". Connection
// (package conn) wraps exactly one Pipe per logical link.
package transport

import (
	"context"

	"github.com/sage-x-project/onesync/events"
)

// CloseOrigin distinguishes who initiated a Pipe's closure.
type CloseOrigin string

const (
	CloseOriginLocal  CloseOrigin = "local"
	CloseOriginRemote CloseOrigin = "remote"
)

// Frame is one inbound or outbound message. Binary frames carry challenge
// and chum payloads; text frames carry JSON protocol messages (§6).
type Frame struct {
	Binary bool
	Data   []byte
}

// ClosedInfo is delivered exactly once per Pipe, on its Closed event.
type ClosedInfo struct {
	Reason string
	Origin CloseOrigin
}

// Pipe is a single full-duplex byte pipe: open once, exchange frames, close
// exactly once. Implementations: transport/inmem (in-process, for tests)
// and transport/websocket (gorilla/websocket backed).
type Pipe interface {
	// Send enqueues an outbound frame. Send after Close returns an error.
	Send(ctx context.Context, frame Frame) error

	// Close tears the pipe down with a local reason. Idempotent: a second
	// Close call is a no-op returning nil.
	Close(reason string) error

	// Opened fires once, when the pipe becomes ready to Send/receive.
	Opened() *events.Event[struct{}]

	// Message fires once per inbound frame, in arrival order.
	Message() *events.Event[Frame]

	// Closed fires exactly once, however the pipe ends (local close, remote
	// close, or a transport-level error).
	Closed() *events.Event[ClosedInfo]
}
