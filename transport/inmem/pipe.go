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

// Package inmem provides an in-process transport.Pipe pair with no network
// involved, used to exercise conn/route/protocol/channel logic in tests
// without a real websocket.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/events"
	"github.com/sage-x-project/onesync/transport"
)

// Pipe is one end of an in-process pipe pair. The zero value is not usable;
// construct both ends together with Pair.
type Pipe struct {
	name string
	peer *Pipe

	mu     sync.Mutex
	closed bool

	opened *events.Event[struct{}]
	msg    *events.Event[transport.Frame]
	clsd   *events.Event[transport.ClosedInfo]
}

var _ transport.Pipe = (*Pipe)(nil)

// Pair returns two Pipe endpoints wired to each other. Send on one delivers
// a Message event on the other; Close on either fires Closed on both.
func Pair() (a, b *Pipe) {
	a = &Pipe{name: "a", opened: events.New[struct{}](), msg: events.New[transport.Frame](), clsd: events.New[transport.ClosedInfo]()}
	b = &Pipe{name: "b", opened: events.New[struct{}](), msg: events.New[transport.Frame](), clsd: events.New[transport.ClosedInfo]()}
	a.peer = b
	b.peer = a
	return a, b
}

// Open fires the Opened event on this end only; the other end of the pair
// needs its own Open call. Tests call this once both sides have finished
// wiring their listeners.
func (p *Pipe) Open() {
	p.opened.Emit(struct{}{})
}

// Send delivers frame to the peer's Message listeners synchronously.
func (p *Pipe) Send(ctx context.Context, frame transport.Frame) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("inmem: send on %s: %w", p.name, errs.TransportClosed)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	p.peer.msg.Emit(frame)
	return nil
}

// Close marks p closed and fires Closed on both ends: CloseOriginLocal on p,
// CloseOriginRemote on its peer. A second Close call is a no-op.
func (p *Pipe) Close(reason string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.clsd.Emit(transport.ClosedInfo{Reason: reason, Origin: transport.CloseOriginLocal})

	p.peer.mu.Lock()
	alreadyClosed := p.peer.closed
	p.peer.closed = true
	p.peer.mu.Unlock()
	if !alreadyClosed {
		p.peer.clsd.Emit(transport.ClosedInfo{Reason: reason, Origin: transport.CloseOriginRemote})
	}
	return nil
}

func (p *Pipe) Opened() *events.Event[struct{}]           { return p.opened }
func (p *Pipe) Message() *events.Event[transport.Frame]    { return p.msg }
func (p *Pipe) Closed() *events.Event[transport.ClosedInfo] { return p.clsd }
