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

// Package websocket implements transport.Pipe over gorilla/websocket, both
// as a dialing client (Dial) and as an http.Handler that upgrades incoming
// requests (Listener). Unlike a request/response RPC transport, each frame
// is passed through as-is: text frames carry the JSON protocol messages of
// package codec, binary frames carry challenge/chum payloads.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/events"
	"github.com/sage-x-project/onesync/transport"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultDialTimeout  = 30 * time.Second
)

// Pipe wraps a single *websocket.Conn as a transport.Pipe. Construct one
// via Dial (outgoing) or from a Listener's accept callback (incoming).
type Pipe struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    bool
	closeMu   sync.Mutex

	opened *events.Event[struct{}]
	msg    *events.Event[transport.Frame]
	clsd   *events.Event[transport.ClosedInfo]
}

var _ transport.Pipe = (*Pipe)(nil)

func newPipe(conn *websocket.Conn, readTimeout, writeTimeout time.Duration) *Pipe {
	p := &Pipe{
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		opened:       events.New[struct{}](),
		msg:          events.New[transport.Frame](),
		clsd:         events.New[transport.ClosedInfo](),
	}
	go p.readLoop()
	return p
}

// Dial opens an outgoing websocket connection to url.
func Dial(ctx context.Context, url string) (*Pipe, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: defaultDialTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket: dial %s (HTTP %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket: dial %s: %w", url, err)
	}
	p := newPipe(conn, defaultReadTimeout, defaultWriteTimeout)
	p.opened.Emit(struct{}{})
	return p, nil
}

func (p *Pipe) readLoop() {
	for {
		if err := p.conn.SetReadDeadline(time.Now().Add(p.readTimeout)); err != nil {
			p.teardown(err.Error(), transport.CloseOriginLocal)
			return
		}
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			reason := err.Error()
			origin := transport.CloseOriginRemote
			if ce, ok := err.(*websocket.CloseError); ok {
				reason = ce.Text
			}
			p.teardown(reason, origin)
			return
		}
		p.msg.Emit(transport.Frame{Binary: kind == websocket.BinaryMessage, Data: data})
	}
}

func (p *Pipe) teardown(reason string, origin transport.CloseOrigin) {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	p.closeMu.Unlock()

	_ = p.conn.Close()
	p.clsd.Emit(transport.ClosedInfo{Reason: reason, Origin: origin})
}

// Send writes frame as a text or binary websocket message.
func (p *Pipe) Send(ctx context.Context, frame transport.Frame) error {
	p.closeMu.Lock()
	closed := p.closed
	p.closeMu.Unlock()
	if closed {
		return fmt.Errorf("websocket: send: %w", errs.TransportClosed)
	}

	kind := websocket.TextMessage
	if frame.Binary {
		kind = websocket.BinaryMessage
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		return fmt.Errorf("websocket: set write deadline: %w", err)
	}
	if err := p.conn.WriteMessage(kind, frame.Data); err != nil {
		return fmt.Errorf("websocket: write: %w", err)
	}
	return nil
}

// Close sends a normal-closure control frame, closes the underlying
// connection, and fires Closed with CloseOriginLocal. A second call is a
// no-op.
func (p *Pipe) Close(reason string) error {
	p.closeOnce.Do(func() {
		p.writeMu.Lock()
		_ = p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(p.writeTimeout),
		)
		p.writeMu.Unlock()
		p.teardown(reason, transport.CloseOriginLocal)
	})
	return nil
}

func (p *Pipe) Opened() *events.Event[struct{}]            { return p.opened }
func (p *Pipe) Message() *events.Event[transport.Frame]     { return p.msg }
func (p *Pipe) Closed() *events.Event[transport.ClosedInfo] { return p.clsd }

// Listener upgrades incoming HTTP requests to websocket connections and
// hands each resulting Pipe to Accept. It mirrors the teacher's WSServer
// connection-tracking shape, generalized from request/response framing to
// raw frame pass-through.
type Listener struct {
	Accept       func(*Pipe)
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu    sync.RWMutex
	pipes map[*Pipe]bool
}

// NewListener returns a Listener with the teacher's default buffer sizes
// and timeouts, calling accept for each upgraded connection.
func NewListener(accept func(*Pipe)) *Listener {
	return &Listener{
		Accept: accept,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: restrict to configured peer origins once route.Manager
			// exposes an allow-list; commserver relays are not bound to one.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		pipes:        make(map[*Pipe]bool),
	}
}

// Handler returns the http.Handler that performs the upgrade.
func (l *Listener) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p := newPipe(conn, l.readTimeout, l.writeTimeout)

		l.mu.Lock()
		l.pipes[p] = true
		l.mu.Unlock()
		p.Closed().Listen(func(transport.ClosedInfo) {
			l.mu.Lock()
			delete(l.pipes, p)
			l.mu.Unlock()
		})

		p.opened.Emit(struct{}{})
		if l.Accept != nil {
			l.Accept(p)
		}
	})
}

// ConnectionCount returns the number of pipes currently tracked.
func (l *Listener) ConnectionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pipes)
}

// CloseAll closes every tracked pipe, used on server shutdown.
func (l *Listener) CloseAll(reason string) {
	l.mu.RLock()
	pipes := make([]*Pipe, 0, len(l.pipes))
	for p := range l.pipes {
		pipes = append(pipes, p)
	}
	l.mu.RUnlock()
	for _, p := range pipes {
		_ = p.Close(reason)
	}
}
