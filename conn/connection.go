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

// Package conn implements Connection, which wraps one transport.Pipe with
// an ordered plugin chain and single-use receive promises (§4.1).
package conn

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sage-x-project/onesync/codec"
	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/events"
	"github.com/sage-x-project/onesync/internal/futures"
	"github.com/sage-x-project/onesync/internal/metrics"
	"github.com/sage-x-project/onesync/transport"
)

// maxReasonBytes is the transport-imposed cap on a close reason (§4.1).
const maxReasonBytes = 123

// ClosedEvent is delivered exactly once per Connection.
type ClosedEvent struct {
	Reason string
	Origin transport.CloseOrigin
}

// Connection wraps one ordered full-duplex byte pipe with a pluggable
// transformation chain. Exactly one Closed event is ever delivered,
// however the connection ends.
type Connection struct {
	ID   string
	pipe transport.Pipe

	plugins []Plugin

	textWaits *futures.Queue[string]
	binWaits  *futures.Queue[[]byte]
	jsonWaits *codec.PendingWaits

	closeOnce sync.Once

	opened *events.Event[struct{}]
	msg    *events.Event[transport.Frame]
	clsd   *events.Event[ClosedEvent]
}

// New wraps pipe in a Connection running plugins in order, both inbound and
// outbound.
func New(pipe transport.Pipe, plugins ...Plugin) *Connection {
	c := &Connection{
		ID:        uuid.NewString(),
		pipe:      pipe,
		plugins:   plugins,
		textWaits: futures.New[string](),
		binWaits:  futures.New[[]byte](),
		jsonWaits: codec.NewPendingWaits(),
		opened:    events.New[struct{}](),
		msg:       events.New[transport.Frame](),
		clsd:      events.New[ClosedEvent](),
	}

	pipe.Message().Listen(c.handleInbound)
	pipe.Opened().Listen(func(struct{}) {
		metrics.ConnectionsCreated.WithLabelValues("success").Inc()
		metrics.ConnectionsActive.Inc()
		c.opened.Emit(struct{}{})
	})
	pipe.Closed().Listen(func(ci transport.ClosedInfo) {
		c.fireClosed(ci.Reason, ci.Origin)
	})
	return c
}

func (c *Connection) handleInbound(frame transport.Frame) {
	metrics.ConnectionFrameSize.WithLabelValues("inbound").Observe(float64(len(frame.Data)))
	for _, p := range c.plugins {
		out, keep, err := p.TransformInbound(frame)
		if err != nil {
			c.Terminate(err.Error())
			return
		}
		if !keep {
			return
		}
		frame = out
	}

	c.msg.Emit(frame)

	if frame.Binary {
		c.binWaits.Resolve(frame.Data)
		return
	}

	if _, err := codec.PeekCommand(frame.Data); err == nil {
		if msg, decErr := codec.Decode(frame.Data); decErr == nil {
			// A recognized command message is jsonWaits' to match, either
			// now or, if no WaitFor has registered yet, from its mailbox
			// once one does (§4.1, §8) — it is never plain text.
			c.jsonWaits.Deliver(msg)
			return
		}
	}
	c.textWaits.Resolve(string(frame.Data))
}

// Send runs frame through the outbound plugin chain and writes the result
// to the underlying pipe. A plugin error terminates the connection.
func (c *Connection) Send(ctx context.Context, frame transport.Frame) error {
	for _, p := range c.plugins {
		out, keep, err := p.TransformOutbound(frame)
		if err != nil {
			c.Terminate(err.Error())
			return fmt.Errorf("conn: outbound plugin: %w", err)
		}
		if !keep {
			return nil
		}
		frame = out
	}
	metrics.ConnectionFrameSize.WithLabelValues("outbound").Observe(float64(len(frame.Data)))
	return c.pipe.Send(ctx, frame)
}

// SendText enqueues a UTF-8 text frame, e.g. an Encode'd codec.Message.
func (c *Connection) SendText(ctx context.Context, data []byte) error {
	return c.Send(ctx, transport.Frame{Data: data})
}

// SendBinary enqueues a binary frame, e.g. a challenge or chum payload.
func (c *Connection) SendBinary(ctx context.Context, data []byte) error {
	return c.Send(ctx, transport.Frame{Binary: true, Data: data})
}

func truncateReason(reason string) string {
	if len(reason) <= maxReasonBytes {
		return reason
	}
	b := []byte(reason)
	b = b[:maxReasonBytes]
	for !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return string(b)
}

// Close gracefully tears the connection down with reason, truncated to
// ≤123 UTF-8 bytes.
func (c *Connection) Close(reason string) error {
	return c.pipe.Close(truncateReason(reason))
}

// Terminate immediately tears the connection down locally, without waiting
// for the peer. The underlying Pipe has no half-close primitive, so this is
// functionally identical to Close at the transport layer; the distinction
// matters to callers that want to short-circuit a graceful shutdown.
func (c *Connection) Terminate(reason string) error {
	return c.pipe.Close(truncateReason(reason))
}

func (c *Connection) fireClosed(reason string, origin transport.CloseOrigin) {
	c.closeOnce.Do(func() {
		metrics.ConnectionsClosed.Inc()
		metrics.ConnectionsActive.Dec()
		c.textWaits.RejectAll(errs.TransportClosed)
		c.binWaits.RejectAll(errs.TransportClosed)
		c.jsonWaits.CloseAll(errs.TransportClosed)
		c.clsd.Emit(ClosedEvent{Reason: reason, Origin: origin})
	})
}

// WaitForMessage blocks for the next inbound text frame not consumed as a
// pending JSON-command wait.
func (c *Connection) WaitForMessage(ctx context.Context) (string, error) {
	return c.textWaits.Await(ctx)
}

// WaitForBinaryMessage blocks for the next inbound binary frame.
func (c *Connection) WaitForBinaryMessage(ctx context.Context) ([]byte, error) {
	return c.binWaits.Await(ctx)
}

// WaitForJSONWithCommand blocks for the next inbound JSON text frame tagged
// with cmd.
func (c *Connection) WaitForJSONWithCommand(ctx context.Context, cmd codec.Command) (codec.Message, error) {
	return c.jsonWaits.WaitFor(ctx, cmd)
}

func (c *Connection) Opened() *events.Event[struct{}]  { return c.opened }
func (c *Connection) Message() *events.Event[transport.Frame] { return c.msg }
func (c *Connection) Closed() *events.Event[ClosedEvent] { return c.clsd }
