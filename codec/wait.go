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

package codec

import (
	"context"
	"sync"

	"github.com/sage-x-project/onesync/internal/futures"
)

// PendingWaits implements the message codec's wait_for(command) -> msg
// contract (§2): one FIFO futures.Queue per command, so a caller awaiting
// `identity` never gets handed a `success` that happened to arrive first.
type PendingWaits struct {
	mu     sync.Mutex
	queues map[Command]*futures.Queue[Message]
}

// NewPendingWaits returns an empty PendingWaits.
func NewPendingWaits() *PendingWaits {
	return &PendingWaits{queues: make(map[Command]*futures.Queue[Message])}
}

func (p *PendingWaits) queueFor(cmd Command) *futures.Queue[Message] {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[cmd]
	if !ok {
		q = futures.New[Message]()
		p.queues[cmd] = q
	}
	return q
}

// WaitFor blocks until a message tagged cmd is delivered via Deliver, or ctx
// is done.
func (p *PendingWaits) WaitFor(ctx context.Context, cmd Command) (Message, error) {
	return p.queueFor(cmd).Await(ctx)
}

// Deliver routes an inbound, already-decoded message to the oldest pending
// WaitFor call for its command, if one is registered. Otherwise it holds
// the message in that command's mailbox, so a WaitFor registered moments
// later still consumes it rather than losing it to a reply that outran the
// waiter's own registration (§4.1, §8). The returned bool reports only
// whether a waiter was already registered; either way the message is the
// caller's responsibility to have matched, never unsolicited.
func (p *PendingWaits) Deliver(msg Message) bool {
	return p.queueFor(msg.command()).Resolve(msg)
}

// CloseAll rejects every pending WaitFor call across every command, used
// when the underlying Connection closes with waiters still outstanding.
func (p *PendingWaits) CloseAll(err error) {
	p.mu.Lock()
	queues := make([]*futures.Queue[Message], 0, len(p.queues))
	for _, q := range p.queues {
		queues = append(queues, q)
	}
	p.mu.Unlock()
	for _, q := range queues {
		q.RejectAll(err)
	}
}
