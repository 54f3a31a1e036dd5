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

package plugins

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/internal/futures"
	"github.com/sage-x-project/onesync/transport"
)

// idEnvelope peeks the `id` field any request or response frame this
// plugin cares about must carry.
type idEnvelope struct {
	ID string `json:"id"`
}

// PromiseQueue pairs an outbound id-bearing JSON frame with the first
// inbound frame carrying the same id, per §4.1's "promise queue" plugin. A
// frame with no id field (or a binary frame) passes through untouched in
// both directions.
type PromiseQueue struct {
	mu    sync.Mutex
	waits map[string]*futures.Queue[json.RawMessage]
}

// NewPromiseQueue returns an empty PromiseQueue.
func NewPromiseQueue() *PromiseQueue {
	return &PromiseQueue{waits: make(map[string]*futures.Queue[json.RawMessage])}
}

func (p *PromiseQueue) queueFor(id string) *futures.Queue[json.RawMessage] {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.waits[id]
	if !ok {
		q = futures.New[json.RawMessage]()
		p.waits[id] = q
	}
	return q
}

// Await blocks until a frame carrying id arrives, or ctx is done. The
// caller must have already sent a frame with this id through the
// Connection this PromiseQueue is installed on.
func (p *PromiseQueue) Await(ctx context.Context, id string) (json.RawMessage, error) {
	q := p.queueFor(id)
	v, err := q.Await(ctx)
	p.mu.Lock()
	delete(p.waits, id)
	p.mu.Unlock()
	return v, err
}

func (p *PromiseQueue) TransformOutbound(frame transport.Frame) (transport.Frame, bool, error) {
	return frame, true, nil
}

func (p *PromiseQueue) TransformInbound(frame transport.Frame) (transport.Frame, bool, error) {
	if frame.Binary {
		return frame, true, nil
	}
	var env idEnvelope
	if err := json.Unmarshal(frame.Data, &env); err != nil || env.ID == "" {
		return frame, true, nil
	}
	p.mu.Lock()
	q, ok := p.waits[env.ID]
	p.mu.Unlock()
	if ok {
		q.Resolve(json.RawMessage(append([]byte(nil), frame.Data...)))
		return frame, false, nil
	}
	return frame, true, nil
}

// CloseAll rejects every outstanding Await call, used when the owning
// Connection closes.
func (p *PromiseQueue) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, q := range p.waits {
		q.RejectAll(errs.TransportClosed)
		delete(p.waits, id)
	}
}
