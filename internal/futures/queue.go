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

// Package futures is the re-architected form of the source system's
// promise-based "wait for message" (§9): a single-consumer FIFO queue of
// futures, where cancellation (connection close) resolves every pending
// future with an error instead of leaving it unresolved.
//
// The source runs a single-threaded event loop, so a message that arrives
// before anyone asked for it simply sits in that loop's queue until an
// Await-equivalent call consumes it. Queue reproduces that: a Resolve/
// Reject with no waiter registered is held in a FIFO mailbox instead of
// being discarded, so a send-then-wait caller on one goroutine can never
// lose a reply that beats its own Await call to the punch (§4.1, §8).
package futures

import (
	"context"
	"sync"
)

// Queue holds waiters, oldest first, each waiting for the next Resolve call,
// plus a mailbox of results delivered before any Await was registered to
// receive them.
type Queue[T any] struct {
	mu      sync.Mutex
	waiters []chan result[T]
	pending []result[T]
}

type result[T any] struct {
	value T
	err   error
}

// New returns an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Await returns immediately with the oldest mailboxed result, if one is
// already waiting; otherwise it blocks until Resolve or Reject delivers a
// value, or ctx is done, whichever comes first. Multiple concurrent Await
// calls queue FIFO: the earliest Await is satisfied by the earliest
// Resolve.
func (q *Queue[T]) Await(ctx context.Context) (T, error) {
	q.mu.Lock()
	if len(q.pending) > 0 {
		r := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		return r.value, r.err
	}
	ch := make(chan result[T], 1)
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		q.remove(ch)
		// deliver may have already sent into ch (buffered, cap 1) in the
		// instant before this case won the select race; prefer that value
		// over reporting a timeout for a reply that in fact arrived.
		select {
		case r := <-ch:
			return r.value, r.err
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

func (q *Queue[T]) remove(target chan result[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w == target {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// Resolve delivers v to the oldest pending Await if one is registered,
// otherwise holds v in the mailbox for the next Await call. The returned
// bool reports whether a waiter was already registered to receive it.
func (q *Queue[T]) Resolve(v T) bool {
	return q.deliver(result[T]{value: v})
}

// Reject delivers err to the oldest pending Await if one is registered,
// otherwise holds it in the mailbox for the next Await call. The returned
// bool reports whether a waiter was already registered to receive it.
func (q *Queue[T]) Reject(err error) bool {
	return q.deliver(result[T]{err: err})
}

func (q *Queue[T]) deliver(r result[T]) bool {
	q.mu.Lock()
	if len(q.waiters) == 0 {
		q.pending = append(q.pending, r)
		q.mu.Unlock()
		return false
	}
	ch := q.waiters[0]
	q.waiters = q.waiters[1:]
	q.mu.Unlock()
	ch <- r
	return true
}

// RejectAll delivers err to every currently pending Await, e.g. when a
// connection closes with waiters still outstanding, and drops anything
// still sitting in the mailbox since no further Await will ever consume it.
func (q *Queue[T]) RejectAll(err error) {
	q.mu.Lock()
	waiters := q.waiters
	q.waiters = nil
	q.pending = nil
	q.mu.Unlock()
	for _, ch := range waiters {
		ch <- result[T]{err: err}
	}
}

// Len reports how many waiters are currently pending.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
