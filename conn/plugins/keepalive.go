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

// Package plugins holds the required conn.Plugin implementations named by
// §4.1: keep-alive and the id-bearing promise queue.
package plugins

import (
	"sync"
	"time"

	"github.com/sage-x-project/onesync/transport"
)

// pingFrame is the keep-alive wire payload. Any traffic (inbound or
// outbound) resets the idle timer, so a busy connection never sends one.
var pingFrame = transport.Frame{Data: []byte(`{"command":"ping"}`)}

// Keepalive sends a ping frame whenever interval elapses with no traffic in
// either direction, restarting its timer whenever Reconfigure is called
// with a new interval. It never consumes or rewrites frames; it only
// observes them to reset its own idle clock.
type Keepalive struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	send     func(transport.Frame)
	stopped  bool
}

// NewKeepalive starts a keep-alive that calls send(pingFrame) after interval
// elapses with no inbound or outbound traffic. send is typically
// conn.Connection.Send bound to an outbound pipe, supplied by the caller to
// avoid an import cycle between conn and conn/plugins.
func NewKeepalive(interval time.Duration, send func(transport.Frame)) *Keepalive {
	k := &Keepalive{interval: interval, send: send}
	k.resetLocked()
	return k
}

func (k *Keepalive) resetLocked() {
	if k.timer != nil {
		k.timer.Stop()
	}
	if k.stopped || k.interval <= 0 {
		return
	}
	k.timer = time.AfterFunc(k.interval, func() {
		k.send(pingFrame)
		k.mu.Lock()
		k.resetLocked()
		k.mu.Unlock()
	})
}

// Reconfigure changes the idle interval and restarts the timer immediately,
// per §4.1's "restart on reconfiguration".
func (k *Keepalive) Reconfigure(interval time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.interval = interval
	k.resetLocked()
}

// Stop cancels the pending timer; no further pings are sent.
func (k *Keepalive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopped = true
	if k.timer != nil {
		k.timer.Stop()
	}
}

func (k *Keepalive) touch() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.stopped {
		k.resetLocked()
	}
}

func (k *Keepalive) TransformInbound(frame transport.Frame) (transport.Frame, bool, error) {
	k.touch()
	return frame, true, nil
}

func (k *Keepalive) TransformOutbound(frame transport.Frame) (transport.Frame, bool, error) {
	k.touch()
	return frame, true, nil
}
