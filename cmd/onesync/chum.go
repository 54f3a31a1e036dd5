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

package main

import (
	"context"

	"github.com/sage-x-project/onesync/conn"
	"github.com/sage-x-project/onesync/internal/logger"
)

// channelChum is the `serve` command's protocol.ChumSession: the wire
// format chum actually exchanges objects in is out of scope here (see
// DESIGN.md's cmd/onesync ChumSession note), so it keeps the authenticated
// Connection open and idle instead of disconnecting the moment the
// pairing/auth handshake finishes. Real object sync still flows through
// channel.Manager's own store subscription, independent of this
// connection, for any peer sharing access to the postgres/memory backend
// this process is pointed at.
type channelChum struct {
	log logger.Logger
}

func (cc *channelChum) Run(ctx context.Context, c *conn.Connection, keepRunning bool) error {
	cc.log.Info("chum session established", logger.Bool("keepRunning", keepRunning))
	if !keepRunning {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}
