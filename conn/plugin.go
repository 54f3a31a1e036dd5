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

package conn

import "github.com/sage-x-project/onesync/transport"

// Plugin is one link in a Connection's ordered transformation chain.
// TransformInbound runs on frames arriving from the Pipe before they reach
// Connection's waiters and Message event; TransformOutbound runs on frames
// handed to Send before they reach the Pipe.
//
// Returning keep=false consumes the event: it is dropped from the chain and
// never reaches the next plugin or the Connection itself. Returning a
// non-nil error terminates the Connection with origin=local.
type Plugin interface {
	TransformInbound(frame transport.Frame) (out transport.Frame, keep bool, err error)
	TransformOutbound(frame transport.Frame) (out transport.Frame, keep bool, err error)
}

// PassthroughPlugin can be embedded by plugins that only need to override
// one direction.
type PassthroughPlugin struct{}

func (PassthroughPlugin) TransformInbound(frame transport.Frame) (transport.Frame, bool, error) {
	return frame, true, nil
}

func (PassthroughPlugin) TransformOutbound(frame transport.Frame) (transport.Frame, bool, error) {
	return frame, true, nil
}
