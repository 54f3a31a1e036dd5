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

// Package errs defines the error-kind taxonomy shared by the connection,
// route, protocol, channel and trust packages. Kinds are sentinel errors,
// not a type hierarchy: callers distinguish them with errors.Is, and every
// concrete error wraps one of these with %w plus call-specific detail.
package errs

import "errors"

var (
	// TransportClosed marks a remote or local close. Non-fatal upstream; the
	// route manager reacts to it by scheduling a reconnect.
	TransportClosed = errors.New("transport closed")

	// ProtocolViolation marks a malformed or unexpected command. Fatal for
	// the connection it occurred on, not for the process.
	ProtocolViolation = errors.New("protocol violation")

	// AuthenticationFailed covers challenge/response mismatch, an unknown or
	// expired token, or a token bound to a different local person. Fatal for
	// the connection; never blacklists the peer.
	AuthenticationFailed = errors.New("authentication failed")

	// KeyMismatch marks an identity binding break on keys.
	KeyMismatch = errors.New("key mismatch")

	// PersonMismatch marks an identity binding break on person id.
	PersonMismatch = errors.New("person mismatch")

	// InstanceMismatch marks an identity binding break on instance id.
	InstanceMismatch = errors.New("instance mismatch")

	// ChannelNotFound is returned to the caller of a post against a
	// non-existent channel; it is not retried automatically.
	ChannelNotFound = errors.New("channel not found")

	// MergeInconsistency marks a sanity-check failure inside the channel
	// merge routine. Fatal for the process: it indicates a programming
	// error, not a transient condition.
	MergeInconsistency = errors.New("merge inconsistency")

	// StoreError wraps a failure propagated from the external object store.
	// The operation that triggered it fails; the process continues.
	StoreError = errors.New("store error")
)
