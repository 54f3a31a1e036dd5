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

// Package trust implements the Trusted-Keys Resolver (§4.5): a memoized
// graph search that decides whether a public signing key is trusted by
// recursively verifying the certificate chain back to a local root key.
package trust

import (
	"context"

	"github.com/sage-x-project/onesync/model"
)

// Directory supplies the store-backed enumeration the resolver needs but
// the object model has no reverse index for: every Profile, the Someone/
// Leute graph, and the certificates naming a given hash as their subject.
// Same dependency-inversion shape as route.Handshaker, protocol.Directory
// and channel.AccessIndex.
type Directory interface {
	// Leute returns the singleton Leute root.
	Leute(ctx context.Context) (model.Leute, error)

	// Someone resolves a Someone by its id hash.
	Someone(ctx context.Context, someoneHash model.Hash) (model.Someone, error)

	// AllProfiles returns every Profile currently known to the store.
	AllProfiles(ctx context.Context) ([]model.Profile, error)

	// Endpoint resolves a CommunicationEndpoint by its content hash.
	Endpoint(ctx context.Context, hash model.Hash) (model.CommunicationEndpoint, error)

	// CertificatesForSubject returns every certificate whose Subject()
	// equals subject.
	CertificatesForSubject(ctx context.Context, subject model.Hash) ([]model.Certificate, error)
}

// Keychain reports which locally-known sign keys have their private half
// present — the "complete" keys §4.5's root-key definition draws from.
type Keychain interface {
	// CompleteSignKeys returns the hex-encoded public sign keys this
	// instance holds the private half of.
	CompleteSignKeys(ctx context.Context) ([]string, error)
}
