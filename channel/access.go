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

package channel

import (
	"context"

	"github.com/sage-x-project/onesync/model"
)

// AccessIndex resolves the certificates and groups SharedWith needs.
// spec.md's object model has no reverse index from a channel id to the
// AccessCertificates naming it, nor does Profile carry a Certificates
// field — so discovery is left to whatever indexing a deployment's store
// layer provides, the same dependency-inversion used by route.Handshaker
// and protocol.Directory elsewhere in this module.
type AccessIndex interface {
	// CertificatesForSubject returns every certificate whose Subject()
	// equals subject.
	CertificatesForSubject(ctx context.Context, subject model.Hash) ([]model.Certificate, error)

	// Group resolves a Group by its content hash.
	Group(ctx context.Context, groupHash model.Hash) (model.Group, error)
}

// SharedWith implements sharedWith(channel) (§4.4): the deduplicated set of
// persons an AccessCertificate (or AccessUnversionedCertificate) names,
// directly or via a Group, as allowed to read channelIDHash.
func SharedWith(ctx context.Context, idx AccessIndex, channelIDHash model.Hash) ([]model.Hash, error) {
	certs, err := idx.CertificatesForSubject(ctx, channelIDHash)
	if err != nil {
		return nil, err
	}

	persons := map[model.Hash]struct{}{}
	for _, cert := range certs {
		if cert.Type != model.CertAccess && cert.Type != model.CertAccessUnversioned {
			continue
		}
		if cert.Access == nil {
			continue
		}
		for _, p := range cert.Access.Persons {
			persons[p] = struct{}{}
		}
		for _, g := range cert.Access.Groups {
			group, err := idx.Group(ctx, g)
			if err != nil {
				return nil, err
			}
			for _, p := range group.Members {
				persons[p] = struct{}{}
			}
		}
	}

	return sortedHashes(persons), nil
}
