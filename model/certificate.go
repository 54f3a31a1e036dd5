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

package model

// Signature is an immutable record that Issuer produced SignatureHex over
// DataHex, per §3's data model table.
type Signature struct {
	Issuer       Hash   `json:"issuer"`    // Person id hash
	Data         string `json:"data"`      // hex
	SignatureHex string `json:"signature"` // hex
}

// Hash returns the content hash of the signature.
func (s Signature) Hash() Hash { return MustHashOf(s) }

// CertificateType discriminates the Certificate sum type (§3, §9 "Dynamic
// discriminated unions").
type CertificateType string

const (
	CertAffirmation       CertificateType = "AffirmationCertificate"
	CertTrustKeys         CertificateType = "TrustKeysCertificate"
	CertAccess            CertificateType = "AccessCertificate"
	CertAccessUnversioned CertificateType = "AccessUnversionedCertificate"
	CertRelation          CertificateType = "RelationCertificate"
	CertRightForSelf      CertificateType = "RightToDeclareTrustedKeysForSelfCertificate"
	CertRightForEverybody CertificateType = "RightToDeclareTrustedKeysForEverybodyCertificate"
)

// AffirmationPayload affirms that Data is a faithful representation of
// whatever it claims to describe (commonly a Profile hash).
type AffirmationPayload struct {
	Data Hash `json:"data"`
}

// TrustKeysPayload declares that every key referenced by Profile should be
// trusted as belonging to that profile's subject.
type TrustKeysPayload struct {
	Profile Hash `json:"profile"`
}

// AccessPayload grants read access to Object to the listed persons/groups.
type AccessPayload struct {
	Object  Hash   `json:"object"`
	Persons []Hash `json:"persons,omitempty"` // Person id hashes
	Groups  []Hash `json:"groups,omitempty"`  // Group hashes
}

// RelationPayload records a relation between two persons (e.g. "friend").
type RelationPayload struct {
	Other Hash   `json:"other"` // Person id hash
	Kind  string `json:"kind"`
}

// RightPayload names the person the right is declared for.
type RightPayload struct {
	Person Hash `json:"person"` // Person id hash
}

// Certificate is a signed assertion about an object. Exactly one of the
// payload fields matching Type is populated; this mirrors the source
// system's discriminated objects without requiring a Go interface
// hierarchy, since every certificate is otherwise structurally identical
// (a Type tag plus a Signature).
type Certificate struct {
	Type        CertificateType     `json:"type"`
	Signature   Signature           `json:"signature"`
	Affirmation *AffirmationPayload `json:"affirmation,omitempty"`
	TrustKeys   *TrustKeysPayload   `json:"trustKeys,omitempty"`
	Access      *AccessPayload      `json:"access,omitempty"`
	Relation    *RelationPayload    `json:"relation,omitempty"`
	Right       *RightPayload       `json:"right,omitempty"`
}

// Hash returns the content hash of the certificate.
func (c Certificate) Hash() Hash { return MustHashOf(c) }

// Subject returns the hash this certificate makes a claim about, used when
// indexing certificates by the profile/object they reference. It returns
// ZeroHash for certificate types with no single subject (e.g. Relation).
func (c Certificate) Subject() Hash {
	switch c.Type {
	case CertAffirmation:
		if c.Affirmation != nil {
			return c.Affirmation.Data
		}
	case CertTrustKeys:
		if c.TrustKeys != nil {
			return c.TrustKeys.Profile
		}
	case CertAccess, CertAccessUnversioned:
		if c.Access != nil {
			return c.Access.Object
		}
	case CertRightForSelf, CertRightForEverybody:
		if c.Right != nil {
			return c.Right.Person
		}
	}
	return ZeroHash
}
