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

// Package model defines the content-addressed object graph shared by the
// four core subsystems: persons, instances, keys, profiles, certificates
// and the channel chain types.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash is an opaque 256-bit content or id hash (sha256 of canonicalized data).
type Hash [32]byte

// ZeroHash is the distinguished empty value, used where a hash field is optional.
var ZeroHash Hash

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hash from a hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return h.UnmarshalText([]byte(s))
}

// UnmarshalText decodes a hash from hex text.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = ZeroHash
		return nil
	}
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("model: invalid hash %q: %w", text, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("model: hash %q has wrong length %d", text, len(b))
	}
	copy(h[:], b)
	return nil
}

// HashOf returns the content hash of v's canonical JSON encoding.
// Every model type is a plain struct, so struct-field order already gives a
// deterministic encoding without a separate canonicalization pass.
func HashOf(v interface{}) (Hash, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Hash{}, nil, fmt.Errorf("model: canonicalize: %w", err)
	}
	return sha256.Sum256(b), b, nil
}

// MustHashOf panics if v cannot be hashed; used for types whose own
// marshaling is known not to fail (no cyclic structures, no channels).
func MustHashOf(v interface{}) Hash {
	h, _, err := HashOf(v)
	if err != nil {
		panic(err)
	}
	return h
}

// Identifiable is implemented by any type whose identity is carried by a
// subset of its own fields rather than its whole content (ID-hash types:
// Person, Instance, Profile, Someone, Leute, ChannelInfo).
type Identifiable interface {
	// IDFields returns the struct (or struct pointer) whose canonical JSON
	// encoding determines this object's id hash.
	IDFields() interface{}
}

// IDHashOf returns the id hash of v, i.e. the content hash of v.IDFields().
func IDHashOf(v Identifiable) Hash {
	return MustHashOf(v.IDFields())
}
