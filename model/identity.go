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

// Person is identified by the id hash of its email, per §3's data model
// table. It is created on first sight and never mutated afterward.
type Person struct {
	Email string `json:"email"`
}

// IDFields implements Identifiable: a Person's identity is its email alone.
func (p Person) IDFields() interface{} {
	return struct {
		Email string `json:"email"`
	}{p.Email}
}

// ID returns the id hash of the person.
func (p Person) ID() Hash { return IDHashOf(p) }

// Instance is identified by (name, owner); it is created once at first boot
// and is immutable afterward.
type Instance struct {
	Name  string `json:"name"`
	Owner Hash   `json:"owner"` // Person id hash
}

func (i Instance) IDFields() interface{} {
	return struct {
		Name  string `json:"name"`
		Owner Hash   `json:"owner"`
	}{i.Name, i.Owner}
}

func (i Instance) ID() Hash { return IDHashOf(i) }

// KeyOwnerKind distinguishes a Keys object's owner: a Person or an Instance.
type KeyOwnerKind string

const (
	KeyOwnerPerson   KeyOwnerKind = "Person"
	KeyOwnerInstance KeyOwnerKind = "Instance"
)

// Keys is content-addressed (not id-addressed): a key rotation creates a new
// object rather than mutating the old one.
type Keys struct {
	PublicEncryptionKey string       `json:"publicEncryptionKey"` // hex
	PublicSignKey       string       `json:"publicSignKey"`       // hex
	OwnerKind           KeyOwnerKind `json:"ownerKind"`
	Owner               Hash         `json:"owner"` // Person or Instance id hash
}

// Hash returns the content hash of the Keys object.
func (k Keys) Hash() Hash { return MustHashOf(k) }
