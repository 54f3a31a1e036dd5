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
	"bytes"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateIdentityPersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")

	first, err := loadOrCreateIdentity(path, "alice@onesync", "alice-laptop")
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if first.PersonID.String() == "" {
		t.Fatal("expected non-empty person id")
	}

	second, err := loadOrCreateIdentity(path, "alice@onesync", "alice-laptop")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}

	if first.PersonID != second.PersonID {
		t.Errorf("person id changed across loads: %s != %s", first.PersonID, second.PersonID)
	}
	if !bytes.Equal(first.Encrypt.Public[:], second.Encrypt.Public[:]) {
		t.Error("encryption public key changed across loads")
	}
	if !bytes.Equal(first.Sign.Public, second.Sign.Public) {
		t.Error("sign public key changed across loads")
	}
}

func TestLoadOrCreateIdentityDerivesPersonFromEmail(t *testing.T) {
	dir := t.TempDir()

	a, err := loadOrCreateIdentity(filepath.Join(dir, "a.json"), "same@onesync", "instance-a")
	if err != nil {
		t.Fatalf("load a: %v", err)
	}
	b, err := loadOrCreateIdentity(filepath.Join(dir, "b.json"), "same@onesync", "instance-b")
	if err != nil {
		t.Fatalf("load b: %v", err)
	}

	if a.PersonID != b.PersonID {
		t.Error("expected identical Person.Email to produce the same PersonID")
	}
	if a.InstanceID == b.InstanceID {
		t.Error("expected different instance names to produce different InstanceIDs")
	}
}

func TestIdentityRouteCarriesKeyPairs(t *testing.T) {
	dir := t.TempDir()
	id, err := loadOrCreateIdentity(filepath.Join(dir, "identity.json"), "carol@onesync", "carol-box")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	li := id.route()
	if li.Encrypt != id.Encrypt || li.Sign != id.Sign {
		t.Error("route() did not carry through the same key pairs")
	}
	if li.PublicKeyHex() != id.Encrypt.PublicHex() {
		t.Errorf("PublicKeyHex() = %s, want %s", li.PublicKeyHex(), id.Encrypt.PublicHex())
	}
}
