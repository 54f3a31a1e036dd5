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
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sage-x-project/onesync/crypto"
	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/route"
)

// identityFile is the on-disk form of one instance's own Person/Instance
// key material, the CLI equivalent of sage-crypto generate --format
// storage: a key pair generated once and reused across invocations rather
// than a fresh one every run.
type identityFile struct {
	Email            string `json:"email"`
	InstanceName     string `json:"instanceName"`
	EncryptPublicHex string `json:"encryptPublic"`
	EncryptSecretHex string `json:"encryptSecret"`
	SignPublicHex    string `json:"signPublic"`
	SignSecretHex    string `json:"signSecret"`
}

// localIdentity bundles everything a CLI command needs to act as a
// specific Person/Instance.
type localIdentity struct {
	PersonID   model.Hash
	InstanceID model.Hash
	Encrypt    *crypto.EncryptionKeyPair
	Sign       *crypto.SignKeyPair
}

// route builds the route.LocalIdentity this instance presents to peers.
func (id *localIdentity) route() route.LocalIdentity {
	return route.LocalIdentity{Crypto: crypto.New(), Encrypt: id.Encrypt, Sign: id.Sign}
}

// loadOrCreateIdentity reads path, generating and persisting a fresh key
// pair under it on first use. email and instanceName only take effect on
// creation; an existing file's values win so `onesync serve` reconnects
// under the same identity every time it's run.
func loadOrCreateIdentity(path, email, instanceName string) (*localIdentity, error) {
	if b, err := os.ReadFile(path); err == nil {
		return decodeIdentity(b)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read identity file: %w", err)
	}

	enc, err := crypto.GenerateEncryptionKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate encryption key pair: %w", err)
	}
	sign, err := crypto.GenerateSignKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate sign key pair: %w", err)
	}

	f := identityFile{
		Email:            email,
		InstanceName:     instanceName,
		EncryptPublicHex: hex.EncodeToString(enc.Public[:]),
		EncryptSecretHex: hex.EncodeToString(enc.Private[:]),
		SignPublicHex:    hex.EncodeToString(sign.Public),
		SignSecretHex:    hex.EncodeToString(sign.Private),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal identity file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write identity file: %w", err)
	}
	return identityFromFile(f), nil
}

func decodeIdentity(b []byte) (*localIdentity, error) {
	var f identityFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse identity file: %w", err)
	}
	return identityFromFile(f), nil
}

func identityFromFile(f identityFile) *localIdentity {
	person := model.Person{Email: f.Email}
	instance := model.Instance{Name: f.InstanceName, Owner: person.ID()}

	encPub, _ := hex.DecodeString(f.EncryptPublicHex)
	encSec, _ := hex.DecodeString(f.EncryptSecretHex)
	var pub, sec [32]byte
	copy(pub[:], encPub)
	copy(sec[:], encSec)

	signPub, _ := hex.DecodeString(f.SignPublicHex)
	signSec, _ := hex.DecodeString(f.SignSecretHex)

	return &localIdentity{
		PersonID:   person.ID(),
		InstanceID: instance.ID(),
		Encrypt:    &crypto.EncryptionKeyPair{Public: &pub, Private: &sec},
		Sign:       &crypto.SignKeyPair{Public: ed25519.PublicKey(signPub), Private: ed25519.PrivateKey(signSec)},
	}
}
