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

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/sage-x-project/onesync/model"
)

// EncryptionKeyPair is an X25519 key pair used with EncryptAndEmbedNonce /
// DecryptWithEmbeddedNonce.
type EncryptionKeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateEncryptionKeyPair generates a fresh X25519 key pair.
func GenerateEncryptionKeyPair() (*EncryptionKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate encryption key pair: %w", err)
	}
	return &EncryptionKeyPair{Public: pub, Private: priv}, nil
}

// PublicHex returns the public key hex-encoded, the format Keys.PublicEncryptionKey
// is stored in (model.Keys).
func (k *EncryptionKeyPair) PublicHex() string { return hex.EncodeToString(k.Public[:]) }

// SignKeyPair is an Ed25519 key pair used with Sign / Verify.
type SignKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateSignKeyPair generates a fresh Ed25519 key pair.
func GenerateSignKeyPair() (*SignKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate sign key pair: %w", err)
	}
	return &SignKeyPair{Public: pub, Private: priv}, nil
}

// PublicHex returns the public key hex-encoded, the format Keys.PublicSignKey
// is stored in (model.Keys).
func (k *SignKeyPair) PublicHex() string { return hex.EncodeToString(k.Public) }

// DecodeEncryptionPublicKey parses the hex-encoded PublicEncryptionKey field
// of a model.Keys record back into the [32]byte box expects.
func DecodeEncryptionPublicKey(hexKey string) (*[32]byte, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode encryption public key: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("crypto: encryption public key has wrong length %d", len(b))
	}
	var out [32]byte
	copy(out[:], b)
	return &out, nil
}

// DecodeSignPublicKey parses the hex-encoded PublicSignKey field of a
// model.Keys record back into an ed25519.PublicKey.
func DecodeSignPublicKey(hexKey string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode sign public key: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: sign public key has wrong length %d", len(b))
	}
	return ed25519.PublicKey(b), nil
}

// KeysOf builds the model.Keys record for a person/instance's public key
// material, ready to be stored via store.PutObject.
func KeysOf(owner model.Hash, ownerKind model.KeyOwnerKind, enc *EncryptionKeyPair, sign *SignKeyPair) model.Keys {
	return model.Keys{
		PublicEncryptionKey: enc.PublicHex(),
		PublicSignKey:       sign.PublicHex(),
		OwnerKind:           ownerKind,
		Owner:               owner,
	}
}
