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

// Package crypto is a thin facade over golang.org/x/crypto, exposing exactly
// the primitives the pairing/auth protocol and the trust resolver need:
// nonce-embedded asymmetric encryption, signing, and random byte generation.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// ErrDecryptionFailed covers both a too-short ciphertext and an
// authentication failure; the underlying nacl/box call never distinguishes
// the two, so neither do we.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

// ErrVerificationFailed is returned by Verify when the signature does not
// match.
var ErrVerificationFailed = errors.New("crypto: signature verification failed")

// API is the crypto facade consumed by the protocol engine (challenge
// framing), the channel manager (entry signatures) and the trust resolver
// (certificate signature verification). It never exposes raw key bytes
// management; callers hold EncryptionKeyPair/SignKeyPair values.
type API interface {
	// EncryptAndEmbedNonce encrypts plaintext for recipientPublicKey using
	// mySecretKey, returning nonce||ciphertext. A fresh random nonce is
	// generated per call.
	EncryptAndEmbedNonce(plaintext []byte, recipientPublicKey *[32]byte, mySecretKey *[32]byte) ([]byte, error)

	// DecryptWithEmbeddedNonce reverses EncryptAndEmbedNonce.
	DecryptWithEmbeddedNonce(ciphertext []byte, senderPublicKey *[32]byte, mySecretKey *[32]byte) ([]byte, error)

	// Sign produces a detached Ed25519 signature over message.
	Sign(message []byte, privateKey ed25519.PrivateKey) ([]byte, error)

	// Verify checks a detached Ed25519 signature.
	Verify(message, signature []byte, publicKey ed25519.PublicKey) error

	// RandomBytes returns n cryptographically random bytes.
	RandomBytes(n int) ([]byte, error)
}

type api struct{}

// New returns the default API implementation.
func New() API { return api{} }

const nonceSize = 24 // box.Overhead's companion constant, box.Seal expects a *[24]byte

func (api) EncryptAndEmbedNonce(plaintext []byte, recipientPublicKey, mySecretKey *[32]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	out := box.Seal(nonce[:], plaintext, &nonce, recipientPublicKey, mySecretKey)
	return out, nil
}

func (api) DecryptWithEmbeddedNonce(ciphertext []byte, senderPublicKey, mySecretKey *[32]byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, ErrDecryptionFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plaintext, ok := box.Open(nil, ciphertext[nonceSize:], &nonce, senderPublicKey, mySecretKey)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func (api) Sign(message []byte, privateKey ed25519.PrivateKey) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: invalid private key size %d", len(privateKey))
	}
	return ed25519.Sign(privateKey, message), nil
}

func (api) Verify(message, signature []byte, publicKey ed25519.PublicKey) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("crypto: invalid public key size %d", len(publicKey))
	}
	if !ed25519.Verify(publicKey, message, signature) {
		return ErrVerificationFailed
	}
	return nil
}

func (api) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: random bytes: %w", err)
	}
	return b, nil
}
