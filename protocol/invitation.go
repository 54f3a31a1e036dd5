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

package protocol

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sage-x-project/onesync/crypto"
	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/internal/metrics"
	"github.com/sage-x-project/onesync/model"
)

// invitationClaims is the JWT payload an ActiveInvitation token carries:
// single-use, bound to one local person, with its own expiry (§4.3
// "authentication token invariants").
type invitationClaims struct {
	jwt.RegisteredClaims
	LocalPersonID string `json:"localPersonId"`
}

// ActiveInvitation is one outstanding invitation a local person issued,
// tracked until the token is redeemed or expires.
type ActiveInvitation struct {
	Token         string
	LocalPersonID model.Hash
	ExpiresAt     time.Time
	consumed      bool
}

// Invitations is the pairing manager's "simple mutex on the invitations
// map" (§5): it issues, validates, and single-use-consumes tokens.
type Invitations struct {
	secret []byte

	mu      sync.Mutex
	pending map[string]*ActiveInvitation
}

// NewInvitations returns an Invitations store whose tokens are HMAC-signed
// with secret.
func NewInvitations(secret []byte) *Invitations {
	return &Invitations{secret: secret, pending: make(map[string]*ActiveInvitation)}
}

// Issue creates a new token bound to localPersonID, valid for ttl. The
// token is itself a JWT (≥128 bits of entropy in its signature and claims),
// per §4.3's "tokens are random strings >= 128 bits".
func (inv *Invitations) Issue(api crypto.API, localPersonID model.Hash, ttl time.Duration) (*ActiveInvitation, error) {
	start := time.Now()
	defer func() { metrics.PairingDuration.WithLabelValues("invite").Observe(time.Since(start).Seconds()) }()
	metrics.PairingsInitiated.WithLabelValues("inviter").Inc()

	jti, err := api.RandomBytes(32)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(ttl)

	claims := invitationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        model.MustHashOf(jti).String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		LocalPersonID: localPersonID.String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(inv.secret)
	if err != nil {
		return nil, err
	}

	ai := &ActiveInvitation{Token: signed, LocalPersonID: localPersonID, ExpiresAt: expiresAt}
	inv.mu.Lock()
	inv.pending[signed] = ai
	inv.mu.Unlock()
	return ai, nil
}

// Redeem validates token against localPersonID: it must exist, not be
// expired, not already consumed, and be bound to this exact local person.
// On success it marks the invitation consumed so a second Redeem fails
// (single-use); on failure the token is left untouched so a retry is
// possible until expiry (§4.3's "Failure semantics").
func (inv *Invitations) Redeem(token string, localPersonID model.Hash) (err error) {
	start := time.Now()
	defer func() {
		metrics.PairingDuration.WithLabelValues("accept").Observe(time.Since(start).Seconds())
		status := "success"
		errType := ""
		if err != nil {
			status = "failure"
			errType = "invalid_token"
		}
		metrics.PairingsCompleted.WithLabelValues(status).Inc()
		if errType != "" {
			metrics.PairingsFailed.WithLabelValues(errType).Inc()
		}
	}()

	inv.mu.Lock()
	defer inv.mu.Unlock()

	ai, ok := inv.pending[token]
	if !ok {
		return errs.AuthenticationFailed
	}
	if ai.consumed {
		return errs.AuthenticationFailed
	}
	if time.Now().After(ai.ExpiresAt) {
		err = errs.AuthenticationFailed
		return err
	}
	if ai.LocalPersonID != localPersonID {
		return errs.AuthenticationFailed
	}

	parsed, parseErr := jwt.ParseWithClaims(token, &invitationClaims{}, func(*jwt.Token) (interface{}, error) {
		return inv.secret, nil
	})
	if parseErr != nil || !parsed.Valid {
		err = errs.AuthenticationFailed
		return err
	}

	ai.consumed = true
	return nil
}

// Revoke removes a pending invitation, e.g. on explicit cancellation.
func (inv *Invitations) Revoke(token string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.pending, token)
}
