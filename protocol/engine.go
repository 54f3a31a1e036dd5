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

// Package protocol implements the Pairing & Auth Protocol Engine (§4.3): the
// verify_and_exchange_person_id + instance-id exchange preamble that
// route.Manager runs as its Handshaker, and the start_protocol dispatch
// (chum, chum_one_time, pairing, accessGroup_set) that runs once a
// Connection is upstream.
package protocol

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sage-x-project/onesync/codec"
	"github.com/sage-x-project/onesync/conn"
	"github.com/sage-x-project/onesync/crypto"
	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/events"
	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/route"
)

// DefaultWaitTimeout bounds every individual awaited peer message (§4.3
// "every awaited peer message must be bounded by a timeout (e.g. 30s)").
const DefaultWaitTimeout = 30 * time.Second

// PersonExchangeResult is the outcome of verify_and_exchange_person_id.
type PersonExchangeResult struct {
	IsNew     bool
	PersonID  model.Hash
	PublicKey string // hex
}

// PairingSuccessEvent is emitted once a pairing exchange completes and the
// peer's identity has been persisted.
type PairingSuccessEvent struct {
	PersonID model.Hash
	Identity codec.IdentityObject
}

// ChumSession is the external collaborator the spec names for the `chum`
// and `chum_one_time` protocols: a long-running bidirectional sync engine
// handed the already-authenticated Connection.
type ChumSession interface {
	Run(ctx context.Context, c *conn.Connection, keepRunning bool) error
}

// Engine is the Pairing & Auth Protocol Engine. One Engine instance backs
// every Connection the local instance participates in.
type Engine struct {
	LocalPersonID model.Hash
	Directory     Directory
	Invitations   *Invitations
	Chum          ChumSession

	WaitTimeout time.Duration

	// SkipLocalKeyCompare disables the KeyMismatch check in step 4 of
	// verify_and_exchange_person_id, matching §4.3's "(unless
	// skipLocalKeyCompare)" escape hatch.
	SkipLocalKeyCompare bool
	// AllowSetAuthGroup gates the accessGroup_set protocol (§6's
	// allowSetAuthGroup config option, default false).
	AllowSetAuthGroup bool

	onPairingSuccess *events.Event[PairingSuccessEvent]
}

// NewEngine returns an Engine ready to drive Connections for localPersonID.
func NewEngine(localPersonID model.Hash, dir Directory, invitations *Invitations, chum ChumSession) *Engine {
	return &Engine{
		LocalPersonID:    localPersonID,
		Directory:        dir,
		Invitations:      invitations,
		Chum:             chum,
		WaitTimeout:      DefaultWaitTimeout,
		onPairingSuccess: events.New[PairingSuccessEvent](),
	}
}

func (e *Engine) OnPairingSuccess() *events.Event[PairingSuccessEvent] { return e.onPairingSuccess }

func waitErr(cmd codec.Command, err error) error {
	return fmt.Errorf("protocol: timed out waiting for %s: %w", cmd, err)
}

// Handshake implements route.Handshaker: it runs verify_and_exchange_person_id
// followed by the instance-id exchange, and returns the remote person's
// public key hex as the routing key route.Manager keys connections by.
func (e *Engine) Handshake(ctx context.Context, c *conn.Connection, local route.LocalIdentity, initiatedLocally bool, expectedRemote string) (string, error) {
	pres, err := e.verifyAndExchangePersonID(ctx, c, local, initiatedLocally, expectedRemote)
	if err != nil {
		return "", err
	}
	if err := e.exchangeInstanceID(ctx, c, local, pres); err != nil {
		return "", err
	}
	return pres.PublicKey, nil
}

func (e *Engine) verifyAndExchangePersonID(ctx context.Context, c *conn.Connection, local route.LocalIdentity, initiatedLocally bool, expectedRemote string) (PersonExchangeResult, error) {
	mine := codec.NewPersonInformation(e.LocalPersonID.String(), local.PublicKeyHex())

	remote, err := e.exchangePersonInformation(ctx, c, mine, initiatedLocally)
	if err != nil {
		return PersonExchangeResult{}, err
	}

	var remotePersonID model.Hash
	if err := remotePersonID.UnmarshalText([]byte(remote.PersonID)); err != nil {
		return PersonExchangeResult{}, fmt.Errorf("%w: malformed personId", errs.ProtocolViolation)
	}
	remotePub, err := crypto.DecodeEncryptionPublicKey(remote.PersonPublicKey)
	if err != nil {
		return PersonExchangeResult{}, fmt.Errorf("%w: malformed personPublicKey", errs.ProtocolViolation)
	}

	// Step 2: mutual 64-byte challenge/bitwise-complement-response. Both
	// sides must succeed; whichever side issues first mirrors who spoke
	// first in step 1.
	if initiatedLocally {
		if err := e.challenge(ctx, c, local, remotePub, true); err != nil {
			return PersonExchangeResult{}, err
		}
		if err := e.challenge(ctx, c, local, remotePub, false); err != nil {
			return PersonExchangeResult{}, err
		}
	} else {
		if err := e.challenge(ctx, c, local, remotePub, false); err != nil {
			return PersonExchangeResult{}, err
		}
		if err := e.challenge(ctx, c, local, remotePub, true); err != nil {
			return PersonExchangeResult{}, err
		}
	}

	if expectedRemote != "" && expectedRemote != remotePersonID.String() {
		_ = c.Close("person id mismatch")
		return PersonExchangeResult{}, errs.PersonMismatch
	}

	endpoints, err := e.Directory.EndpointsForPerson(ctx, remotePersonID)
	if err != nil {
		return PersonExchangeResult{}, fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	if len(endpoints) == 0 {
		return PersonExchangeResult{IsNew: true, PersonID: remotePersonID, PublicKey: remote.PersonPublicKey}, nil
	}
	for _, ep := range endpoints {
		if ep.PublicKey == remote.PersonPublicKey {
			return PersonExchangeResult{IsNew: false, PersonID: remotePersonID, PublicKey: remote.PersonPublicKey}, nil
		}
	}
	if e.SkipLocalKeyCompare {
		return PersonExchangeResult{IsNew: false, PersonID: remotePersonID, PublicKey: remote.PersonPublicKey}, nil
	}
	_ = c.Close("person public key mismatch")
	return PersonExchangeResult{}, errs.KeyMismatch
}

func (e *Engine) exchangePersonInformation(ctx context.Context, c *conn.Connection, mine codec.PersonInformation, initiatedLocally bool) (codec.PersonInformation, error) {
	encoded, err := codec.Encode(mine)
	if err != nil {
		return codec.PersonInformation{}, err
	}

	if initiatedLocally {
		if err := c.SendText(ctx, encoded); err != nil {
			return codec.PersonInformation{}, err
		}
		return e.waitPersonInformation(ctx, c)
	}
	remote, err := e.waitPersonInformation(ctx, c)
	if err != nil {
		return codec.PersonInformation{}, err
	}
	if err := c.SendText(ctx, encoded); err != nil {
		return codec.PersonInformation{}, err
	}
	return remote, nil
}

func (e *Engine) waitPersonInformation(ctx context.Context, c *conn.Connection) (codec.PersonInformation, error) {
	wctx, cancel := context.WithTimeout(ctx, e.waitTimeoutOrDefault())
	defer cancel()
	msg, err := c.WaitForJSONWithCommand(wctx, codec.CmdPersonInformation)
	if err != nil {
		_ = c.Close(fmt.Sprintf("timeout waiting for %s", codec.CmdPersonInformation))
		return codec.PersonInformation{}, waitErr(codec.CmdPersonInformation, err)
	}
	return msg.(codec.PersonInformation), nil
}

func complement(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = ^v
	}
	return out
}

// challenge runs one half of the mutual challenge/response: if amChallenger,
// this side issues a fresh 64-byte challenge and checks the peer's
// complement response; otherwise it waits for the peer's challenge and
// answers with the complement.
func (e *Engine) challenge(ctx context.Context, c *conn.Connection, local route.LocalIdentity, remotePub *[32]byte, amChallenger bool) error {
	if amChallenger {
		plain, err := local.Crypto.RandomBytes(64)
		if err != nil {
			return err
		}
		enc, err := local.Crypto.EncryptAndEmbedNonce(plain, remotePub, local.Encrypt.Private)
		if err != nil {
			return err
		}
		if err := c.SendBinary(ctx, enc); err != nil {
			return err
		}

		wctx, cancel := context.WithTimeout(ctx, e.waitTimeoutOrDefault())
		defer cancel()
		respEnc, err := c.WaitForBinaryMessage(wctx)
		if err != nil {
			_ = c.Close("timeout waiting for challenge response")
			return fmt.Errorf("%w: challenge response timed out", errs.AuthenticationFailed)
		}
		resp, err := local.Crypto.DecryptWithEmbeddedNonce(respEnc, remotePub, local.Encrypt.Private)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.AuthenticationFailed, err)
		}
		if !bytes.Equal(resp, complement(plain)) {
			return errs.AuthenticationFailed
		}
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, e.waitTimeoutOrDefault())
	defer cancel()
	challEnc, err := c.WaitForBinaryMessage(wctx)
	if err != nil {
		_ = c.Close("timeout waiting for challenge")
		return fmt.Errorf("%w: challenge timed out", errs.AuthenticationFailed)
	}
	chall, err := local.Crypto.DecryptWithEmbeddedNonce(challEnc, remotePub, local.Encrypt.Private)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.AuthenticationFailed, err)
	}
	respEnc, err := local.Crypto.EncryptAndEmbedNonce(complement(chall), remotePub, local.Encrypt.Private)
	if err != nil {
		return err
	}
	return c.SendBinary(ctx, respEnc)
}

func (e *Engine) waitTimeoutOrDefault() time.Duration {
	if e.WaitTimeout <= 0 {
		return DefaultWaitTimeout
	}
	return e.WaitTimeout
}

func (e *Engine) exchangeInstanceID(ctx context.Context, c *conn.Connection, local route.LocalIdentity, pres PersonExchangeResult) error {
	mine := codec.NewInstanceIDObject("instance", e.LocalPersonID.String())
	encoded, err := codec.Encode(mine)
	if err != nil {
		return err
	}
	if err := c.SendText(ctx, encoded); err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, e.waitTimeoutOrDefault())
	defer cancel()
	msg, err := c.WaitForJSONWithCommand(wctx, codec.CmdInstanceIDObject)
	if err != nil {
		_ = c.Close(fmt.Sprintf("timeout waiting for %s", codec.CmdInstanceIDObject))
		return waitErr(codec.CmdInstanceIDObject, err)
	}
	obj := msg.(codec.InstanceIDObject).Obj

	var owner model.Hash
	if err := owner.UnmarshalText([]byte(obj.Owner)); err != nil {
		return fmt.Errorf("%w: malformed instance owner", errs.ProtocolViolation)
	}
	remoteInstanceID := model.Instance{Name: obj.Name, Owner: owner}.ID()

	localKey := local.PublicKeyHex()
	bound, ok, err := e.Directory.BoundInstance(ctx, localKey, pres.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	if ok && bound != remoteInstanceID {
		_ = c.Close("instance id mismatch")
		return errs.InstanceMismatch
	}
	if !ok {
		if err := e.Directory.BindInstance(ctx, localKey, pres.PublicKey, remoteInstanceID); err != nil {
			return fmt.Errorf("%w: %v", errs.StoreError, err)
		}
	}
	return nil
}
