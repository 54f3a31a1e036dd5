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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/codec"
	"github.com/sage-x-project/onesync/conn"
	"github.com/sage-x-project/onesync/crypto"
	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/route"
	"github.com/sage-x-project/onesync/transport/inmem"
)

// fakeDirectory is an in-memory Directory good enough to exercise the
// handshake and pairing flows without a real store.
type fakeDirectory struct {
	mu        sync.Mutex
	endpoints map[model.Hash][]codec.IdentityEndpoint
	bindings  map[string]model.Hash
	identity  codec.IdentityObject
	saved     []codec.IdentityObject
	groups    map[string][]string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		endpoints: make(map[model.Hash][]codec.IdentityEndpoint),
		bindings:  make(map[string]model.Hash),
		groups:    make(map[string][]string),
	}
}

func (d *fakeDirectory) EndpointsForPerson(ctx context.Context, personID model.Hash) ([]codec.IdentityEndpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endpoints[personID], nil
}

func (d *fakeDirectory) BoundInstance(ctx context.Context, localKey, remoteKey string) (model.Hash, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.bindings[localKey+"|"+remoteKey]
	return h, ok, nil
}

func (d *fakeDirectory) BindInstance(ctx context.Context, localKey, remoteKey string, instanceID model.Hash) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings[localKey+"|"+remoteKey] = instanceID
	return nil
}

func (d *fakeDirectory) SaveIdentity(ctx context.Context, identity codec.IdentityObject) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saved = append(d.saved, identity)
	return nil
}

func (d *fakeDirectory) LocalIdentity(ctx context.Context) (codec.IdentityObject, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identity, nil
}

func (d *fakeDirectory) SaveAccessGroup(ctx context.Context, groupName string, memberEmails []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[groupName] = memberEmails
	return nil
}

type participant struct {
	personID model.Hash
	local    route.LocalIdentity
	engine   *Engine
	dir      *fakeDirectory
}

func newParticipant(t *testing.T, email string) *participant {
	t.Helper()
	enc, err := crypto.GenerateEncryptionKeyPair()
	require.NoError(t, err)
	sign, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)

	personID := model.Person{Email: email}.ID()
	dir := newFakeDirectory()
	inv := NewInvitations([]byte("shared-secret"))
	e := NewEngine(personID, dir, inv, nil)
	return &participant{
		personID: personID,
		local:    route.LocalIdentity{Crypto: crypto.New(), Encrypt: enc, Sign: sign},
		engine:   e,
		dir:      dir,
	}
}

func TestHandshakeSucceedsBetweenNewPeers(t *testing.T) {
	initiator := newParticipant(t, "alice@example.com")
	responder := newParticipant(t, "bob@example.com")

	a, b := inmem.Pair()
	a.Open()
	b.Open()
	ca := conn.New(a)
	cb := conn.New(b)

	var wg sync.WaitGroup
	var initErr, respErr error
	var initKey, respKey string

	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		initKey, initErr = initiator.engine.Handshake(ctx, ca, initiator.local, true, "")
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		respKey, respErr = responder.engine.Handshake(ctx, cb, responder.local, false, "")
	}()
	wg.Wait()

	require.NoError(t, initErr)
	require.NoError(t, respErr)
	require.Equal(t, responder.local.Encrypt.PublicHex(), initKey)
	require.Equal(t, initiator.local.Encrypt.PublicHex(), respKey)
}

func TestHandshakeFailsOnExpectedRemoteMismatch(t *testing.T) {
	initiator := newParticipant(t, "carol@example.com")
	responder := newParticipant(t, "dave@example.com")

	a, b := inmem.Pair()
	a.Open()
	b.Open()
	ca := conn.New(a)
	cb := conn.New(b)

	var wg sync.WaitGroup
	var initErr, respErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, initErr = initiator.engine.Handshake(ctx, ca, initiator.local, true, "not-the-right-person-id")
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, respErr = responder.engine.Handshake(ctx, cb, responder.local, false, "")
	}()
	wg.Wait()

	require.ErrorIs(t, initErr, errs.PersonMismatch)
	// only the initiator checks expectedRemote; the responder's handshake
	// then fails too, since the initiator closes the connection under it.
	_ = respErr
}

func TestHandshakeRebindsKnownInstanceAndDetectsMismatch(t *testing.T) {
	initiator := newParticipant(t, "erin@example.com")
	responder := newParticipant(t, "frank@example.com")

	run := func() (string, string, error, error) {
		a, b := inmem.Pair()
		a.Open()
		b.Open()
		ca := conn.New(a)
		cb := conn.New(b)

		var wg sync.WaitGroup
		var initErr, respErr error
		var initKey, respKey string
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			initKey, initErr = initiator.engine.Handshake(ctx, ca, initiator.local, true, "")
		}()
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			respKey, respErr = responder.engine.Handshake(ctx, cb, responder.local, false, "")
		}()
		wg.Wait()
		return initKey, respKey, initErr, respErr
	}

	_, _, initErr, respErr := run()
	require.NoError(t, initErr)
	require.NoError(t, respErr)

	// a second handshake between the same pair must rebind to the same
	// instance id without error, since the owner/name pair is unchanged.
	_, _, initErr, respErr = run()
	require.NoError(t, initErr)
	require.NoError(t, respErr)
}
