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
	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/transport/inmem"
)

func pairedConnections() (*conn.Connection, *conn.Connection) {
	a, b := inmem.Pair()
	a.Open()
	b.Open()
	return conn.New(a), conn.New(b)
}

func TestRunSessionPairingSucceeds(t *testing.T) {
	server := newParticipant(t, "server@example.com")
	client := newParticipant(t, "client@example.com")
	server.dir.identity = codec.IdentityObject{
		PersonID: server.personID.String(),
		CommunicationEndpoints: []codec.IdentityEndpoint{
			{Type: "Endpoint", URL: "wss://server.example.com", PublicKey: server.local.Encrypt.PublicHex()},
		},
	}
	client.dir.identity = codec.IdentityObject{
		PersonID: client.personID.String(),
		CommunicationEndpoints: []codec.IdentityEndpoint{
			{Type: "Endpoint", URL: "wss://client.example.com", PublicKey: client.local.Encrypt.PublicHex()},
		},
	}

	ai, err := server.engine.Invitations.Issue(crypto.New(), server.personID, time.Minute)
	require.NoError(t, err)

	cServer, cClient := pairedConnections()

	var wg sync.WaitGroup
	var serverErr, clientErr error
	var successEvent PairingSuccessEvent
	server.engine.OnPairingSuccess().Once(func(ev PairingSuccessEvent) { successEvent = ev })

	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		serverErr = server.engine.RunSession(ctx, cServer, client.personID, false, SessionOptions{})
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		clientErr = client.engine.RunSession(ctx, cClient, server.personID, true, SessionOptions{
			Protocol:     codec.NewStartProtocol(codec.ProtocolPairing),
			PairingToken: ai.Token,
		})
	}()
	wg.Wait()

	require.NoError(t, serverErr)
	require.NoError(t, clientErr)
	require.Equal(t, client.personID, successEvent.PersonID)
	require.Len(t, server.dir.saved, 1)
	require.Equal(t, client.personID.String(), server.dir.saved[0].PersonID)
}

func TestRunSessionPairingRejectsInvalidToken(t *testing.T) {
	server := newParticipant(t, "server2@example.com")
	client := newParticipant(t, "client2@example.com")
	server.dir.identity = codec.IdentityObject{PersonID: server.personID.String()}
	client.dir.identity = codec.IdentityObject{PersonID: client.personID.String()}

	cServer, cClient := pairedConnections()

	var wg sync.WaitGroup
	var serverErr, clientErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		serverErr = server.engine.RunSession(ctx, cServer, client.personID, false, SessionOptions{})
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		clientErr = client.engine.RunSession(ctx, cClient, server.personID, true, SessionOptions{
			Protocol:     codec.NewStartProtocol(codec.ProtocolPairing),
			PairingToken: "not-a-real-token",
		})
	}()
	wg.Wait()

	require.Error(t, serverErr)
	require.Error(t, clientErr)
	require.Empty(t, server.dir.saved)
}

func TestRunSessionAccessGroupSetResponderSavesMembers(t *testing.T) {
	server := newParticipant(t, "group-server@example.com")
	server.engine.AllowSetAuthGroup = true

	cServer, cClient := pairedConnections()

	var wg sync.WaitGroup
	var serverErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		serverErr = server.engine.RunSession(ctx, cServer, model.Hash{}, false, SessionOptions{})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	encoded, err := codec.Encode(codec.NewStartProtocol(codec.ProtocolAccessGroup))
	require.NoError(t, err)
	require.NoError(t, cClient.SendText(ctx, encoded))

	encoded, err = codec.Encode(codec.NewAccessGroupMembers([]string{"a@example.com", "b@example.com"}))
	require.NoError(t, err)
	require.NoError(t, cClient.SendText(ctx, encoded))

	_, err = cClient.WaitForJSONWithCommand(ctx, codec.CmdSuccess)
	require.NoError(t, err)

	wg.Wait()
	require.NoError(t, serverErr)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, server.dir.groups[""])
}

func TestRunSessionAccessGroupSetDisabledByDefault(t *testing.T) {
	server := newParticipant(t, "group-server2@example.com")

	cServer, cClient := pairedConnections()

	var wg sync.WaitGroup
	var serverErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		serverErr = server.engine.RunSession(ctx, cServer, model.Hash{}, false, SessionOptions{})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	encoded, err := codec.Encode(codec.NewStartProtocol(codec.ProtocolAccessGroup))
	require.NoError(t, err)
	require.NoError(t, cClient.SendText(ctx, encoded))

	wg.Wait()
	require.Error(t, serverErr)
}
