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

package websocket_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/transport"
	ws "github.com/sage-x-project/onesync/transport/websocket"
)

func TestDialUpgradeAndExchangeFrames(t *testing.T) {
	serverPipes := make(chan *ws.Pipe, 1)
	listener := ws.NewListener(func(p *ws.Pipe) { serverPipes <- p })
	srv := httptest.NewServer(listener.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := ws.Dial(context.Background(), url)
	require.NoError(t, err)
	defer client.Close("test done")

	var server *ws.Pipe
	select {
	case server = <-serverPipes:
	case <-time.After(time.Second):
		t.Fatal("server never accepted the connection")
	}

	received := make(chan transport.Frame, 1)
	server.Message().Listen(func(f transport.Frame) { received <- f })

	require.NoError(t, client.Send(context.Background(), transport.Frame{Data: []byte("hello")}))

	select {
	case f := <-received:
		require.Equal(t, "hello", string(f.Data))
		require.False(t, f.Binary)
	case <-time.After(time.Second):
		t.Fatal("server never received client's frame")
	}

	require.Equal(t, 1, listener.ConnectionCount())
}

func TestCloseFiresClosedOnBothEnds(t *testing.T) {
	serverPipes := make(chan *ws.Pipe, 1)
	listener := ws.NewListener(func(p *ws.Pipe) { serverPipes <- p })
	srv := httptest.NewServer(listener.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := ws.Dial(context.Background(), url)
	require.NoError(t, err)

	var server *ws.Pipe
	select {
	case server = <-serverPipes:
	case <-time.After(time.Second):
		t.Fatal("server never accepted the connection")
	}

	clientClosed := make(chan transport.ClosedInfo, 1)
	serverClosed := make(chan transport.ClosedInfo, 1)
	client.Closed().Listen(func(ci transport.ClosedInfo) { clientClosed <- ci })
	server.Closed().Listen(func(ci transport.ClosedInfo) { serverClosed <- ci })

	require.NoError(t, client.Close("bye"))

	select {
	case ci := <-clientClosed:
		require.Equal(t, transport.CloseOriginLocal, ci.Origin)
	case <-time.After(time.Second):
		t.Fatal("client never saw its own Closed event")
	}
	select {
	case <-serverClosed:
	case <-time.After(time.Second):
		t.Fatal("server never saw the peer close")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	listener := ws.NewListener(func(*ws.Pipe) {})
	srv := httptest.NewServer(listener.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := ws.Dial(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, client.Close("done"))

	err = client.Send(context.Background(), transport.Frame{Data: []byte("too late")})
	require.Error(t, err)
}
