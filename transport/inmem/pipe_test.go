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

package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/transport"
	"github.com/sage-x-project/onesync/transport/inmem"
)

func TestSendDeliversToPeer(t *testing.T) {
	a, b := inmem.Pair()

	received := make(chan transport.Frame, 1)
	b.Message().Listen(func(f transport.Frame) { received <- f })

	require.NoError(t, a.Send(context.Background(), transport.Frame{Data: []byte("hello")}))

	select {
	case f := <-received:
		require.Equal(t, []byte("hello"), f.Data)
	case <-time.After(time.Second):
		t.Fatal("b never received a's frame")
	}
}

func TestCloseFiresOnBothEndsWithCorrectOrigin(t *testing.T) {
	a, b := inmem.Pair()

	var aInfo, bInfo transport.ClosedInfo
	a.Closed().Listen(func(ci transport.ClosedInfo) { aInfo = ci })
	b.Closed().Listen(func(ci transport.ClosedInfo) { bInfo = ci })

	require.NoError(t, a.Close("done"))

	require.Equal(t, transport.CloseOriginLocal, aInfo.Origin)
	require.Equal(t, "done", aInfo.Reason)
	require.Equal(t, transport.CloseOriginRemote, bInfo.Origin)
	require.Equal(t, "done", bInfo.Reason)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, _ := inmem.Pair()
	require.NoError(t, a.Close("first"))
	require.NoError(t, a.Close("second"))
}

func TestSendAfterCloseFails(t *testing.T) {
	a, _ := inmem.Pair()
	require.NoError(t, a.Close("bye"))
	err := a.Send(context.Background(), transport.Frame{Data: []byte("too late")})
	require.Error(t, err)
}

func TestOpenedFires(t *testing.T) {
	a, _ := inmem.Pair()
	fired := false
	a.Opened().Listen(func(struct{}) { fired = true })
	a.Open()
	require.True(t, fired)
}
