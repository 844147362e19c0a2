// Copyright 2026 The IPC Fabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipc.io/fabric/internal/handler"
	"ipc.io/fabric/internal/paths"
	"ipc.io/fabric/internal/wire"
	"ipc.io/fabric/pkgerr"
	"ipc.io/fabric/transport/ipc"
)

func freshDomain() string {
	return fmt.Sprintf("fabric-srv-test-%d", time.Now().UnixNano())
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(freshDomain())
	require.NoError(t, s.Start())
	assert.True(t, s.IsStarted())

	assert.ErrorIs(t, s.Start(), pkgerr.ErrStarted)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsStarted())
	assert.ErrorIs(t, s.Stop(), pkgerr.ErrNotStarted)
}

func TestHandshakeRegistersClientAndRejectsDuplicateName(t *testing.T) {
	domain := freshDomain()
	s := New(domain)
	require.NoError(t, s.Start())
	defer s.Stop()

	conn1, channelID1 := handshakeRaw(t, domain, "dup")
	defer conn1.Close()
	assert.NotEmpty(t, channelID1)

	conn2, err := ipc.Dial(paths.Rendezvous(domain))
	require.NoError(t, err)
	defer conn2.Close()

	b, err := wire.PrepareCmd(wire.CmdHandshake, "dup")
	require.NoError(t, err)
	_, err = conn2.Write(b)
	require.NoError(t, err)

	frame := readOneFrame(t, conn2)
	assert.Equal(t, wire.CmdError, wire.StrOr(frame.Command, ""))
}

func TestEmitToUnknownClientIsSilentNoOp(t *testing.T) {
	s := New(freshDomain())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.NoError(t, s.Emit("nobody", "whatever", nil))
}

func TestBroadcastSkipsInitiator(t *testing.T) {
	domain := freshDomain()
	s := New(domain)
	require.NoError(t, s.Start())
	defer s.Stop()

	conn1 := handshakeAndConnectUnique(t, domain, "b1")
	defer conn1.Close()
	conn2 := handshakeAndConnectUnique(t, domain, "b2")
	defer conn2.Close()

	// The server records a unique socket only once its accept goroutine
	// has run; wait for both so the broadcast has somewhere to write.
	uniqueOpen := func(name string) bool {
		s.mu.Lock()
		rec := s.clients[s.names[name]]
		s.mu.Unlock()
		if rec == nil {
			return false
		}
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.uniqueConn != nil
	}
	require.Eventually(t, func() bool { return uniqueOpen("b1") && uniqueOpen("b2") }, 2*time.Second, 5*time.Millisecond)

	// A client-initiated broadcast from b1, as the rendezvous relay issues it.
	require.NoError(t, s.broadcast("news", "hi", "b1"))

	frame := readOneFrame(t, conn2)
	assert.Equal(t, "news", wire.StrOr(frame.Command, ""))

	require.NoError(t, conn1.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := conn1.Read(make([]byte, 64))
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout(), "initiator b1 received its own broadcast")
}

func TestAddHandlersRejectsReservedName(t *testing.T) {
	s := New(freshDomain())
	err := s.AddHandlers(map[string]handler.Func{
		"discover": func(handler.Context) (interface{}, error) { return nil, nil },
	})
	assert.ErrorIs(t, err, pkgerr.ErrReserved)
}

func TestDiscoverRepliesWithConnectedClients(t *testing.T) {
	domain := freshDomain()
	s := New(domain)
	require.NoError(t, s.Start())
	defer s.Stop()

	rendezvous, _ := handshakeRaw(t, domain, "watcher")
	defer rendezvous.Close()

	other := handshakeAndConnectUnique(t, domain, "other")
	defer other.Close()

	b, err := wire.PrepareCmd(wire.CmdDiscover, nil)
	require.NoError(t, err)
	_, err = rendezvous.Write(b)
	require.NoError(t, err)

	frame := readOneFrame(t, rendezvous)
	require.Equal(t, wire.CmdDiscover, wire.StrOr(frame.Command, ""))

	var payload discoverPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Contains(t, payload.Clients, "watcher")
	assert.Contains(t, payload.Clients, "other")
}

// handshakeRaw dials the rendezvous socket and performs the handshake
// directly, returning the raw connection and the channel id the server
// assigned — useful for tests exercising the wire protocol without going
// through the client package.
func handshakeRaw(t *testing.T, domain, name string) (net.Conn, string) {
	t.Helper()
	conn, err := ipc.Dial(paths.Rendezvous(domain))
	require.NoError(t, err)

	b, err := wire.PrepareCmd(wire.CmdHandshake, name)
	require.NoError(t, err)
	_, err = conn.Write(b)
	require.NoError(t, err)

	frame := readOneFrame(t, conn)
	require.Equal(t, wire.CmdHandshake, wire.StrOr(frame.Command, ""))
	var channelID string
	require.NoError(t, json.Unmarshal(frame.Data, &channelID))
	return conn, channelID
}

// handshakeAndConnectUnique completes a full handshake and dials the
// resulting unique socket, leaving the rendezvous connection open but
// unused by the caller (closing it would make the server drop the client
// and close the unique socket too).
func handshakeAndConnectUnique(t *testing.T, domain, name string) net.Conn {
	t.Helper()
	_, channelID := handshakeRaw(t, domain, name)
	conn, err := ipc.Dial(paths.Unique(domain, channelID))
	require.NoError(t, err)
	return conn
}

func readOneFrame(t *testing.T, conn net.Conn) wire.Frame {
	t.Helper()
	var asm wire.Reassembler
	buf := make([]byte, 4096)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		frames := asm.Feed(buf[:n])
		if len(frames) > 0 {
			return frames[0]
		}
	}
}
