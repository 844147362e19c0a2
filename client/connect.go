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

package client

import (
	"encoding/json"
	"net"
	"time"

	"ipc.io/fabric/internal/paths"
	"ipc.io/fabric/internal/wire"
	"ipc.io/fabric/pkgerr"
	"ipc.io/fabric/transport/ipc"
)

// Connect dials the rendezvous socket, performs the handshake, then dials
// the private unique socket the server opens in reply — the
// Idle→ConnectingBcast→AwaitingHandshake→ConnectingUnique→Connected chain
// of spec.md §3. It blocks until that chain reaches Connected, a handshake
// error arrives, or the client is closed; on a transport failure partway
// through, the client transitions to Offline and keeps retrying every
// reconnectDelay, so Connect only returns once, for the very first
// attempt — callers that need to know about later reconnects should use
// IsConnected or a ConnectHook-style wrapper of their own.
func (c *Client) Connect() error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return pkgerr.ErrConnected
	case StateIdle:
		// fall through to start below
	default:
		// Offline counts as "a connect cycle is already in progress":
		// the reconnect timer armed by goOffline will retry on its own.
		c.mu.Unlock()
		return pkgerr.ErrConnecting
	}
	c.state = StateConnectingBcast
	resultCh := make(chan error, 1)
	c.connectWaiters = append(c.connectWaiters, resultCh)
	c.mu.Unlock()

	c.post(c.startBcastDial)
	return <-resultCh
}

// startBcastDial dials the rendezvous socket and, on success, writes the
// handshake frame directly (bypassing the queue, which only drains once
// Connected — spec.md §4.2). It runs on the single run-loop goroutine.
func (c *Client) startBcastDial() {
	conn, err := ipc.Dial(paths.Rendezvous(c.domain))
	if err != nil {
		c.log.Logf("client %q: rendezvous dial failed: %v", c.name, err)
		c.goOffline()
		return
	}

	c.mu.Lock()
	c.bcastConn = conn
	c.state = StateAwaitingHandshake
	c.mu.Unlock()

	go c.readBcast(conn)

	b, err := wire.PrepareCmd(wire.CmdHandshake, c.name)
	if err != nil {
		c.goOffline()
		return
	}
	if _, err := conn.Write(b); err != nil {
		c.goOffline()
	}
}

// readBcast is the rendezvous socket's read loop. It never mutates client
// state directly; every frame and every terminal error is handed back to
// the run loop via post, preserving single-owner serialization.
func (c *Client) readBcast(conn net.Conn) {
	var asm wire.Reassembler
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			c.post(func() { c.onBcastDown(conn) })
			return
		}
		for _, f := range asm.Feed(buf[:n]) {
			frame := f
			c.post(func() { c.handleBcastFrame(frame) })
		}
	}
}

// onBcastDown transitions to Offline, but only if conn is still the
// current rendezvous connection — guards against a stale read loop from a
// socket already superseded by a later reconnect.
func (c *Client) onBcastDown(conn net.Conn) {
	c.mu.Lock()
	current := c.bcastConn
	c.mu.Unlock()
	if current != conn {
		return
	}
	c.goOffline()
}

// handleBcastFrame processes one inbound rendezvous frame: the handshake
// reply during AwaitingHandshake, or a discover reply once Connected.
func (c *Client) handleBcastFrame(f wire.Frame) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateAwaitingHandshake:
		c.handleHandshakeReply(f)
	case StateConnected, StateConnectingUnique:
		if wire.StrOr(f.Command, "") == wire.CmdDiscover {
			c.completeDiscover(f)
		}
	}
}

func (c *Client) handleHandshakeReply(f wire.Frame) {
	switch wire.StrOr(f.Command, "") {
	case wire.CmdHandshake:
		var channelID string
		if err := json.Unmarshal(f.Data, &channelID); err != nil || channelID == "" {
			c.log.Logf("client %q: malformed handshake reply", c.name)
			c.goOffline()
			return
		}
		c.mu.Lock()
		c.channelID = channelID
		c.state = StateConnectingUnique
		c.mu.Unlock()
		go c.dialUnique(channelID)
	case wire.CmdError:
		c.failConnect(pkgerr.ErrNameTaken)
		c.mu.Lock()
		conn := c.bcastConn
		c.bcastConn = nil
		c.state = StateIdle
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	default:
		c.log.Logf("client %q: unexpected frame awaiting handshake: %v", c.name, wire.StrOr(f.Command, ""))
	}
}

// dialUnique dials the per-client socket the server opened during
// handshake. It runs off the run loop since the dial itself is
// synchronous for a Unix-domain socket that may not be listening yet.
func (c *Client) dialUnique(channelID string) {
	conn, err := ipc.Dial(paths.Unique(c.domain, channelID))
	if err != nil {
		c.log.Logf("client %q: unique dial failed: %v", c.name, err)
		c.post(c.goOffline)
		return
	}
	c.post(func() { c.onUniqueConnected(conn) })
}

func (c *Client) onUniqueConnected(conn net.Conn) {
	c.mu.Lock()
	c.uniqueConn = conn
	c.state = StateConnected
	waiters := c.connectWaiters
	c.connectWaiters = nil
	c.mu.Unlock()

	go c.readUnique(conn)

	for _, ch := range waiters {
		ch <- nil
	}

	c.tryDrainRendezvous()
	c.tryDrainUnique()
}

// failConnect resolves every pending Connect() caller with err without
// touching connection state; callers of failConnect are responsible for
// the state transition itself.
func (c *Client) failConnect(err error) {
	c.mu.Lock()
	waiters := c.connectWaiters
	c.connectWaiters = nil
	c.mu.Unlock()
	for _, ch := range waiters {
		ch <- err
	}
}

// goOffline tears down both sockets, clears the channel id, and arms the
// reconnect timer, per spec.md §3's Offline state: "channelId is null;
// both sockets are torn down; queued-but-undrained entries remain queued;
// after 2000ms, returns to ConnectingBcast." In-flight deliver()/discover()
// sinks are deliberately left untouched — they stay pending across a
// reconnect, only Close() discards them.
func (c *Client) goOffline() {
	c.mu.Lock()
	if c.state == StateOffline {
		c.mu.Unlock()
		return
	}
	bc, uc := c.bcastConn, c.uniqueConn
	c.bcastConn = nil
	c.uniqueConn = nil
	c.channelID = ""
	c.state = StateOffline
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.post(c.enterConnectingBcast)
	})
	c.mu.Unlock()

	if bc != nil {
		_ = bc.Close()
	}
	if uc != nil {
		_ = uc.Close()
	}
}

func (c *Client) enterConnectingBcast() {
	c.mu.Lock()
	if c.state != StateOffline {
		c.mu.Unlock()
		return
	}
	c.state = StateConnectingBcast
	c.mu.Unlock()
	c.startBcastDial()
}
