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
	"net"

	"ipc.io/fabric/internal/paths"
	"ipc.io/fabric/internal/wire"
	"ipc.io/fabric/transport/ipc"
)

// acceptRendezvous loops accepting rendezvous connections until the
// listener closes, spawning one handler goroutine per connection —
// grounded on the teacher's listener.serve().
func (s *Server) acceptRendezvous(ln *ipc.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.log.Logf("server: rendezvous accept stopped: %v", err)
			return
		}
		go s.serveRendezvous(conn)
	}
}

// serveRendezvous handles one client's rendezvous connection: the
// handshake, and afterwards every discover/broadcast/emit relay request
// it sends, per spec.md §4.3.
func (s *Server) serveRendezvous(conn net.Conn) {
	var asm wire.Reassembler
	var rec *clientRecord
	buf := make([]byte, 4096)

	defer func() {
		if rec != nil {
			s.removeClient(rec)
		} else {
			_ = conn.Close()
		}
	}()

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		for _, f := range asm.Feed(buf[:n]) {
			if rec == nil {
				rec = s.handleHandshake(conn, f)
				continue
			}
			s.dispatchRendezvous(rec, f)
		}
	}
}

// handleHandshake processes the first frame on a rendezvous connection,
// which must be a handshake. Any other frame, or an already-taken name,
// leaves the record unset so the caller keeps reading (the client may
// retry), per spec.md §4.3.
func (s *Server) handleHandshake(conn net.Conn, f wire.Frame) *clientRecord {
	if wire.StrOr(f.Command, "") != wire.CmdHandshake {
		s.log.Logf("server: frame before handshake ignored: %v", f.Command)
		return nil
	}

	var name string
	if err := json.Unmarshal(f.Data, &name); err != nil || name == "" {
		s.log.Logf("server: handshake with invalid name ignored")
		return nil
	}

	s.mu.Lock()
	if _, taken := s.names[name]; taken {
		s.mu.Unlock()
		b, _ := wire.PrepareTo(name, wire.CmdError, wire.ErrCodeNameUsed)
		_, _ = conn.Write(b)
		return nil
	}

	channelID := paths.NewChannelID()
	rec := &clientRecord{name: name, channelID: channelID, rendezvousConn: conn}
	s.clients[channelID] = rec
	s.names[name] = channelID
	s.mu.Unlock()

	uln, err := ipc.Listen(paths.Unique(s.domain, channelID))
	if err != nil {
		s.log.Logf("server: unique listener for %q failed: %v", name, err)
		s.removeClient(rec)
		return nil
	}
	rec.mu.Lock()
	rec.uniqueListener = uln
	rec.mu.Unlock()

	go s.acceptUnique(rec, uln)

	b, err := wire.PrepareTo(name, wire.CmdHandshake, channelID)
	if err != nil {
		s.log.Logf("server: encoding handshake reply for %q failed: %v", name, err)
		return rec
	}
	if _, err := conn.Write(b); err != nil {
		s.log.Logf("server: writing handshake reply to %q failed: %v", name, err)
	}
	return rec
}

// dispatchRendezvous handles every post-handshake frame on rec's
// rendezvous connection: discover, broadcast, and emit.
func (s *Server) dispatchRendezvous(rec *clientRecord, f wire.Frame) {
	switch wire.StrOr(f.Command, "") {
	case wire.CmdDiscover:
		s.replyDiscover(rec)
	case wire.CmdBroadcast:
		var inner wire.Frame
		if err := json.Unmarshal(f.Data, &inner); err != nil {
			s.log.Logf("server: malformed broadcast envelope from %q: %v", rec.name, err)
			return
		}
		_ = s.broadcast(wire.StrOr(inner.Command, ""), json.RawMessage(inner.Data), rec.name)
	case wire.CmdEmit:
		var inner wire.Frame
		if err := json.Unmarshal(f.Data, &inner); err != nil {
			s.log.Logf("server: malformed emit envelope from %q: %v", rec.name, err)
			return
		}
		if f.Delivery != nil {
			s.mu.Lock()
			s.deliveries[*f.Delivery] = rec.name
			s.mu.Unlock()
		}
		target := wire.StrOr(inner.ID, "")
		if inner.Delivery != nil {
			s.EmitDelivery(target, wire.StrOr(inner.Command, ""), json.RawMessage(inner.Data), *inner.Delivery)
		} else {
			_ = s.Emit(target, wire.StrOr(inner.Command, ""), json.RawMessage(inner.Data))
		}
	default:
		s.log.Logf("server: unexpected rendezvous command %q from %q", wire.StrOr(f.Command, ""), rec.name)
	}
}

type discoverPayload struct {
	Clients         []string `json:"clients"`
	CommandHandlers []string `json:"command_handlers"`
}

func (s *Server) replyDiscover(rec *clientRecord) {
	payload := discoverPayload{
		Clients:         s.clientNames(),
		CommandHandlers: s.registry.Names(),
	}
	b, err := wire.PrepareTo(rec.name, wire.CmdDiscover, payload)
	if err != nil {
		s.log.Logf("server: encoding discover reply failed: %v", err)
		return
	}
	if _, err := rec.rendezvousConn.Write(b); err != nil {
		s.log.Logf("server: writing discover reply to %q failed: %v", rec.name, err)
	}
}
