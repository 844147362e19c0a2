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
	"net"

	"ipc.io/fabric/internal/handler"
	"ipc.io/fabric/internal/wire"
	"ipc.io/fabric/transport/ipc"
)

// acceptUnique waits for the single connection the just-handshaken
// client makes to its private listener, then closes the listener — per
// spec.md §3's invariant (iii), "a uniqueListener exists only between
// handshake and first accept".
func (s *Server) acceptUnique(rec *clientRecord, ln *ipc.Listener) {
	conn, err := ln.Accept()
	_ = ln.Close()

	rec.mu.Lock()
	rec.uniqueListener = nil
	rec.mu.Unlock()

	s.mu.Lock()
	_, stillRegistered := s.clients[rec.channelID]
	s.mu.Unlock()

	if err != nil {
		s.log.Logf("server: unique accept for %q failed: %v", rec.name, err)
		s.removeClient(rec)
		return
	}
	if !stillRegistered {
		_ = conn.Close()
		return
	}

	rec.mu.Lock()
	rec.uniqueConn = conn
	rec.mu.Unlock()

	if hook := s.connectHook; hook != nil {
		hook(rec.name, true)
	}

	s.serveUnique(rec, conn)
}

// serveUnique reads frames from rec's unique connection for the lifetime
// of the client, implementing spec.md §4.3's unique-socket handler.
func (s *Server) serveUnique(rec *clientRecord, conn net.Conn) {
	var asm wire.Reassembler
	buf := make([]byte, 4096)

	defer s.removeClient(rec)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		for _, f := range asm.Feed(buf[:n]) {
			s.handleUniqueFrame(rec, f)
		}
	}
}

// handleUniqueFrame implements spec.md §4.3 steps 1-3 for one inbound
// frame on a client's unique socket.
func (s *Server) handleUniqueFrame(rec *clientRecord, f wire.Frame) {
	if wire.StrOr(f.Command, "") == wire.CmdDelivery && f.Delivery != nil {
		s.mu.Lock()
		origin, ok := s.deliveries[*f.Delivery]
		if ok {
			delete(s.deliveries, *f.Delivery)
		}
		s.mu.Unlock()
		if ok {
			s.EmitDelivery(origin, wire.CmdDelivery, f.Data, *f.Delivery)
		}
		return
	}

	ctx := handler.Context{Data: f.Data, Name: rec.name, ChannelID: rec.channelID, Conn: rec.uniqueConn}
	result := handler.Dispatch(s.registry, f, ctx)

	if f.Delivery != nil {
		s.EmitDelivery(rec.name, wire.CmdDelivery, result, *f.Delivery)
	}
}
