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

// Package server implements the server half of the fabric: the
// rendezvous listener, per-client state, the friendly-name registry, the
// relay router, and the delivery forwarder (spec.md §4.3). It is
// grounded on the teacher's impl/socket.go (listener/pipe bookkeeping,
// goroutine-per-accept shape) generalized from anonymous transport pipes
// to named client records.
package server

import (
	"net"
	"sync"

	"ipc.io/fabric/internal/handler"
	"ipc.io/fabric/internal/logging"
	"ipc.io/fabric/internal/paths"
	"ipc.io/fabric/internal/wire"
	"ipc.io/fabric/pkgerr"
	"ipc.io/fabric/transport/ipc"
)

// ConnectHook is fired when a client completes handshake or disconnects.
// It is additive instrumentation grounded on the teacher's PortHook, not
// a new wire command, so it does not expand the fixed set of delivery
// modes spec.md §1 defines.
type ConnectHook func(name string, joined bool)

// clientRecord is the server-side per-client state of spec.md §3.
type clientRecord struct {
	name           string
	channelID      string
	rendezvousConn net.Conn
	uniqueListener *ipc.Listener
	uniqueConn     net.Conn

	mu sync.Mutex // guards uniqueConn/uniqueListener transition
}

// Server is one rendezvous endpoint for a single domain.
type Server struct {
	domain string
	log    *logging.Logger

	registry *handler.Registry

	mu          sync.Mutex
	started     bool
	rendezvous  *ipc.Listener
	clients     map[string]*clientRecord // channelID -> record
	names       map[string]string        // name -> channelID
	deliveries  map[string]string        // delivery id -> originator name
	connectHook ConnectHook
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithVerbose enables diagnostic logging, per spec.md §6's verbose option.
func WithVerbose(v bool) Option {
	return func(s *Server) { s.log = logging.New(v) }
}

// WithConnectHook installs a ConnectHook.
func WithConnectHook(fn ConnectHook) Option {
	return func(s *Server) { s.connectHook = fn }
}

// New creates a Server for domain (spec.md §6's default is "default").
func New(domain string, opts ...Option) *Server {
	if domain == "" {
		domain = paths.DefaultDomain
	}
	s := &Server{
		domain:     domain,
		log:        logging.New(false),
		registry:   handler.New(),
		clients:    make(map[string]*clientRecord),
		names:      make(map[string]string),
		deliveries: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddHandlers registers a collection of application command handlers.
func (s *Server) AddHandlers(collection map[string]handler.Func) error {
	return s.registry.AddHandlers(collection)
}

// IsStarted reports whether Start has successfully run and Stop has not
// since been called.
func (s *Server) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Start unlinks any stale rendezvous socket file, binds the rendezvous
// listener, and begins accepting. It is synchronous: clients may arrive
// before or after it returns, per spec.md §4.3.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return pkgerr.ErrStarted
	}
	ln, err := ipc.Listen(paths.Rendezvous(s.domain))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.rendezvous = ln
	s.started = true
	s.mu.Unlock()

	go s.acceptRendezvous(ln)
	return nil
}

// Stop closes the rendezvous listener and every client connection. It is
// the disposal point spec.md §5 requires: pending deliveries are
// discarded rather than left dangling forever.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return pkgerr.ErrNotStarted
	}
	s.started = false
	ln := s.rendezvous
	clients := make([]*clientRecord, 0, len(s.clients))
	for _, rec := range s.clients {
		clients = append(clients, rec)
	}
	s.clients = make(map[string]*clientRecord)
	s.names = make(map[string]string)
	s.deliveries = make(map[string]string)
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, rec := range clients {
		s.closeClient(rec)
	}
	return nil
}

func (s *Server) closeClient(rec *clientRecord) {
	rec.mu.Lock()
	if rec.uniqueListener != nil {
		_ = rec.uniqueListener.Close()
		rec.uniqueListener = nil
	}
	if rec.uniqueConn != nil {
		_ = rec.uniqueConn.Close()
	}
	rec.mu.Unlock()
	if rec.rendezvousConn != nil {
		_ = rec.rendezvousConn.Close()
	}
}

// removeClient deletes rec's registry entries and closes its sockets.
// Both read loops (rendezvous and unique) call it when they end; only the
// first call for a given record has any effect.
func (s *Server) removeClient(rec *clientRecord) {
	s.mu.Lock()
	_, existed := s.clients[rec.channelID]
	delete(s.clients, rec.channelID)
	if s.names[rec.name] == rec.channelID {
		delete(s.names, rec.name)
	}
	hook := s.connectHook
	s.mu.Unlock()

	if existed {
		s.closeClient(rec)
		s.log.Logf("server: client %q (%s) disconnected", rec.name, rec.channelID)
		if hook != nil {
			hook(rec.name, false)
		}
	}
}

// Emit writes command/data to the named client's unique socket if it is
// present and writable; otherwise it silently no-ops, per spec.md §4.3.
func (s *Server) Emit(name, command string, data interface{}) error {
	return s.emit(name, command, data, nil)
}

// EmitDelivery is Emit with a delivery correlation id attached.
func (s *Server) EmitDelivery(name, command string, data interface{}, delivery string) error {
	return s.emit(name, command, data, &delivery)
}

func (s *Server) emit(name, command string, data interface{}, delivery *string) error {
	s.mu.Lock()
	channelID, ok := s.names[name]
	var rec *clientRecord
	if ok {
		rec = s.clients[channelID]
	}
	s.mu.Unlock()
	if rec == nil {
		s.log.Logf("server: emit to unknown client %q dropped", name)
		return nil
	}

	var b []byte
	var err error
	if delivery != nil {
		b, err = wire.PrepareDelivery(name, command, data, *delivery)
	} else {
		b, err = wire.PrepareTo(name, command, data)
	}
	if err != nil {
		return err
	}

	rec.mu.Lock()
	conn := rec.uniqueConn
	rec.mu.Unlock()
	if conn == nil {
		s.log.Logf("server: emit to %q dropped, unique socket not yet open", name)
		return nil
	}
	if _, err := conn.Write(b); err != nil {
		s.log.Logf("server: emit to %q failed: %v", name, err)
		return nil
	}
	return nil
}

// Broadcast writes command/data to every connected client.
func (s *Server) Broadcast(command string, data interface{}) error {
	return s.broadcast(command, data, "")
}

// broadcast writes to every connected client except the one named
// initiator, per spec.md §4.3's relay handler for the "broadcast" command.
func (s *Server) broadcast(command string, data interface{}, initiator string) error {
	b, err := wire.PrepareCmd(command, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	recs := make([]*clientRecord, 0, len(s.clients))
	for _, rec := range s.clients {
		if rec.name == initiator {
			continue
		}
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	for _, rec := range recs {
		rec.mu.Lock()
		conn := rec.uniqueConn
		rec.mu.Unlock()
		if conn == nil {
			continue
		}
		if _, err := conn.Write(b); err != nil {
			s.log.Logf("server: broadcast to %q failed: %v", rec.name, err)
		}
	}
	return nil
}

// clientNames returns every currently connected client's friendly name.
func (s *Server) clientNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	return names
}
