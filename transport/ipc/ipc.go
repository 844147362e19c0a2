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

// Package ipc implements the Unix-domain socket transport the fabric is
// built on (spec.md §1, §6). It is grounded on the teacher's
// transport/ipc package, but hands back a plain net.Conn rather than a
// length-prefixed pipe: framing here is the concatenated-JSON codec in
// internal/wire, which has no length prefix of its own.
package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// Listener accepts Unix-domain connections at a single path.
type Listener struct {
	listener *net.UnixListener
	path     string
}

// Listen unlinks any stale socket file at path before binding, per
// spec.md §5 ("start() must unlink any stale file it owns before
// binding").
func Listen(path string) (*Listener, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}

	// Best-effort: a stale file left behind by a crashed prior instance
	// should not block a fresh bind. A socket that is still genuinely in
	// use will simply fail the subsequent ListenUnix the same way it
	// would have without the unlink.
	_ = unix.Unlink(path)

	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{listener: ln, path: path}, nil
}

// Accept blocks until a peer connects or the listener closes.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.listener.AcceptUnix()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close stops accepting and removes the socket file. Per spec.md §6,
// cleanup of the file on close is the operating system's responsibility
// in the general case, but the rendezvous socket is one this fabric
// itself owns end to end, so it unlinks explicitly.
func (l *Listener) Close() error {
	err := l.listener.Close()
	_ = unix.Unlink(l.path)
	return err
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Dial connects to a Unix-domain socket at path.
func Dial(path string) (net.Conn, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	return net.DialUnix("unix", nil, addr)
}
