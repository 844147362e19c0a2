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

// Package handler implements the command dispatch table described in
// spec.md §4.4: a name-to-callback registry that rejects the six
// reserved command names and duplicate registrations, plus the dispatch
// step that normalizes a handler's return value into a delivery reply.
package handler

import (
	"encoding/json"
	"net"
	"sync"

	"ipc.io/fabric/internal/wire"
	"ipc.io/fabric/pkgerr"
)

// Context is passed to every invoked handler. It carries everything
// spec.md §4.4 requires: the inbound payload, the friendly name of the
// client the message is attributed to, that client's channel id, and the
// socket it arrived on (nil when there is none to reference).
type Context struct {
	Data      json.RawMessage
	Name      string
	ChannelID string
	Conn      net.Conn
}

// Func is an application command handler. A non-nil return value is
// meaningful only when the inbound frame carried a delivery id; a nil
// result (or an error) is normalized to a null delivery reply.
type Func func(ctx Context) (interface{}, error)

// Registry maps command name to handler, enforcing spec.md §6's
// reserved-name list and rejecting duplicate registrations.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Func
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Func)}
}

// Register adds fn under name. It fails for reserved names, nil
// handlers, and names already registered (spec.md §7 "programmer
// errors").
func (r *Registry) Register(name string, fn Func) error {
	if fn == nil {
		return pkgerr.ErrNilHandler
	}
	if wire.IsReserved(name) {
		return pkgerr.ErrReserved
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return pkgerr.ErrDuplicate
	}
	r.handlers[name] = fn
	return nil
}

// AddHandlers registers every entry in the collection, stopping and
// returning the first error encountered (a fully-applied subset may
// remain registered; callers that need atomicity should pre-validate).
func (r *Registry) AddHandlers(collection map[string]Func) error {
	for name, fn := range collection {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the handler registered for name, or nil if none.
func (r *Registry) Lookup(name string) Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Names returns the currently registered command names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}

// Dispatch invokes the handler registered for f.Command (if any) and
// returns the value to use as a delivery reply's data, per spec.md
// §4.3's unique-socket handler steps 2-3. A missing handler or an error
// return both normalize to nil so the remote pending result still
// completes instead of hanging.
func Dispatch(r *Registry, f wire.Frame, ctx Context) interface{} {
	fn := r.Lookup(wire.StrOr(f.Command, ""))
	if fn == nil {
		return nil
	}
	result, err := fn(ctx)
	if err != nil {
		return nil
	}
	return result
}
