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

// Package client implements the client half of the fabric: the
// connect/reconnect state machine, the two per-socket send queues, and the
// discover()/deliver() correlators (spec.md §3, §4.2, §5). It is grounded
// on the teacher's core.go dialer, whose single select loop serializes
// every connection-lifecycle transition onto one goroutine — spec.md §5's
// note that an implementer "must serialize state mutations behind a
// single-owner loop, with public methods posting work onto that loop and
// returning completion signals" describes exactly that shape.
package client

import (
	"net"
	"sync"
	"time"

	"ipc.io/fabric/internal/correlate"
	"ipc.io/fabric/internal/handler"
	"ipc.io/fabric/internal/logging"
	"ipc.io/fabric/internal/paths"
	"ipc.io/fabric/internal/queue"
	"ipc.io/fabric/pkgerr"
)

const defaultReconnectDelay = 2 * time.Second

// Client is one named participant in a domain.
type Client struct {
	domain         string
	name           string
	reconnectDelay time.Duration
	log            *logging.Logger
	registry       *handler.Registry

	actions   chan func()
	closeCh   chan struct{}
	closeOnce sync.Once

	mu             sync.Mutex
	state          State
	channelID      string
	bcastConn      net.Conn
	uniqueConn     net.Conn
	reconnectTimer *time.Timer
	connectWaiters []chan error

	rendezvousQueue *queue.Queue
	uniqueQueue     *queue.Queue

	pendingDeliveries *correlate.Map

	discoverPending bool
	discoverWaiters []chan discoverOutcome
}

type discoverOutcome struct {
	result DiscoverResult
	err    error
}

// DiscoverResult is the payload of a discover() reply, per spec.md §4.3's
// discoverPayload shape.
type DiscoverResult struct {
	Clients         []string `json:"clients"`
	CommandHandlers []string `json:"command_handlers"`
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithDomain selects the rendezvous domain; the zero value is
// paths.DefaultDomain.
func WithDomain(domain string) Option {
	return func(c *Client) { c.domain = domain }
}

// WithVerbose enables diagnostic logging.
func WithVerbose(v bool) Option {
	return func(c *Client) { c.log = logging.New(v) }
}

// WithReconnectDelay overrides the 2s reconnect backoff spec.md §3's state
// table fixes for the Offline state. Exposed for tests; production code
// should leave it at the default.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// New creates a Client identified by name, which must be unique within
// the domain at handshake time (spec.md §4.3).
func New(name string, opts ...Option) (*Client, error) {
	if name == "" {
		return nil, pkgerr.ErrEmptyName
	}
	c := &Client{
		domain:            paths.DefaultDomain,
		name:              name,
		reconnectDelay:    defaultReconnectDelay,
		log:               logging.New(false),
		registry:          handler.New(),
		actions:           make(chan func(), 16),
		closeCh:           make(chan struct{}),
		rendezvousQueue:   queue.New(),
		uniqueQueue:       queue.New(),
		pendingDeliveries: correlate.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c, nil
}

// Name returns the client's friendly name.
func (c *Client) Name() string { return c.name }

// AddHandlers registers a collection of application command handlers.
func (c *Client) AddHandlers(collection map[string]handler.Func) error {
	return c.registry.AddHandlers(collection)
}

// IsStarted reports whether Connect has ever been called (and Close has
// not since been called); it stays true through Offline/reconnect cycles.
// A handshake rejected for a taken name returns the client to Idle, after
// which it reports false again.
func (c *Client) IsStarted() bool {
	select {
	case <-c.closeCh:
		return false
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateIdle
}

// IsConnected reports whether both sockets are currently open.
func (c *Client) IsConnected() bool {
	select {
	case <-c.closeCh:
		return false
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// run is the single goroutine that owns every field under c.mu touched by
// the connection state machine; all mutation of that state happens inside
// closures it executes, never directly from a socket-reading goroutine.
func (c *Client) run() {
	for {
		select {
		case fn := <-c.actions:
			fn()
		case <-c.closeCh:
			return
		}
	}
}

// post hands fn to the run loop, dropping it silently once the client is
// closed.
func (c *Client) post(fn func()) {
	select {
	case c.actions <- fn:
	case <-c.closeCh:
	}
}

// Close disposes of the client: both sockets are closed, the reconnect
// timer is stopped, and every pending deliver()/discover() sink is
// resolved with pkgerr.ErrClosed rather than left hanging forever, per
// spec.md §5's disposal requirement.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)

		c.mu.Lock()
		bc, uc := c.bcastConn, c.uniqueConn
		if c.reconnectTimer != nil {
			c.reconnectTimer.Stop()
		}
		waiters := c.discoverWaiters
		c.discoverWaiters = nil
		c.discoverPending = false
		connectWaiters := c.connectWaiters
		c.connectWaiters = nil
		c.mu.Unlock()

		if bc != nil {
			_ = bc.Close()
		}
		if uc != nil {
			_ = uc.Close()
		}
		c.pendingDeliveries.DiscardAll()
		for _, ch := range waiters {
			ch <- discoverOutcome{err: pkgerr.ErrClosed}
		}
		for _, ch := range connectWaiters {
			ch <- pkgerr.ErrClosed
		}
	})
	return nil
}
