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

	"ipc.io/fabric/internal/paths"
	"ipc.io/fabric/internal/queue"
	"ipc.io/fabric/internal/wire"
	"ipc.io/fabric/pkgerr"
)

// enqueueRendezvous pushes frame onto the rendezvous queue and attempts an
// immediate drain; spec.md §4.2's "a queue drains only while isConnected"
// means the attempt is a no-op until the client reaches Connected, at
// which point onUniqueConnected retries both queues.
func (c *Client) enqueueRendezvous(frame []byte, done chan error) {
	c.rendezvousQueue.Push(frame, done)
	c.tryDrainRendezvous()
}

func (c *Client) enqueueUnique(frame []byte, done chan error) {
	c.uniqueQueue.Push(frame, done)
	c.tryDrainUnique()
}

func (c *Client) tryDrainRendezvous() {
	c.mu.Lock()
	conn := c.bcastConn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	go func() {
		if err := queue.Drain(c.rendezvousQueue, conn); err != nil {
			c.log.Logf("client %q: rendezvous drain halted: %v", c.name, err)
		}
	}()
}

func (c *Client) tryDrainUnique() {
	c.mu.Lock()
	conn := c.uniqueConn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	go func() {
		if err := queue.Drain(c.uniqueQueue, conn); err != nil {
			c.log.Logf("client %q: unique drain halted: %v", c.name, err)
		}
	}()
}

// Send enqueues command/data on the unique queue for direct dispatch by
// the server's own application handlers (spec.md §4.2's send()). It
// blocks until the frame is actually written.
func (c *Client) Send(command string, data interface{}) error {
	b, err := wire.PrepareCmd(command, data)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	c.enqueueUnique(b, done)
	return <-done
}

// Emit wraps command/data in a relay envelope addressed to the named peer
// and enqueues it on the rendezvous queue, per spec.md §4.2's emit(). The
// server forwards the inner frame to the target's unique socket.
func (c *Client) Emit(name, command string, data interface{}) error {
	b, err := prepareEmitEnvelope(name, command, data, nil)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	c.enqueueRendezvous(b, done)
	return <-done
}

// Broadcast wraps command/data in a broadcast envelope and enqueues it on
// the rendezvous queue; the server relays it to every other connected
// client.
func (c *Client) Broadcast(command string, data interface{}) error {
	inner, err := wire.New(nil, wire.Str(command), data, nil)
	if err != nil {
		return err
	}
	outer, err := wire.New(nil, wire.Str(wire.CmdBroadcast), inner, nil)
	if err != nil {
		return err
	}
	b, err := wire.Encode(outer)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	c.enqueueRendezvous(b, done)
	return <-done
}

// Discover asks the server for the current roster of connected clients and
// registered command handlers (spec.md §4.2's discover()). Concurrent
// callers while a request is already outstanding share its single reply.
func (c *Client) Discover() (DiscoverResult, error) {
	c.mu.Lock()
	ch := make(chan discoverOutcome, 1)
	c.discoverWaiters = append(c.discoverWaiters, ch)
	already := c.discoverPending
	c.discoverPending = true
	c.mu.Unlock()

	if !already {
		b, err := wire.PrepareCmd(wire.CmdDiscover, nil)
		if err != nil {
			return DiscoverResult{}, err
		}
		c.enqueueRendezvous(b, nil)
	}

	out := <-ch
	return out.result, out.err
}

func (c *Client) completeDiscover(f wire.Frame) {
	var payload DiscoverResult
	_ = json.Unmarshal(f.Data, &payload)

	c.mu.Lock()
	waiters := c.discoverWaiters
	c.discoverWaiters = nil
	c.discoverPending = false
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- discoverOutcome{result: payload}
	}
}

// Deliver sends command/data and blocks until the reply arrives, per
// spec.md §4.2's deliver(): addressed to the server directly when name is
// empty (a unique-socket round trip), or relayed through a named peer (a
// rendezvous-socket emit envelope carrying the delivery id).
func (c *Client) Deliver(name, command string, data interface{}) (interface{}, error) {
	id := paths.NewChannelID()
	resultCh := c.pendingDeliveries.Register(id)

	var err error
	if name == "" {
		var raw json.RawMessage
		raw, err = marshalData(data)
		if err == nil {
			f := wire.Frame{Command: wire.Str(command), Data: raw, Delivery: wire.Str(id)}
			var b []byte
			b, err = wire.Encode(f)
			if err == nil {
				c.enqueueUnique(b, nil)
			}
		}
	} else {
		var b []byte
		b, err = prepareEmitEnvelope(name, command, data, wire.Str(id))
		if err == nil {
			c.enqueueRendezvous(b, nil)
		}
	}
	if err != nil {
		c.pendingDeliveries.Discard(id)
		return nil, err
	}

	res := <-resultCh
	if res.Discarded {
		return nil, pkgerr.ErrClosed
	}
	return res.Data, nil
}

// prepareEmitEnvelope builds the outer "emit" frame carrying an inner
// frame addressed to name, per spec.md §4.2's relay envelope shape.
func prepareEmitEnvelope(name, command string, data interface{}, delivery *string) ([]byte, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	inner := wire.Frame{ID: wire.Str(name), Command: wire.Str(command), Data: raw, Delivery: delivery}
	outer, err := wire.New(nil, wire.Str(wire.CmdEmit), inner, delivery)
	if err != nil {
		return nil, err
	}
	return wire.Encode(outer)
}

func marshalData(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return json.RawMessage("null"), nil
	}
	if rm, ok := data.(json.RawMessage); ok {
		if rm == nil {
			return json.RawMessage("null"), nil
		}
		return rm, nil
	}
	return json.Marshal(data)
}
