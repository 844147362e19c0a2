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
	"net"

	"ipc.io/fabric/internal/handler"
	"ipc.io/fabric/internal/wire"
)

// readUnique is the private socket's read loop. A "delivery" frame always
// completes a pending deliver() here — unlike the server, a client keeps
// no forwarding registry, so it never relays a delivery onward. Any other
// frame runs through the shared dispatch step and, if it carried a
// delivery id, is answered with a "delivery" reply on this same socket,
// per spec.md §4.3's unique-socket handler applied from the client side.
func (c *Client) readUnique(conn net.Conn) {
	var asm wire.Reassembler
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			c.post(func() { c.onUniqueDown(conn) })
			return
		}
		for _, f := range asm.Feed(buf[:n]) {
			frame := f
			c.handleUniqueFrame(frame)
		}
	}
}

func (c *Client) onUniqueDown(conn net.Conn) {
	c.mu.Lock()
	current := c.uniqueConn
	c.mu.Unlock()
	if current != conn {
		return
	}
	c.goOffline()
}

func (c *Client) handleUniqueFrame(f wire.Frame) {
	if wire.StrOr(f.Command, "") == wire.CmdDelivery && f.Delivery != nil {
		c.pendingDeliveries.Complete(*f.Delivery, f.Data)
		return
	}

	ctx := handler.Context{Data: f.Data, Name: c.name, ChannelID: c.currentChannelID(), Conn: c.currentUniqueConn()}
	result := handler.Dispatch(c.registry, f, ctx)

	if f.Delivery != nil {
		b, err := wire.PrepareDelivery(c.name, wire.CmdDelivery, result, *f.Delivery)
		if err != nil {
			c.log.Logf("client %q: encoding delivery reply failed: %v", c.name, err)
			return
		}
		c.enqueueUnique(b, nil)
	}
}

func (c *Client) currentChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

func (c *Client) currentUniqueConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uniqueConn
}
