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

package wire

import "encoding/json"

// Reserved command names. These may never be used as application handler
// keys; their semantics are fixed by the fabric itself.
const (
	CmdHandshake = "handshake"
	CmdDiscover  = "discover"
	CmdBroadcast = "broadcast"
	CmdEmit      = "emit"
	CmdDelivery  = "delivery"
	CmdError     = "error"
)

// Error data codes, carried in Data when Command == CmdError.
const (
	ErrCodeNotJSON  = 101
	ErrCodeNotArray = 102
	ErrCodeNameUsed = 201
)

var reservedCommands = map[string]bool{
	CmdHandshake: true,
	CmdDiscover:  true,
	CmdBroadcast: true,
	CmdEmit:      true,
	CmdDelivery:  true,
	CmdError:     true,
}

// IsReserved reports whether name is one of the six commands the fabric
// itself interprets, and which an application handler may not claim.
func IsReserved(name string) bool {
	return reservedCommands[name]
}

// Frame is one logical message exchanged over either socket layer. It
// mirrors the wire shape in spec.md §3 exactly: id, command and delivery
// are strings-or-null, data is any JSON value or null.
type Frame struct {
	ID       *string         `json:"id"`
	Command  *string         `json:"command"`
	Data     json.RawMessage `json:"data"`
	Delivery *string         `json:"delivery"`
}

// rawFrame has the same field layout as Frame. Decode does not use it:
// normalize tells objects from non-objects through a generic map, and
// json.RawMessage fields on Frame already tolerate `null`.
type rawFrame struct {
	ID       *string         `json:"id"`
	Command  *string         `json:"command"`
	Data     json.RawMessage `json:"data"`
	Delivery *string         `json:"delivery"`
}

// Str wraps a plain string as the *string the frame fields expect.
func Str(s string) *string {
	return &s
}

// StrOr dereferences p, returning def if p is nil.
func StrOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// New builds a frame with every field explicit; nil pointers and a nil
// data encode as JSON null, matching spec.md §4.1's "Encode" paragraph.
func New(id, command *string, data interface{}, delivery *string) (Frame, error) {
	var raw json.RawMessage
	if data == nil {
		raw = json.RawMessage("null")
	} else if rm, ok := data.(json.RawMessage); ok {
		if rm == nil {
			raw = json.RawMessage("null")
		} else {
			raw = rm
		}
	} else {
		b, err := json.Marshal(data)
		if err != nil {
			return Frame{}, err
		}
		raw = b
	}
	return Frame{ID: id, Command: command, Data: raw, Delivery: delivery}, nil
}
