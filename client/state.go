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

// State is the client connection state machine of spec.md §3.
type State int

const (
	StateIdle State = iota
	StateConnectingBcast
	StateAwaitingHandshake
	StateConnectingUnique
	StateConnected
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnectingBcast:
		return "connecting_bcast"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateConnectingUnique:
		return "connecting_unique"
	case StateConnected:
		return "connected"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}
