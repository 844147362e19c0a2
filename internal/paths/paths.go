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

// Package paths computes the filesystem addresses the fabric binds to,
// per spec.md §6.
package paths

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultDomain is used when a constructor is not given one explicitly.
const DefaultDomain = "default"

// Rendezvous returns the shared per-domain socket path.
func Rendezvous(domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	return fmt.Sprintf("/tmp/IPC.io.%s", domain)
}

// Unique returns the transient per-client socket path for channelID.
func Unique(domain, channelID string) string {
	return Rendezvous(domain) + "." + channelID
}

// NewChannelID returns a fresh hex UUIDv4 with hyphens stripped, as
// spec.md §3 and §6 require for channel ids and delivery ids alike.
func NewChannelID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
