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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReassemblerArbitrarySplit(t *testing.T) {
	a, _ := PrepareCmd("a", 1)
	b, _ := PrepareCmd("b", 2)
	c, _ := PrepareCmd("c", 3)
	blob := append(append(a, b...), c...)

	for split := 1; split < len(blob); split++ {
		var r Reassembler
		var got []Frame
		got = append(got, r.Feed(blob[:split])...)
		got = append(got, r.Feed(blob[split:])...)

		require.Len(t, got, 3, "split at byte %d", split)
		require.Equal(t, "a", StrOr(got[0].Command, ""))
		require.Equal(t, "b", StrOr(got[1].Command, ""))
		require.Equal(t, "c", StrOr(got[2].Command, ""))
		require.Zero(t, r.Pending())
	}
}

func TestReassemblerByteAtATime(t *testing.T) {
	blob, _ := PrepareDelivery("c1", "sum", map[string]int{"a": 1}, "abc123")

	var r Reassembler
	var got []Frame
	for _, b := range blob {
		got = append(got, r.Feed([]byte{b})...)
	}
	require.Len(t, got, 1)
	require.Equal(t, "sum", StrOr(got[0].Command, ""))
	require.Equal(t, "abc123", StrOr(got[0].Delivery, ""))
}

func TestReassemblerBraceInStringIgnored(t *testing.T) {
	blob, _ := PrepareCmd("echo", "}{literal braces in a string}{")
	var r Reassembler
	got := r.Feed(blob)
	require.Len(t, got, 1)
	require.Zero(t, r.Pending())
}
