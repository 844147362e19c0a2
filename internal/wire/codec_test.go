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

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f, err := New(Str("c1"), Str("ping"), map[string]int{"x": 1}, Str("deadbeef"))
	require.NoError(t, err)

	b, err := Encode(f)
	require.NoError(t, err)

	out := Decode(b)
	require.Len(t, out, 1)
	require.Equal(t, "c1", StrOr(out[0].ID, ""))
	require.Equal(t, "ping", StrOr(out[0].Command, ""))
	require.Equal(t, "deadbeef", StrOr(out[0].Delivery, ""))
	require.JSONEq(t, `{"x":1}`, string(out[0].Data))
}

func TestDecodeMissingFieldsNormalizeToNull(t *testing.T) {
	out := Decode([]byte(`{"command":"ping"}`))
	require.Len(t, out, 1)
	require.Nil(t, out[0].ID)
	require.Nil(t, out[0].Delivery)
	require.Equal(t, "null", string(out[0].Data))
}

func TestDecodeConcatenatedFrames(t *testing.T) {
	a, _ := PrepareCmd("a", 1)
	b, _ := PrepareCmd("b", 2)
	c, _ := PrepareCmd("c", 3)
	blob := append(append(a, b...), c...)

	out := Decode(blob)
	require.Len(t, out, 3)
	require.Equal(t, "a", StrOr(out[0].Command, ""))
	require.Equal(t, "b", StrOr(out[1].Command, ""))
	require.Equal(t, "c", StrOr(out[2].Command, ""))
}

func TestDecodeStripsCRLF(t *testing.T) {
	out := Decode([]byte("{\"command\":\"ping\"}\r\n"))
	require.Len(t, out, 1)
	require.Equal(t, "ping", StrOr(out[0].Command, ""))
}

func TestDecodeNotJSON(t *testing.T) {
	out := Decode([]byte("not json at all"))
	require.Len(t, out, 1)
	require.Equal(t, CmdError, StrOr(out[0].Command, ""))
	require.JSONEq(t, "101", string(out[0].Data))
}

func TestDecodeNonObjectElement(t *testing.T) {
	out := Decode([]byte(`42`))
	require.Len(t, out, 1)
	require.Nil(t, out[0].Command)
	require.Equal(t, "42", string(out[0].Data))
}

func TestPrepareShapes(t *testing.T) {
	b, err := Prepare("hi")
	require.NoError(t, err)
	fr := Decode(b)[0]
	require.Nil(t, fr.ID)
	require.Nil(t, fr.Command)
	require.Equal(t, `"hi"`, string(fr.Data))

	b, err = PrepareTo("c1", "handshake", "uuid-value")
	require.NoError(t, err)
	fr = Decode(b)[0]
	require.Equal(t, "c1", StrOr(fr.ID, ""))
	require.Equal(t, "handshake", StrOr(fr.Command, ""))
}
