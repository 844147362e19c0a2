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

package ipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "sock")
}

func TestListenDialRoundTrip(t *testing.T) {
	path := testPath(t)

	ln, err := Listen(path)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		require.NoError(t, err)
		defer conn.Close()
		buf := make([]byte, 5)
		_, err = conn.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "hello", string(buf))
		close(accepted)
	}()

	conn, err := Dial(path)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
}

func TestListenUnlinksStaleSocketFile(t *testing.T) {
	path := testPath(t)

	ln1, err := Listen(path)
	require.NoError(t, err)
	// Simulate a crash: the listener goes away, but the socket file is
	// left behind (unlink-on-close is turned off, as a killed process
	// would never run it).
	f, statErr := os.Stat(path)
	require.NoError(t, statErr)
	require.True(t, f.Mode()&os.ModeSocket != 0)
	ln1.listener.SetUnlink(false)
	ln1.listener.Close()

	ln2, err := Listen(path)
	require.NoError(t, err)
	defer ln2.Close()
}
