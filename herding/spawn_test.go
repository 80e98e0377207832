// Copyright 2024 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package herding

import (
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifd3f/caligula/ipc"
)

// newTestSpawner builds a Spawner around a real rendezvous listener, with
// no commander/exe wired up — these tests exercise acceptWriter directly,
// standing in for a writer child that has already dialed back.
func newTestSpawner(t *testing.T) (*Spawner, *StateDir) {
	t.Helper()
	tmp := t.TempDir()
	sd, err := NewStateDir(tmp, 1, 1)
	require.NoError(t, err)
	r, err := Listen(sd.SocketPath())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(); sd.Remove() })

	logger := logrus.NewEntry(logrus.New())
	return &Spawner{stateDir: sd, rendezvous: r, logger: logger}, sd
}

func TestAcceptWriterReturnsHandleOnInitSuccess(t *testing.T) {
	s, sd := newTestSpawner(t)

	go func() {
		conn, err := net.Dial("unix", sd.SocketPath())
		if err != nil {
			return
		}
		defer conn.Close()
		enc := ipc.NewEncoder(conn)
		enc.EncodeStatus(ipc.InitSuccess(4096))
	}()

	handle, err := s.acceptWriter(nil)
	require.NoError(t, err)
	defer handle.Close()

	msg, err := handle.Next()
	require.NoError(t, err)
	assert.Equal(t, ipc.TagInitSuccess, msg.Tag)
	assert.Equal(t, uint64(4096), msg.InputFileBytes)
}

func TestAcceptWriterSurfacesFirstFrameError(t *testing.T) {
	s, sd := newTestSpawner(t)

	go func() {
		conn, err := net.Dial("unix", sd.SocketPath())
		if err != nil {
			return
		}
		defer conn.Close()
		enc := ipc.NewEncoder(conn)
		enc.EncodeStatus(ipc.Error(ipc.ErrorKind{Tag: ipc.ErrPermissionDenied}))
	}()

	handle, err := s.acceptWriter(nil)
	assert.Nil(t, handle)
	require.Error(t, err)
	assert.ErrorIs(t, err, ipc.ErrorKind{Tag: ipc.ErrPermissionDenied})
}
