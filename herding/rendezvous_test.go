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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifd3f/caligula/internal/log"
)

func TestNewStateDirLayout(t *testing.T) {
	tmp := t.TempDir()
	sd, err := NewStateDir(tmp, 1234, 5678)
	require.NoError(t, err)
	defer sd.Remove()

	info, err := os.Stat(sd.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, sd.Path+"/caligula.sock", sd.SocketPath())
	assert.Equal(t, sd.Path+"/main.log", sd.LogPath(log.RoleMain))
	assert.Equal(t, sd.Path+"/child.log", sd.LogPath(log.RoleWriter))
	assert.Equal(t, sd.Path+"/escalated_daemon.log", sd.LogPath(log.RoleEscalatedDaemon))
}

func TestStateDirRemoveDeletesDirectory(t *testing.T) {
	tmp := t.TempDir()
	sd, err := NewStateDir(tmp, 1, 1)
	require.NoError(t, err)

	require.NoError(t, sd.Remove())
	_, err = os.Stat(sd.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestRendezvousAcceptRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	r, err := Listen(tmp + "/test.sock")
	require.NoError(t, err)
	defer r.Close()

	done := make(chan error, 1)
	go func() {
		conn, err := net.Dial("unix", r.Addr())
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		_, err = conn.Write([]byte("hi"))
		done <- err
	}()

	conn, err := r.Accept()
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 2)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf))
	require.NoError(t, <-done)
}
