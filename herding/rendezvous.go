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

// Package herding implements the multi-process supervisor: it owns the
// rendezvous socket, spawns writer children (directly or via a long-lived
// escalated daemon), and tracks their lifecycle (see spec.md §4.2).
package herding

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ifd3f/caligula/internal/log"
)

// StateDir is the per-invocation directory (mode 0700) holding the
// rendezvous socket and the three role log files.
type StateDir struct {
	Path string
}

// NewStateDir creates <tmp>/caligula-<pid>-<millisAtCall>/ with mode 0700.
// millis is passed in rather than computed with time.Now() so callers
// control the value (and so it stays testable without a wall clock
// dependency inside this package).
func NewStateDir(tmpDir string, pid int, millis int64) (*StateDir, error) {
	path := filepath.Join(tmpDir, fmt.Sprintf("caligula-%d-%d", pid, millis))
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, errors.Wrapf(err, "herding: failed to create state dir %s", path)
	}
	return &StateDir{Path: path}, nil
}

func (d *StateDir) SocketPath() string {
	return filepath.Join(d.Path, "caligula.sock")
}

func (d *StateDir) LogPath(role log.Role) string {
	return filepath.Join(d.Path, role.FileName())
}

// Remove deletes the state directory and everything in it (socket, log
// files). Called once on herder drop.
func (d *StateDir) Remove() error {
	return os.RemoveAll(d.Path)
}

// Rendezvous owns the listener children connect back to after spawn.
type Rendezvous struct {
	ln net.Listener
}

// Listen creates the rendezvous socket at path. Rendezvous.Close unlinks
// the socket path (net's Unix listener does so on Close); StateDir.Remove
// then deletes whatever is left together with the directory.
func Listen(path string) (*Rendezvous, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrapf(err, "herding: failed to listen on %s", path)
	}
	return &Rendezvous{ln: ln}, nil
}

// Accept blocks for the next child connection.
func (r *Rendezvous) Accept() (net.Conn, error) {
	return r.ln.Accept()
}

func (r *Rendezvous) Close() error {
	return r.ln.Close()
}

func (r *Rendezvous) Addr() string {
	return r.ln.Addr().String()
}
