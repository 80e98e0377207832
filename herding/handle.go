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

	"github.com/ifd3f/caligula/ipc"
	"github.com/ifd3f/caligula/system"
)

// WriterHandle wraps a writer child's rendezvous connection and, when the
// parent spawned it directly, its OS process. Closing the handle is
// kill-on-drop (spec.md §4.2/§5): it closes the socket and, if it owns a
// process, sends it SIGKILL so cancellation is never left half-finished.
type WriterHandle struct {
	conn *net.UnixConn
	enc  *ipc.Encoder
	dec  *ipc.Decoder

	// process is nil when the writer was spawned by the escalated daemon
	// rather than directly by this parent; the parent has no OS handle to
	// kill in that case; the daemon's own kill-on-drop chain covers it.
	process *system.Cmd
}

// Next reads the next StatusMessage frame. Callers should treat a clean
// io.EOF as the writer's stream closing before a terminal message, per
// spec.md §8 invariant 5.
func (h *WriterHandle) Next() (ipc.StatusMessage, error) {
	return h.dec.DecodeStatus()
}

// Close implements kill-on-drop: it kills the owned process and waits for
// it, so a cancelled burn never leaves a zombie behind for the parent to
// reap later.
func (h *WriterHandle) Close() error {
	var err error
	if h.conn != nil {
		err = h.conn.Close()
	}
	if h.process != nil && h.process.Process != nil {
		_ = h.process.Process.Kill()
		_ = h.process.Wait()
	}
	return err
}
