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
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ifd3f/caligula/burn"
	"github.com/ifd3f/caligula/ipc"
)

// RunEscalatedDaemon is the escalated daemon's own main loop (run under
// __CALIGULA_RUN_MODE=escalated_daemon). It dials back to the parent's
// rendezvous socket once as its control connection, then services
// SpawnWriter requests for the rest of its life: each one runs the write
// engine in its own goroutine, already under the daemon's elevated
// privileges, with its StatusMessage stream going out over a second,
// independent connection to the same rendezvous socket (so the parent's
// Spawner.acceptWriter sees it exactly like a directly-spawned writer).
//
// The loop ends when the control connection closes or a request fails to
// decode; on a decode failure a FatalError event is sent best-effort
// before returning.
func RunEscalatedDaemon(rendezvousAddr string, logger *logrus.Entry) error {
	control, err := net.Dial("unix", rendezvousAddr)
	if err != nil {
		return err
	}
	defer control.Close()

	dec := ipc.NewDecoder(control)
	enc := ipc.NewEncoder(control)

	// Child goroutines report their own exit asynchronously on this same
	// control connection; enc.Encode isn't safe for concurrent callers
	// (ipc.Encoder's doc comment), so every DaemonEvent send — from this
	// loop or from a runEscalatedChild goroutine — goes through sendEvent.
	var encMu sync.Mutex
	sendEvent := func(evt ipc.DaemonEvent) error {
		encMu.Lock()
		defer encMu.Unlock()
		return enc.EncodeDaemonEvent(evt)
	}

	childID := 0
	for {
		req, err := dec.DecodeDaemonRequest()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			_ = sendEvent(ipc.FatalError(err))
			return err
		}

		switch req.Tag {
		case ipc.DaemonReqSpawnWriter:
			childID++
			go runEscalatedChild(childID, rendezvousAddr, req, logger, sendEvent)
		default:
			logger.Warnf("escalated daemon: ignoring unknown request tag %q", req.Tag)
		}
	}
}

// runEscalatedChild dials a fresh connection back to the rendezvous socket
// for this writer's own status stream, then runs the engine in-process —
// there is no fork here, only a second connection, since the daemon
// already holds the privileges a forked child would need to re-acquire.
// Its exit is reported to the parent via a ChildExited event (spec.md:96),
// since there is no OS process exit code here to observe directly: code is
// 0 when the engine's own terminal frame was Success, 1 otherwise.
func runEscalatedChild(id int, rendezvousAddr string, req ipc.DaemonRequest, logger *logrus.Entry, sendEvent func(ipc.DaemonEvent) error) {
	conn, err := net.Dial("unix", rendezvousAddr)
	if err != nil {
		logger.WithField("child_id", id).WithError(err).Error("escalated daemon: failed to connect writer stream")
		if err := sendEvent(ipc.ChildExited(id, 1)); err != nil {
			logger.WithField("child_id", id).WithError(err).Warn("escalated daemon: failed to report child exit")
		}
		return
	}
	defer conn.Close()

	enc := ipc.NewEncoder(conn)
	lastTag := ipc.TagError
	emit := func(msg ipc.StatusMessage) error {
		lastTag = msg.Tag
		return enc.EncodeStatus(msg)
	}

	cfg := burn.Config{
		SourcePath:  req.Config.SourcePath,
		DestPath:    req.Config.DestPath,
		Target:      req.Config.Target,
		Verify:      req.Config.Verify,
		Compression: req.Config.Compression,

		BlockSizeOverride: req.Config.BlockSizeOverride,
	}
	runErr := burn.Run(cfg, emit)
	if runErr != nil {
		logger.WithField("child_id", id).WithError(runErr).Warn("escalated daemon: writer stream closed")
	}

	code := 0
	if runErr != nil || lastTag != ipc.TagSuccess {
		code = 1
	}
	if err := sendEvent(ipc.ChildExited(id, code)); err != nil {
		logger.WithField("child_id", id).WithError(err).Warn("escalated daemon: failed to report child exit")
	}
}
