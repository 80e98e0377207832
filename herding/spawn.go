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
	"bytes"
	"encoding/json"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ifd3f/caligula/internal/log"
	"github.com/ifd3f/caligula/ipc"
	"github.com/ifd3f/caligula/system"
)

// Spawner owns the rendezvous listener and spawns writer children, either
// directly or via a lazily-started escalated daemon, per spec.md §4.2.
type Spawner struct {
	exe        string
	commander  system.Commander
	stateDir   *StateDir
	rendezvous *Rendezvous
	logger     *logrus.Entry

	mu          sync.Mutex
	daemon      *daemonConn
	nextChildID int
}

// daemonConn is the parent's persistent control connection to a running
// escalated daemon: one Encoder for SpawnWriter requests, one Decoder for
// ChildExited/FatalError events.
type daemonConn struct {
	cmd  *system.Cmd
	conn net.Conn
	enc  *ipc.Encoder
	dec  *ipc.Decoder
}

func NewSpawner(exe string, commander system.Commander, stateDir *StateDir, rendezvous *Rendezvous, logger *logrus.Entry) *Spawner {
	return &Spawner{exe: exe, commander: commander, stateDir: stateDir, rendezvous: rendezvous, logger: logger}
}

// StartWriter implements spec.md §4.2's spawn protocol. When escalate is
// false the binary is re-exec'd directly with role writer; otherwise the
// escalated daemon is started (if not already running) and asked to run
// the writer itself.
func (s *Spawner) StartWriter(cfg ipc.WriterConfig, escalate bool) (*WriterHandle, error) {
	logFile := s.stateDir.LogPath(log.RoleWriter)
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "herding: failed to marshal writer config")
	}

	if !escalate {
		cmd := s.buildDirectCommand(log.RoleWriter, logFile, string(configJSON))
		if err := cmd.Start(); err != nil {
			return nil, errors.Wrap(err, "herding: failed to spawn writer")
		}
		return s.acceptWriter(cmd)
	}

	dconn, err := s.ensureDaemon()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextChildID++
	s.mu.Unlock()
	if err := dconn.enc.EncodeDaemonRequest(ipc.SpawnWriter(logFile, cfg)); err != nil {
		return nil, errors.Wrap(err, "herding: failed to send SpawnWriter to daemon")
	}
	return s.acceptWriter(nil)
}

// buildDirectCommand spawns argv0 <logFile> <sockPath> <configJSON> with
// the role switch set directly in the child's environment — safe here
// since no privilege-elevation boundary resets it.
func (s *Spawner) buildDirectCommand(role log.Role, logFile, configJSON string) *system.Cmd {
	cmd := s.commander.Command(s.exe, logFile, s.rendezvous.Addr(), configJSON)
	cmd.Env = append(os.Environ(), "__CALIGULA_RUN_MODE="+string(role))
	return cmd
}

// ensureDaemon spawns the escalated daemon on first use and accepts its
// control connection; subsequent calls reuse the same connection.
func (s *Spawner) ensureDaemon() (*daemonConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.daemon != nil {
		return s.daemon, nil
	}

	tool, err := FindEscalationTool()
	if err != nil {
		return nil, err
	}
	envPath, err := exec.LookPath("env")
	if err != nil {
		return nil, errors.Wrap(err, "herding: env not found on PATH")
	}

	logFile := s.stateDir.LogPath(log.RoleEscalatedDaemon)
	envArgs := []string{"__CALIGULA_RUN_MODE=" + string(log.RoleEscalatedDaemon), s.exe, logFile, s.rendezvous.Addr(), "{}"}
	toolPath, toolArgs := tool.Wrap(envPath, envArgs...)

	cmd := s.commander.Command(toolPath, toolArgs...)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "herding: failed to start escalated daemon via %s", tool.Name)
	}

	conn, err := s.rendezvous.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "herding: failed waiting for escalated daemon to connect")
	}

	s.daemon = &daemonConn{
		cmd:  cmd,
		conn: conn,
		enc:  ipc.NewEncoder(conn),
		dec:  ipc.NewDecoder(conn),
	}
	return s.daemon, nil
}

// acceptWriter waits for the spawned writer's own rendezvous connection
// (separate from any escalated daemon control connection) and reads its
// first frame, per spec.md §4.2 step 2-3. cmd is nil when the writer was
// spawned by the escalated daemon rather than this parent.
func (s *Spawner) acceptWriter(cmd *system.Cmd) (*WriterHandle, error) {
	conn, err := s.rendezvous.Accept()
	if err != nil {
		return nil, errors.Wrap(err, "herding: failed waiting for writer to connect")
	}
	unixConn, _ := conn.(*net.UnixConn)

	var firstFrame bytes.Buffer
	handle := &WriterHandle{
		conn:    unixConn,
		enc:     ipc.NewEncoder(conn),
		dec:     ipc.NewDecoder(io.TeeReader(conn, &firstFrame)),
		process: cmd,
	}

	first, err := handle.Next()
	if err != nil {
		handle.Close()
		return nil, errors.Wrap(err, "herding: failed to read writer's first frame")
	}
	if first.Tag == ipc.TagError {
		handle.Close()
		return nil, first.Err
	}
	// Replay the first frame so the caller's first Next still returns it.
	handle.dec = ipc.NewDecoder(io.MultiReader(&firstFrame, conn))
	return handle, nil
}

// DaemonEvents exposes the escalated daemon's control channel so the
// caller's event loop can multiplex it alongside writer handles. Returns
// nil if no escalated daemon has been started yet.
func (s *Spawner) DaemonEvents() (*ipc.Decoder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.daemon == nil {
		return nil, false
	}
	return s.daemon.dec, true
}

// Close terminates the escalated daemon, if one was started.
func (s *Spawner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.daemon == nil {
		return nil
	}
	err := s.daemon.conn.Close()
	if s.daemon.cmd.Process != nil {
		_ = s.daemon.cmd.Process.Kill()
	}
	s.daemon = nil
	return err
}
