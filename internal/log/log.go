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

// Package log sets up one logrus.Logger per process role (main, writer,
// escalated_daemon), each writing to its own file under the per-invocation
// state directory, per the run-mode model described in the wire protocol.
package log

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Role identifies which of the three process roles a logger belongs to.
type Role string

const (
	RoleMain            Role = "main"
	RoleWriter          Role = "writer"
	RoleEscalatedDaemon Role = "escalated_daemon"
)

// FileName returns the well-known log file name for a role, matching the
// state-directory layout (caligula.sock, main.log, child.log,
// escalated_daemon.log).
func (r Role) FileName() string {
	switch r {
	case RoleMain:
		return "main.log"
	case RoleWriter:
		return "child.log"
	case RoleEscalatedDaemon:
		return "escalated_daemon.log"
	default:
		return string(r) + ".log"
	}
}

// New builds a logrus.Logger writing to the given file path. The main role
// additionally tees to stderr with color when stderr is a terminal; writer
// and escalated_daemon roles only ever write to their log file (their IPC
// stream runs over the rendezvous socket).
func New(role Role, logFilePath string, level logrus.Level) (*logrus.Logger, *os.File, error) {
	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "log: failed to open %s", logFilePath)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})

	var out io.Writer = f
	if role == RoleMain && term.IsTerminal(int(os.Stderr.Fd())) {
		out = io.MultiWriter(f, os.Stderr)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	logger.SetOutput(out)

	return logger, f, nil
}

// WithRole returns a logger entry tagged with the role, useful once several
// roles' loggers share a sink (e.g. the escalated daemon logging on behalf
// of children it spawns in-process).
func WithRole(logger *logrus.Logger, role Role) *logrus.Entry {
	return logger.WithField("role", string(role))
}
